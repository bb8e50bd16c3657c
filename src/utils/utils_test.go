package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	parsed, err := ParseDate("2023-08-25")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 8, 25, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseDate("25/08/2023")
	require.Error(t, err)
	_, err = ParseDate("")
	require.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2023-08-25", FormatDate(time.Date(2023, 8, 25, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, "", FormatDate(time.Time{}))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7, DaysBetween(a, b))
	assert.Equal(t, -7, DaysBetween(b, a))
}

func TestRoundFloat(t *testing.T) {
	assert.Equal(t, 1.23, RoundFloat(1.2349, 2))
	assert.Equal(t, 1.24, RoundFloat(1.235, 2))
	assert.Equal(t, 100.0, RoundFloat(99.999, 1))
}

func TestMinFloat(t *testing.T) {
	assert.Equal(t, 1.0, MinFloat(1, 2))
	assert.Equal(t, -2.0, MinFloat(-2, 1))
	assert.Equal(t, 3.0, MinFloat(3, 3))
}
