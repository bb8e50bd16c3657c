package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/lotfolio/src/config"
	"github.com/username/lotfolio/src/logger"
	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/services"
)

func init() {
	logger.InitLogger("error")
}

// stubLotService serves canned lots; every other operation is unused by the
// handlers under test.
type stubLotService struct {
	services.ReconcileService
	lots []*models.Lot
}

func (s *stubLotService) GetLots(account string) ([]*models.Lot, error) {
	return s.lots, nil
}

func TestDecodeJSONBodyEnforcesUploadLimit(t *testing.T) {
	config.Cfg = &config.AppConfig{MaxUploadSizeBytes: 64}
	defer func() { config.Cfg = nil }()

	payload := `{"account":"` + strings.Repeat("a", 200) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(payload))
	rec := httptest.NewRecorder()

	var dst importTransactionsRequest
	ok := decodeJSONBody(rec, req, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The same payload passes once it fits under the limit.
	config.Cfg.MaxUploadSizeBytes = 1 << 20
	req = httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(payload))
	rec = httptest.NewRecorder()
	ok = decodeJSONBody(rec, req, &dst)
	assert.True(t, ok)
	assert.Equal(t, strings.Repeat("a", 200), dst.Account)
}

func TestHandleGetHoldingsAggregates(t *testing.T) {
	lotA, err := models.NewLot("acct1", "AAPL", 10,
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 1000, true)
	require.NoError(t, err)
	lotB, err := models.NewLot("acct1", "AAPL", 10,
		time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 1500, true)
	require.NoError(t, err)
	lotB.RemainingQuantity = 4
	lotB.RecomputeStatus()
	closed, err := models.NewLot("acct1", "MSFT", 5,
		time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 500, true)
	require.NoError(t, err)
	closed.RemainingQuantity = 0
	closed.RecomputeStatus()

	handler := NewLotHandler(&stubLotService{lots: []*models.Lot{lotA, lotB, closed}}, models.MethodFIFO)

	req := httptest.NewRequest(http.MethodGet, "/api/holdings?account=acct1", nil)
	rec := httptest.NewRecorder()
	handler.HandleGetHoldings(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var holdings []holdingSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.InDelta(t, 14.0, holdings[0].OpenQuantity, 1e-9)
	assert.InDelta(t, 1600.0, holdings[0].RemainingCostBasis, 1e-9)
	assert.Equal(t, 2, holdings[0].OpenLots)
	assert.Equal(t, "2021-01-01", holdings[0].EarliestDate)
}
