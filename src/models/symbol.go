package models

import "strings"

// NormalizeSymbol canonicalizes a ticker string: trim whitespace, uppercase.
// Total and pure; empty input stays empty. Every component that compares or
// keys on a symbol must go through this: snapshot and transaction data
// arrive with inconsistent casing and padding.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// SecurityID builds the composite account_SYMBOL key that owns a lot set.
func SecurityID(account, symbol string) string {
	return account + "_" + NormalizeSymbol(symbol)
}
