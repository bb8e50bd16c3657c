package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/lotfolio/src/config"
	"github.com/username/lotfolio/src/logger"
	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/services"
	"github.com/username/lotfolio/src/utils"
)

type LotHandler struct {
	reconcileService services.ReconcileService
	defaultMethod    models.AccountingMethod
}

func NewLotHandler(service services.ReconcileService, defaultMethod models.AccountingMethod) *LotHandler {
	return &LotHandler{
		reconcileService: service,
		defaultMethod:    defaultMethod,
	}
}

// sendServiceError maps service errors onto HTTP statuses: validation
// failures are 400, missing entities 404, everything else 500.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case models.IsNotFound(err),
		errors.Is(err, services.ErrNoLotsForSecurity),
		errors.Is(err, services.ErrNoTransactions):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	default:
		logger.L.Error("Internal error handling request", "error", err)
		utils.SendJSONError(w, "An internal error occurred. Please try again later.", http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes a JSON request body, capped at the configured
// upload size so an oversized import cannot exhaust memory.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if config.Cfg != nil && config.Cfg.MaxUploadSizeBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.L.Warn("Failed to decode request body", "path", r.URL.Path, "error", err)
		utils.SendJSONError(w, "Invalid JSON request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireAccount(w http.ResponseWriter, account string) bool {
	if account == "" {
		utils.SendJSONError(w, "account is required", http.StatusBadRequest)
		return false
	}
	return true
}

type importTransactionsRequest struct {
	Account      string               `json:"account"`
	Transactions []models.Transaction `json:"transactions"`
}

func (h *LotHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	var req importTransactionsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	inserted, err := h.reconcileService.ImportTransactions(req.Account, req.Transactions)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]int{"inserted": inserted}, http.StatusCreated)
}

type reconcileRequest struct {
	Account string `json:"account"`
}

func (h *LotHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	result, err := h.reconcileService.ProcessTransactions(req.Account)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

type snapshotRequest struct {
	Account      string            `json:"account"`
	SnapshotDate string            `json:"snapshot_date"`
	Positions    []models.Position `json:"positions"`
}

func (h *LotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	snapshotDate, err := utils.ParseDate(req.SnapshotDate)
	if err != nil {
		utils.SendJSONError(w, "invalid snapshot_date: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.reconcileService.CreateLotsFromSnapshot(req.Account, req.Positions, snapshotDate)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, result, http.StatusCreated)
}

type saleRequest struct {
	Account  string   `json:"account"`
	Symbol   string   `json:"symbol"`
	Quantity float64  `json:"quantity"`
	Date     string   `json:"date"`
	Price    float64  `json:"price,omitempty"`
	Amount   float64  `json:"amount,omitempty"`
	Method   string   `json:"method,omitempty"`
	LotIDs   []string `json:"lot_ids,omitempty"`
}

func (h *LotHandler) HandleApplySale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	saleDate, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	method := h.defaultMethod
	if req.Method != "" {
		if method, err = models.ParseAccountingMethod(req.Method); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	sale := models.SaleTerms{
		Quantity: req.Quantity,
		Date:     saleDate,
		Price:    req.Price,
		Amount:   req.Amount,
	}
	result, err := h.reconcileService.ApplySale(req.Account, req.Symbol, sale, method, req.LotIDs)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

type splitRequest struct {
	Account     string  `json:"account"`
	Symbol      string  `json:"symbol"`
	Ratio       float64 `json:"ratio"`
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
}

func (h *LotHandler) HandleApplySplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	adjusted, err := h.reconcileService.ApplySplit(req.Account, req.Symbol, req.Ratio, date, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]int{"lots_adjusted": adjusted}, http.StatusOK)
}

type mergerRequest struct {
	Account     string  `json:"account"`
	OldSymbol   string  `json:"old_symbol"`
	NewSymbol   string  `json:"new_symbol"`
	Ratio       float64 `json:"ratio"`
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
}

func (h *LotHandler) HandleApplyMerger(w http.ResponseWriter, r *http.Request) {
	var req mergerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	adjusted, err := h.reconcileService.ApplyMerger(req.Account, req.OldSymbol, req.NewSymbol, req.Ratio, date, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]int{"lots_adjusted": adjusted}, http.StatusOK)
}

type dividendRequest struct {
	Account     string  `json:"account"`
	Symbol      string  `json:"symbol"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
}

func (h *LotHandler) HandleRecordDividend(w http.ResponseWriter, r *http.Request) {
	var req dividendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		utils.SendJSONError(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}
	adj, err := h.reconcileService.RecordDividend(req.Account, req.Symbol, req.Amount, date, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, adj, http.StatusCreated)
}

type tickerChangeRequest struct {
	Account   string `json:"account"`
	OldSymbol string `json:"old_symbol"`
	NewSymbol string `json:"new_symbol"`
}

func (h *LotHandler) HandleTickerChange(w http.ResponseWriter, r *http.Request) {
	var req tickerChangeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	migrated, err := h.reconcileService.ApplyTickerChange(req.Account, req.OldSymbol, req.NewSymbol)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]int{"lots_migrated": migrated}, http.StatusOK)
}

func (h *LotHandler) HandleGetLots(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !requireAccount(w, account) {
		return
	}
	lots, err := h.reconcileService.GetLots(account)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, lots, http.StatusOK)
}

// holdingSummary is the per-symbol aggregate served by the holdings
// endpoint.
type holdingSummary struct {
	Symbol             string  `json:"symbol"`
	OpenQuantity       float64 `json:"open_quantity"`
	RemainingCostBasis float64 `json:"remaining_cost_basis"`
	OpenLots           int     `json:"open_lots"`
	EarliestDate       string  `json:"earliest_acquisition_date"`
}

func (h *LotHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !requireAccount(w, account) {
		return
	}
	lots, err := h.reconcileService.GetLots(account)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	// Lots arrive sorted by symbol then acquisition date, so holdings come
	// out in symbol order.
	holdings := []holdingSummary{}
	for _, lot := range lots {
		if lot.RemainingQuantity <= 0 {
			continue
		}
		remainingBasis := lot.CostBasis * (lot.RemainingQuantity / lot.OriginalQuantity)
		if len(holdings) > 0 && holdings[len(holdings)-1].Symbol == lot.Symbol {
			last := &holdings[len(holdings)-1]
			last.OpenQuantity += lot.RemainingQuantity
			last.RemainingCostBasis += remainingBasis
			last.OpenLots++
			continue
		}
		holdings = append(holdings, holdingSummary{
			Symbol:             lot.Symbol,
			OpenQuantity:       lot.RemainingQuantity,
			RemainingCostBasis: remainingBasis,
			OpenLots:           1,
			EarliestDate:       utils.FormatDate(lot.AcquisitionDate),
		})
	}
	utils.SendJSON(w, holdings, http.StatusOK)
}

func (h *LotHandler) HandleGetAdjustments(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !requireAccount(w, account) {
		return
	}
	adjustments, err := h.reconcileService.GetAdjustments(account)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, adjustments, http.StatusOK)
}

func (h *LotHandler) HandleGetCorporateActions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !requireAccount(w, account) {
		return
	}
	report, err := h.reconcileService.DetectCorporateActions(account)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

func (h *LotHandler) HandlePurgeAccount(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !requireAccount(w, account) {
		return
	}
	if err := h.reconcileService.PurgeAccount(account); err != nil {
		sendServiceError(w, err)
		return
	}
	logger.L.Info("Account purged via API", "account", account)
	utils.SendJSON(w, map[string]string{"status": "purged"}, http.StatusOK)
}
