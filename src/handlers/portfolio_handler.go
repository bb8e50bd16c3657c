package handlers

import (
	"net/http"

	"github.com/username/lotfolio/src/models"
	"github.com/username/lotfolio/src/processors"
	"github.com/username/lotfolio/src/services"
	"github.com/username/lotfolio/src/utils"
)

type PortfolioHandler struct {
	reconcileService services.ReconcileService
}

func NewPortfolioHandler(service services.ReconcileService) *PortfolioHandler {
	return &PortfolioHandler{reconcileService: service}
}

type portfolioChangesRequest struct {
	Current  []models.Position `json:"current"`
	Previous []models.Position `json:"previous"`
	// Fine selects the fine-epsilon comparison used for re-uploads of the
	// same statement.
	Fine bool `json:"fine,omitempty"`
}

func (h *PortfolioHandler) HandleAnalyzeChanges(w http.ResponseWriter, r *http.Request) {
	var req portfolioChangesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	var changes *models.PortfolioChanges
	if req.Fine {
		changes = processors.ComparePortfolioSnapshots(req.Current, req.Previous)
	} else {
		changes = processors.AnalyzePortfolioChanges(req.Current, req.Previous)
	}
	utils.SendJSON(w, changes, http.StatusOK)
}

type enrichSnapshotRequest struct {
	Account   string            `json:"account"`
	Positions []models.Position `json:"positions"`
}

func (h *PortfolioHandler) HandleEnrichSnapshot(w http.ResponseWriter, r *http.Request) {
	var req enrichSnapshotRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !requireAccount(w, req.Account) {
		return
	}
	enriched, err := h.reconcileService.EnrichSnapshot(req.Account, req.Positions)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, enriched, http.StatusOK)
}
