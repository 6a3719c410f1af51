package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blaffapay/internal/middleware"
	"blaffapay/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetCommissionConfig(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "id")
	depositRate, withdrawalRate, err := h.commissions.EffectiveRates(r.Context(), partnerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load commission config")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"partner_id":      partnerID,
		"deposit_rate":    depositRate.StringFixed(2),
		"withdrawal_rate": withdrawalRate.StringFixed(2),
	})
}

type upsertCommissionConfigRequest struct {
	DepositRate    string `json:"deposit_rate"`
	WithdrawalRate string `json:"withdrawal_rate"`
}

func (h *Handler) UpsertCommissionConfig(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req upsertCommissionConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	depositRate, err := parseRate(req.DepositRate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_deposit_rate")
		return
	}
	withdrawalRate, err := parseRate(req.WithdrawalRate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_withdrawal_rate")
		return
	}
	cfg, err := h.commissions.Upsert(r.Context(), chi.URLParam(r, "id"), depositRate, withdrawalRate, actorID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRate) {
			respondError(w, http.StatusBadRequest, "rate_out_of_range")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to save commission config")
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) PartnerCommissionStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var from, to *time.Time
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = &parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		to = &parsed
	}
	stats, err := h.ledger.PartnerStats(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load commission stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type payCommissionsRequest struct {
	PartnerID      string   `json:"partner_id"`
	TransactionIDs []string `json:"transaction_ids"`
	AdminNotes     string   `json:"admin_notes"`
}

func (h *Handler) PayCommissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req payCommissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	payout, err := h.ledger.PayCommissions(r.Context(), services.PayoutRequest{
		PartnerID:      req.PartnerID,
		TransactionIDs: req.TransactionIDs,
		AdminNotes:     req.AdminNotes,
		PaidBy:         actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrReasonRequired):
			respondError(w, http.StatusBadRequest, "admin_notes_required")
		case errors.Is(err, services.ErrPartnerNotFound):
			respondError(w, http.StatusNotFound, "partner_not_found")
		case errors.Is(err, services.ErrNothingToPay):
			respondError(w, http.StatusBadRequest, "nothing_to_pay")
		case errors.Is(err, services.ErrUnpayableTransaction):
			respondError(w, http.StatusBadRequest, "unpayable_transaction")
		case errors.Is(err, services.ErrConcurrentUpdate):
			respondError(w, http.StatusConflict, "concurrent_update")
		default:
			respondError(w, http.StatusInternalServerError, "payout_failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, payout)
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	payouts, err := h.ledger.ListPayouts(r.Context(), chi.URLParam(r, "id"), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load payouts")
		return
	}
	respondJSON(w, http.StatusOK, payouts)
}

func (h *Handler) ListAccountEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	partnerID := chi.URLParam(r, "id")
	entries, err := h.accounts.ListByPartner(r.Context(), partnerID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load account entries")
		return
	}
	total, err := h.accounts.SumByPartner(r.Context(), partnerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load account entries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}
