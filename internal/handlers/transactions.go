package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"blaffapay/internal/lifecycle"
	"blaffapay/internal/middleware"
	"blaffapay/internal/services"
	"blaffapay/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

type settleRequest struct {
	PartnerID  string `json:"partner_id"`
	PlatformID string `json:"platform_id"`
	Type       string `json:"type"`
	Amount     string `json:"amount"`
	Reference  string `json:"reference"`
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txn, err := h.settlements.Settle(r.Context(), services.SettleRequest{
		PartnerID:   req.PartnerID,
		PlatformID:  req.PlatformID,
		Type:        req.Type,
		AmountMinor: amountMinor,
		Reference:   req.Reference,
		RequestedBy: actorID,
	})
	if err != nil {
		var denial *services.DenialError
		switch {
		case errors.As(err, &denial):
			respondJSON(w, http.StatusForbidden, map[string]any{
				"error":  "denied",
				"reason": denial.Reason,
			})
		case errors.Is(err, services.ErrInvalidAmount):
			respondError(w, http.StatusBadRequest, "invalid_amount")
		case errors.Is(err, services.ErrInvalidType):
			respondError(w, http.StatusBadRequest, "invalid_type")
		case errors.Is(err, services.ErrPartnerNotFound):
			respondError(w, http.StatusNotFound, "partner_not_found")
		case errors.Is(err, services.ErrPartnerInactive):
			respondError(w, http.StatusBadRequest, "partner_inactive")
		case errors.Is(err, services.ErrPlatformNotFound):
			respondError(w, http.StatusNotFound, "platform_not_found")
		default:
			if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
				respondError(w, http.StatusConflict, "duplicate_reference")
				return
			}
			respondError(w, http.StatusInternalServerError, "settle_failed")
		}
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	status := query.Get("status")
	if status != "" && !lifecycle.IsKnown(lifecycle.Status(status)) {
		respondError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	transactions, err := h.settlements.List(r.Context(), store.TransactionFilter{
		PartnerID: query.Get("partner_id"),
		Type:      query.Get("type"),
		Status:    status,
	}, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.settlements.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			respondError(w, http.StatusNotFound, "transaction_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load transaction")
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

type transactionActionRequest struct {
	Reason     string  `json:"reason"`
	ExternalID *string `json:"external_id"`
}

func (h *Handler) MarkTransactionSuccess(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transactionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txn, err := h.settlements.MarkSuccess(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID, req.ExternalID)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *Handler) MarkTransactionFailed(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transactionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txn, err := h.settlements.MarkFailed(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transactionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txn, err := h.settlements.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *Handler) RetryTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transactionActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txn, err := h.settlements.Retry(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID)
	if err != nil {
		if errors.Is(err, services.ErrRetryLimitExceeded) {
			respondError(w, http.StatusBadRequest, "retry_limit_exceeded")
			return
		}
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

type processCancellationRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

func (h *Handler) ProcessCancellation(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req processCancellationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	txn, err := h.settlements.ProcessCancellation(r.Context(), chi.URLParam(r, "id"), req.Approve, req.Notes, actorID)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func respondTransitionError(w http.ResponseWriter, err error) {
	var transition *lifecycle.TransitionError
	var dependency *services.DependencyError
	switch {
	case errors.Is(err, services.ErrTransactionNotFound), errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, "transaction_not_found")
	case errors.Is(err, services.ErrReasonRequired):
		respondError(w, http.StatusBadRequest, "reason_required")
	case errors.Is(err, services.ErrConcurrentUpdate):
		respondError(w, http.StatusConflict, "concurrent_update")
	case errors.As(err, &transition):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "invalid_transition",
			"status": string(transition.From),
			"action": string(transition.Action),
		})
	case errors.As(err, &dependency):
		respondError(w, http.StatusBadGateway, "payment_network_unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "transaction_update_failed")
	}
}
