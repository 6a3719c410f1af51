package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"blaffapay/internal/services"
)

type paymentCallback struct {
	TransactionID string  `json:"transaction_id"`
	Reference     string  `json:"reference"`
	ExternalID    *string `json:"external_id"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason"`
}

// PaymentCallback receives asynchronous settlement results from the payment
// network. Replays of an already applied result are acknowledged, not errors.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Callback-Token")
	if h.cfg.CallbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.CallbackToken)) != 1 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req paymentCallback
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	transactionID := req.TransactionID
	if transactionID == "" {
		if req.Reference == "" {
			respondError(w, http.StatusBadRequest, "transaction_id or reference is required")
			return
		}
		txn, err := h.transactions.GetByReference(r.Context(), req.Reference)
		if err != nil {
			respondError(w, http.StatusNotFound, "transaction_not_found")
			return
		}
		transactionID = txn.ID
	}

	reason := req.Reason
	var err error
	switch req.Status {
	case "processing":
		_, err = h.settlements.MarkProcessing(r.Context(), transactionID)
	case "success":
		if reason == "" {
			reason = "payment network confirmed"
		}
		_, err = h.settlements.MarkSuccess(r.Context(), transactionID, reason, "payment-network", req.ExternalID)
	case "failed":
		if reason == "" {
			reason = "payment network reported failure"
		}
		_, err = h.settlements.MarkFailed(r.Context(), transactionID, reason, "payment-network")
	default:
		respondError(w, http.StatusBadRequest, "unknown_status")
		return
	}
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			respondError(w, http.StatusNotFound, "transaction_not_found")
			return
		}
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
