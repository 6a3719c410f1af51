package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	partners, err := h.partners.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load partners")
		return
	}
	respondJSON(w, http.StatusOK, partners)
}

func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	partner, err := h.partners.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "partner_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load partner")
		return
	}
	respondJSON(w, http.StatusOK, partner)
}

type setPartnerActiveRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *Handler) SetPartnerActive(w http.ResponseWriter, r *http.Request) {
	var req setPartnerActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	partnerID := chi.URLParam(r, "id")
	if _, err := h.partners.GetByID(r.Context(), partnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "partner_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load partner")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.partners.SetActive(r.Context(), tx, partnerID, req.IsActive)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update partner")
		return
	}
	partner, err := h.partners.GetByID(r.Context(), partnerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update partner")
		return
	}
	respondJSON(w, http.StatusOK, partner)
}
