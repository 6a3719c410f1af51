package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"blaffapay/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type createPlatformRequest struct {
	ExternalID    string `json:"external_id"`
	Name          string `json:"name"`
	IsActive      *bool  `json:"is_active"`
	MinDeposit    string `json:"min_deposit"`
	MaxDeposit    string `json:"max_deposit"`
	MinWithdrawal string `json:"min_withdrawal"`
	MaxWithdrawal string `json:"max_withdrawal"`
}

func (h *Handler) CreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req createPlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ExternalID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "external_id and name are required")
		return
	}
	bounds := [4]int64{}
	for i, raw := range []string{req.MinDeposit, req.MaxDeposit, req.MinWithdrawal, req.MaxWithdrawal} {
		value, err := parseAmountMinor(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_bounds")
			return
		}
		bounds[i] = value
	}
	if bounds[0] > bounds[1] || bounds[2] > bounds[3] {
		respondError(w, http.StatusBadRequest, "invalid_bounds")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	platformID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.platforms.Create(r.Context(), tx, store.PlatformInput{
			ID:            platformID,
			ExternalID:    req.ExternalID,
			Name:          req.Name,
			IsActive:      active,
			MinDeposit:    bounds[0],
			MaxDeposit:    bounds[1],
			MinWithdrawal: bounds[2],
			MaxWithdrawal: bounds[3],
		})
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "platform_exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to create platform")
		return
	}
	platform, err := h.platforms.GetByID(r.Context(), platformID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create platform")
		return
	}
	respondJSON(w, http.StatusCreated, platform)
}

type updatePlatformRequest struct {
	Name          *string `json:"name"`
	IsActive      *bool   `json:"is_active"`
	MinDeposit    *string `json:"min_deposit"`
	MaxDeposit    *string `json:"max_deposit"`
	MinWithdrawal *string `json:"min_withdrawal"`
	MaxWithdrawal *string `json:"max_withdrawal"`
}

func (h *Handler) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	var req updatePlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	update := store.PlatformUpdate{
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	for _, field := range []struct {
		raw  *string
		dest **int64
	}{
		{req.MinDeposit, &update.MinDeposit},
		{req.MaxDeposit, &update.MaxDeposit},
		{req.MinWithdrawal, &update.MinWithdrawal},
		{req.MaxWithdrawal, &update.MaxWithdrawal},
	} {
		if field.raw == nil {
			continue
		}
		value, err := parseAmountMinor(*field.raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_bounds")
			return
		}
		*field.dest = &value
	}
	platformID := chi.URLParam(r, "id")
	current, err := h.platforms.GetByID(r.Context(), platformID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "platform_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update platform")
		return
	}
	// A partial update must not leave either bound pair inverted, so the
	// check runs against the merged result, not the request alone.
	minDeposit, maxDeposit := current.MinDeposit, current.MaxDeposit
	minWithdrawal, maxWithdrawal := current.MinWithdrawal, current.MaxWithdrawal
	if update.MinDeposit != nil {
		minDeposit = *update.MinDeposit
	}
	if update.MaxDeposit != nil {
		maxDeposit = *update.MaxDeposit
	}
	if update.MinWithdrawal != nil {
		minWithdrawal = *update.MinWithdrawal
	}
	if update.MaxWithdrawal != nil {
		maxWithdrawal = *update.MaxWithdrawal
	}
	if minDeposit > maxDeposit || minWithdrawal > maxWithdrawal {
		respondError(w, http.StatusBadRequest, "invalid_bounds")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		rows, err := h.platforms.Update(r.Context(), tx, platformID, update)
		if err != nil {
			return err
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "platform_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update platform")
		return
	}
	platform, err := h.platforms.GetByID(r.Context(), platformID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update platform")
		return
	}
	respondJSON(w, http.StatusOK, platform)
}

func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	platforms, err := h.platforms.List(r.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load platforms")
		return
	}
	respondJSON(w, http.StatusOK, platforms)
}
