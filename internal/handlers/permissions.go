package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"blaffapay/internal/middleware"
	"blaffapay/internal/services"
	"blaffapay/internal/store"

	"github.com/go-chi/chi/v5"
)

type grantPermissionRequest struct {
	PartnerID   string `json:"partner_id"`
	PlatformID  string `json:"platform_id"`
	CanDeposit  bool   `json:"can_deposit"`
	CanWithdraw bool   `json:"can_withdraw"`
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.PartnerID == "" || req.PlatformID == "" {
		respondError(w, http.StatusBadRequest, "partner_id and platform_id are required")
		return
	}
	permission, err := h.permissions.Grant(r.Context(), services.GrantRequest{
		PartnerID:   req.PartnerID,
		PlatformID:  req.PlatformID,
		CanDeposit:  req.CanDeposit,
		CanWithdraw: req.CanWithdraw,
		GrantedBy:   actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPlatformNotFound):
			respondError(w, http.StatusNotFound, "platform_not_found")
		case errors.Is(err, services.ErrPlatformInactive):
			respondError(w, http.StatusBadRequest, "platform_inactive")
		case errors.Is(err, services.ErrDuplicatePermission):
			respondError(w, http.StatusConflict, "permission_exists")
		default:
			respondError(w, http.StatusInternalServerError, "unable to grant permission")
		}
		return
	}
	respondJSON(w, http.StatusCreated, permission)
}

type updatePermissionRequest struct {
	CanDeposit  *bool `json:"can_deposit"`
	CanWithdraw *bool `json:"can_withdraw"`
	IsActive    *bool `json:"is_active"`
}

func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	permission, err := h.permissions.Update(r.Context(), chi.URLParam(r, "id"), store.PermissionUpdate{
		CanDeposit:  req.CanDeposit,
		CanWithdraw: req.CanWithdraw,
		IsActive:    req.IsActive,
	}, actorID)
	if err != nil {
		if errors.Is(err, services.ErrPermissionNotFound) {
			respondError(w, http.StatusNotFound, "permission_not_found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update permission")
		return
	}
	respondJSON(w, http.StatusOK, permission)
}

type checkPermissionRequest struct {
	PartnerID  string `json:"partner_id"`
	PlatformID string `json:"platform_id"`
	Type       string `json:"type"`
	Amount     string `json:"amount"`
}

// CheckPermission runs the authorization decision without creating anything.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	decision, err := h.permissions.Authorize(r.Context(), req.PartnerID, req.PlatformID, req.Type, amountMinor)
	if err != nil {
		if errors.Is(err, services.ErrInvalidType) {
			respondError(w, http.StatusBadRequest, "invalid_type")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to check permission")
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (h *Handler) ListPartnerPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.permissions.ListByPartner(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load permissions")
		return
	}
	respondJSON(w, http.StatusOK, permissions)
}
