package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"blaffapay/internal/models"
	"blaffapay/internal/services"
	"blaffapay/internal/store"
)

func TestGrantPermissionCreated(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		permissions: stubPermissionService{
			grantFn: func(_ context.Context, req services.GrantRequest) (models.Permission, error) {
				if req.GrantedBy != "admin-1" {
					t.Fatalf("expected granted_by admin-1, got %q", req.GrantedBy)
				}
				return models.Permission{ID: "perm-1", PartnerID: req.PartnerID, PlatformID: req.PlatformID}, nil
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","can_deposit":true}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/permissions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGrantPermissionDuplicate(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		permissions: stubPermissionService{
			grantFn: func(context.Context, services.GrantRequest) (models.Permission, error) {
				return models.Permission{}, services.ErrDuplicatePermission
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/permissions", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestUpdatePermissionNotFound(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		permissions: stubPermissionService{
			updateFn: func(context.Context, string, store.PermissionUpdate, string) (models.Permission, error) {
				return models.Permission{}, services.ErrPermissionNotFound
			},
		},
	})
	body := []byte(`{"is_active":false}`)
	rr := doAdminRequest(t, handler, http.MethodPut, "/admin/permissions/perm-404", body)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCheckPermissionDenied(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		permissions: stubPermissionService{
			authorizeFn: func(_ context.Context, partnerID, platformID, txType string, amountMinor int64) (services.Decision, error) {
				return services.Decision{Allowed: false, Reason: services.DenialAmountOutOfBounds}, nil
			},
		},
	})
	body := []byte(`{"partner_id":"p1","platform_id":"pl1","type":"withdrawal","amount":"999999.00"}`)
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/permissions/check", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var decision services.Decision
	if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if decision.Reason != services.DenialAmountOutOfBounds {
		t.Fatalf("unexpected reason: %q", decision.Reason)
	}
}
