package handlers

import (
	"context"
	"net/http"
	"testing"

	"blaffapay/internal/models"
	"blaffapay/internal/store"
)

func boundedStubPlatform(platformID string) models.Platform {
	return models.Platform{
		ID:            platformID,
		ExternalID:    "ext-pl1",
		Name:          "platform one",
		IsActive:      true,
		MinDeposit:    1000,
		MaxDeposit:    5000,
		MinWithdrawal: 2000,
		MaxWithdrawal: 8000,
	}
}

func TestUpdatePlatformRejectsMinAboveMax(t *testing.T) {
	var updated bool
	handler := newTestHandler(handlerDeps{
		platforms: stubPlatformStore{
			getByIDFn: func(_ context.Context, platformID string) (models.Platform, error) {
				return boundedStubPlatform(platformID), nil
			},
			updateFn: func(context.Context, store.Execer, string, store.PlatformUpdate) (int64, error) {
				updated = true
				return 1, nil
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodPut, "/admin/platforms/pl1",
		[]byte(`{"min_deposit":"100.00"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if updated {
		t.Fatal("update raising min above the stored max must not reach the store")
	}
}

func TestUpdatePlatformChecksMergedBounds(t *testing.T) {
	// Raising both deposit bounds together keeps the pair valid even when
	// the new min exceeds the old max.
	var gotUpdate store.PlatformUpdate
	handler := newTestHandler(handlerDeps{
		platforms: stubPlatformStore{
			getByIDFn: func(_ context.Context, platformID string) (models.Platform, error) {
				return boundedStubPlatform(platformID), nil
			},
			updateFn: func(_ context.Context, _ store.Execer, _ string, update store.PlatformUpdate) (int64, error) {
				gotUpdate = update
				return 1, nil
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodPut, "/admin/platforms/pl1",
		[]byte(`{"min_deposit":"100.00","max_deposit":"200.00"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUpdate.MinDeposit == nil || *gotUpdate.MinDeposit != 10000 {
		t.Fatalf("unexpected min_deposit update: %#v", gotUpdate.MinDeposit)
	}
	if gotUpdate.MaxDeposit == nil || *gotUpdate.MaxDeposit != 20000 {
		t.Fatalf("unexpected max_deposit update: %#v", gotUpdate.MaxDeposit)
	}
}

func TestUpdatePlatformRejectsInvertedWithdrawalBounds(t *testing.T) {
	handler := newTestHandler(handlerDeps{
		platforms: stubPlatformStore{
			getByIDFn: func(_ context.Context, platformID string) (models.Platform, error) {
				return boundedStubPlatform(platformID), nil
			},
		},
	})
	rr := doAdminRequest(t, handler, http.MethodPut, "/admin/platforms/pl1",
		[]byte(`{"max_withdrawal":"10.00"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreatePlatformRejectsInvertedBounds(t *testing.T) {
	handler := newTestHandler(handlerDeps{})
	rr := doAdminRequest(t, handler, http.MethodPost, "/admin/platforms",
		[]byte(`{"external_id":"ext-1","name":"p","min_deposit":"50.00","max_deposit":"10.00","min_withdrawal":"1.00","max_withdrawal":"2.00"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}
