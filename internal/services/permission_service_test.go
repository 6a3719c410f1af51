package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"blaffapay/internal/models"
	"blaffapay/internal/store"
)

func newPermissionService(permissions stubPermissionStore, platforms stubPlatformStore) *PermissionService {
	return NewPermissionService(fakeTxRunner{}, permissions, platforms, stubAuditStore{})
}

func boundedPlatform() stubPlatformStore {
	return stubPlatformStore{
		getByIDFn: func(_ context.Context, platformID string) (models.Platform, error) {
			return models.Platform{
				ID:            platformID,
				IsActive:      true,
				MinDeposit:    1000,
				MaxDeposit:    100000,
				MinWithdrawal: 5000,
				MaxWithdrawal: 50000,
			}, nil
		},
	}
}

func allowAll() stubPermissionStore {
	return stubPermissionStore{
		getByPairFn: func(context.Context, string, string) (models.Permission, error) {
			return models.Permission{IsActive: true, CanDeposit: true, CanWithdraw: true}, nil
		},
	}
}

func TestAuthorizeAllowed(t *testing.T) {
	service := newPermissionService(allowAll(), boundedPlatform())
	decision, err := service.Authorize(context.Background(), "p1", "pl1", TypeDeposit, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allowed, got denial %q", decision.Reason)
	}
}

func TestAuthorizeDenialOrdering(t *testing.T) {
	// A missing permission outranks every other reason, an inactive
	// permission outranks the action flags, and the flags outrank bounds.
	tests := []struct {
		name       string
		permission models.Permission
		permErr    error
		txType     string
		amount     int64
		want       DenialReason
	}{
		{
			name:    "no permission",
			permErr: sql.ErrNoRows,
			txType:  TypeDeposit,
			amount:  1000,
			want:    DenialNoPermission,
		},
		{
			// Inactive and lacking the flag and out of bounds: inactive wins.
			name:       "inactive outranks flags and bounds",
			permission: models.Permission{IsActive: false, CanDeposit: false},
			txType:     TypeDeposit,
			amount:     999999,
			want:       DenialPermissionInactive,
		},
		{
			name:       "flag outranks bounds",
			permission: models.Permission{IsActive: true, CanDeposit: false},
			txType:     TypeDeposit,
			amount:     999999,
			want:       DenialActionNotAllowed,
		},
		{
			name:       "withdraw flag checked for withdrawals",
			permission: models.Permission{IsActive: true, CanDeposit: true, CanWithdraw: false},
			txType:     TypeWithdrawal,
			amount:     10000,
			want:       DenialActionNotAllowed,
		},
		{
			name:       "below minimum",
			permission: models.Permission{IsActive: true, CanDeposit: true, CanWithdraw: true},
			txType:     TypeDeposit,
			amount:     999,
			want:       DenialAmountOutOfBounds,
		},
		{
			name:       "above maximum",
			permission: models.Permission{IsActive: true, CanDeposit: true, CanWithdraw: true},
			txType:     TypeWithdrawal,
			amount:     50001,
			want:       DenialAmountOutOfBounds,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := newPermissionService(stubPermissionStore{
				getByPairFn: func(context.Context, string, string) (models.Permission, error) {
					if tc.permErr != nil {
						return models.Permission{}, tc.permErr
					}
					return tc.permission, nil
				},
			}, boundedPlatform())
			decision, err := service.Authorize(context.Background(), "p1", "pl1", tc.txType, tc.amount)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decision.Allowed {
				t.Fatal("expected denial")
			}
			if decision.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, decision.Reason)
			}
		})
	}
}

func TestAuthorizeBoundsInclusive(t *testing.T) {
	service := newPermissionService(allowAll(), boundedPlatform())
	for _, amount := range []int64{1000, 100000} {
		decision, err := service.Authorize(context.Background(), "p1", "pl1", TypeDeposit, amount)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected amount %d to pass the inclusive bounds, got %q", amount, decision.Reason)
		}
	}
}

func TestAuthorizeRejectsUnknownType(t *testing.T) {
	service := newPermissionService(allowAll(), boundedPlatform())
	if _, err := service.Authorize(context.Background(), "p1", "pl1", "transfer", 1000); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestGrantRejectsInactivePlatform(t *testing.T) {
	service := newPermissionService(stubPermissionStore{}, stubPlatformStore{
		getByIDFn: func(_ context.Context, platformID string) (models.Platform, error) {
			return models.Platform{ID: platformID, IsActive: false}, nil
		},
	})
	_, err := service.Grant(context.Background(), GrantRequest{PartnerID: "p1", PlatformID: "pl1", GrantedBy: "admin-1"})
	if !errors.Is(err, ErrPlatformInactive) {
		t.Fatalf("expected ErrPlatformInactive, got %v", err)
	}
}

func TestGrantRejectsDuplicate(t *testing.T) {
	service := newPermissionService(stubPermissionStore{
		getByPairFn: func(context.Context, string, string) (models.Permission, error) {
			return models.Permission{ID: "perm-1"}, nil
		},
	}, boundedPlatform())
	_, err := service.Grant(context.Background(), GrantRequest{PartnerID: "p1", PlatformID: "pl1", GrantedBy: "admin-1"})
	if !errors.Is(err, ErrDuplicatePermission) {
		t.Fatalf("expected ErrDuplicatePermission, got %v", err)
	}
}

func TestGrantCreatesAndAudits(t *testing.T) {
	var created, audited bool
	service := NewPermissionService(fakeTxRunner{}, stubPermissionStore{
		getByPairFn: func(context.Context, string, string) (models.Permission, error) {
			return models.Permission{}, sql.ErrNoRows
		},
		createFn: func(_ context.Context, _ store.Execer, input store.PermissionInput) error {
			created = true
			if input.PartnerID != "p1" || !input.CanDeposit {
				t.Fatalf("unexpected input: %+v", input)
			}
			return nil
		},
	}, boundedPlatform(), stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, actorID, action, _, _, _ string) error {
			audited = true
			if actorID != "admin-1" || action != "grant_permission" {
				t.Fatalf("unexpected audit: %s %s", actorID, action)
			}
			return nil
		},
	})
	_, err := service.Grant(context.Background(), GrantRequest{PartnerID: "p1", PlatformID: "pl1", CanDeposit: true, GrantedBy: "admin-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || !audited {
		t.Fatalf("expected create and audit, got created=%v audited=%v", created, audited)
	}
}

func TestUpdateNotFound(t *testing.T) {
	service := newPermissionService(stubPermissionStore{
		updateFn: func(context.Context, store.Execer, string, store.PermissionUpdate) (int64, error) {
			return 0, nil
		},
	}, boundedPlatform())
	if _, err := service.Update(context.Background(), "perm-404", store.PermissionUpdate{}, "admin-1"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}
