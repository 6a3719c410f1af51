package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"blaffapay/internal/db"
	"blaffapay/internal/models"
	"blaffapay/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
)

type PermissionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PermissionInput) error
	GetByPair(ctx context.Context, partnerID, platformID string) (models.Permission, error)
	GetByID(ctx context.Context, permissionID string) (models.Permission, error)
	ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error)
	Update(ctx context.Context, tx store.Execer, permissionID string, update store.PermissionUpdate) (int64, error)
}

type PlatformStore interface {
	GetByID(ctx context.Context, platformID string) (models.Platform, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// Decision is the outcome of an authorization check. The check is pure:
// callers must re-run it at the moment funds actually move, because
// permissions can be revoked between admin action and settlement.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenialReason `json:"reason,omitempty"`
}

type PermissionService struct {
	txRunner    db.TxRunner
	permissions PermissionStore
	platforms   PlatformStore
	audit       AuditStore
}

func NewPermissionService(txRunner db.TxRunner, permissions PermissionStore, platforms PlatformStore, audit AuditStore) *PermissionService {
	return &PermissionService{
		txRunner:    txRunner,
		permissions: permissions,
		platforms:   platforms,
		audit:       audit,
	}
}

type GrantRequest struct {
	PartnerID   string
	PlatformID  string
	CanDeposit  bool
	CanWithdraw bool
	GrantedBy   string
}

func (s *PermissionService) Grant(ctx context.Context, req GrantRequest) (models.Permission, error) {
	platform, err := s.platforms.GetByID(ctx, req.PlatformID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Permission{}, ErrPlatformNotFound
		}
		return models.Permission{}, err
	}
	if !platform.IsActive {
		return models.Permission{}, ErrPlatformInactive
	}
	if _, err := s.permissions.GetByPair(ctx, req.PartnerID, req.PlatformID); err == nil {
		return models.Permission{}, ErrDuplicatePermission
	} else if !errors.Is(err, sql.ErrNoRows) {
		return models.Permission{}, err
	}

	permissionID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.permissions.Create(ctx, tx, store.PermissionInput{
			ID:          permissionID,
			PartnerID:   req.PartnerID,
			PlatformID:  req.PlatformID,
			CanDeposit:  req.CanDeposit,
			CanWithdraw: req.CanWithdraw,
			GrantedBy:   req.GrantedBy,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"partner_id":   req.PartnerID,
			"platform_id":  req.PlatformID,
			"can_deposit":  req.CanDeposit,
			"can_withdraw": req.CanWithdraw,
		})
		return s.audit.Log(ctx, tx, req.GrantedBy, "grant_permission", "permission", permissionID, string(data))
	})
	if err != nil {
		// The unique index catches the race where two admins grant at once.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.Permission{}, ErrDuplicatePermission
		}
		return models.Permission{}, err
	}
	return s.permissions.GetByID(ctx, permissionID)
}

// Authorize checks, in priority order: permission existence, permission
// active flag, the action flag, then the platform's amount bounds. Bounds are
// inclusive at both ends. Read-only, no caching.
func (s *PermissionService) Authorize(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (Decision, error) {
	if txType != TypeDeposit && txType != TypeWithdrawal {
		return Decision{}, ErrInvalidType
	}
	permission, err := s.permissions.GetByPair(ctx, partnerID, platformID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decision{Reason: DenialNoPermission}, nil
		}
		return Decision{}, err
	}
	if !permission.IsActive {
		return Decision{Reason: DenialPermissionInactive}, nil
	}
	if txType == TypeDeposit && !permission.CanDeposit {
		return Decision{Reason: DenialActionNotAllowed}, nil
	}
	if txType == TypeWithdrawal && !permission.CanWithdraw {
		return Decision{Reason: DenialActionNotAllowed}, nil
	}
	platform, err := s.platforms.GetByID(ctx, platformID)
	if err != nil {
		return Decision{}, err
	}
	min, max := platform.MinDeposit, platform.MaxDeposit
	if txType == TypeWithdrawal {
		min, max = platform.MinWithdrawal, platform.MaxWithdrawal
	}
	if amountMinor < min || amountMinor > max {
		return Decision{Reason: DenialAmountOutOfBounds}, nil
	}
	return Decision{Allowed: true}, nil
}

func (s *PermissionService) Update(ctx context.Context, permissionID string, update store.PermissionUpdate, updatedBy string) (models.Permission, error) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.permissions.Update(ctx, tx, permissionID, update)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPermissionNotFound
		}
		data, _ := json.Marshal(map[string]any{
			"can_deposit":  update.CanDeposit,
			"can_withdraw": update.CanWithdraw,
			"is_active":    update.IsActive,
		})
		return s.audit.Log(ctx, tx, updatedBy, "update_permission", "permission", permissionID, string(data))
	})
	if err != nil {
		return models.Permission{}, err
	}
	return s.permissions.GetByID(ctx, permissionID)
}

func (s *PermissionService) ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error) {
	return s.permissions.ListByPartner(ctx, partnerID)
}
