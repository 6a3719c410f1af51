package store

import (
	"context"

	"blaffapay/internal/models"
)

type PermissionStore struct {
	db DB
}

type PermissionInput struct {
	ID          string
	PartnerID   string
	PlatformID  string
	CanDeposit  bool
	CanWithdraw bool
	GrantedBy   string
}

// PermissionUpdate carries a partial update; nil fields are left unchanged.
// There is deliberately no delete: permissions are soft-deactivated only so
// past transactions keep their audit trail.
type PermissionUpdate struct {
	CanDeposit  *bool
	CanWithdraw *bool
	IsActive    *bool
}

func NewPermissionStore(db DB) *PermissionStore {
	return &PermissionStore{db: db}
}

func (s *PermissionStore) Create(ctx context.Context, tx Execer, input PermissionInput) error {
	query := `
		INSERT INTO permissions (id, partner_id, platform_id, can_deposit, can_withdraw, is_active, granted_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.PartnerID, input.PlatformID, input.CanDeposit, input.CanWithdraw, input.GrantedBy,
	)
	return err
}

func (s *PermissionStore) GetByPair(ctx context.Context, partnerID, platformID string) (models.Permission, error) {
	var row models.Permission
	err := s.db.GetContext(ctx, &row, `
		SELECT id, partner_id, platform_id, can_deposit, can_withdraw, is_active, granted_by, created_at, updated_at
		FROM permissions
		WHERE partner_id = $1 AND platform_id = $2
	`, partnerID, platformID)
	if err != nil {
		return models.Permission{}, err
	}
	return row, nil
}

func (s *PermissionStore) GetByID(ctx context.Context, permissionID string) (models.Permission, error) {
	var row models.Permission
	err := s.db.GetContext(ctx, &row, `
		SELECT id, partner_id, platform_id, can_deposit, can_withdraw, is_active, granted_by, created_at, updated_at
		FROM permissions
		WHERE id = $1
	`, permissionID)
	if err != nil {
		return models.Permission{}, err
	}
	return row, nil
}

func (s *PermissionStore) ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error) {
	var rows []models.Permission
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, partner_id, platform_id, can_deposit, can_withdraw, is_active, granted_by, created_at, updated_at
		FROM permissions
		WHERE partner_id = $1
		ORDER BY created_at DESC
	`, partnerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PermissionStore) Update(ctx context.Context, tx Execer, permissionID string, update PermissionUpdate) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE permissions
		SET can_deposit = COALESCE($1, can_deposit),
		    can_withdraw = COALESCE($2, can_withdraw),
		    is_active = COALESCE($3, is_active),
		    updated_at = NOW()
		WHERE id = $4
	`, update.CanDeposit, update.CanWithdraw, update.IsActive, permissionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
