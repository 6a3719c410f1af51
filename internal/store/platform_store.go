package store

import (
	"context"

	"blaffapay/internal/models"
)

type PlatformStore struct {
	db DB
}

type PlatformInput struct {
	ID            string
	ExternalID    string
	Name          string
	IsActive      bool
	MinDeposit    int64
	MaxDeposit    int64
	MinWithdrawal int64
	MaxWithdrawal int64
}

type PlatformUpdate struct {
	Name          *string
	IsActive      *bool
	MinDeposit    *int64
	MaxDeposit    *int64
	MinWithdrawal *int64
	MaxWithdrawal *int64
}

func NewPlatformStore(db DB) *PlatformStore {
	return &PlatformStore{db: db}
}

func (s *PlatformStore) Create(ctx context.Context, tx Execer, input PlatformInput) error {
	query := `
		INSERT INTO platforms (id, external_id, name, is_active, min_deposit, max_deposit, min_withdrawal, max_withdrawal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.ExternalID, input.Name, input.IsActive,
		input.MinDeposit, input.MaxDeposit, input.MinWithdrawal, input.MaxWithdrawal,
	)
	return err
}

func (s *PlatformStore) GetByID(ctx context.Context, platformID string) (models.Platform, error) {
	var row models.Platform
	err := s.db.GetContext(ctx, &row, `
		SELECT id, external_id, name, is_active, min_deposit, max_deposit, min_withdrawal, max_withdrawal, created_at, updated_at
		FROM platforms
		WHERE id = $1
	`, platformID)
	if err != nil {
		return models.Platform{}, err
	}
	return row, nil
}

func (s *PlatformStore) List(ctx context.Context, limit, offset int) ([]models.Platform, error) {
	var rows []models.Platform
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, external_id, name, is_active, min_deposit, max_deposit, min_withdrawal, max_withdrawal, created_at, updated_at
		FROM platforms
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PlatformStore) Update(ctx context.Context, tx Execer, platformID string, update PlatformUpdate) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE platforms
		SET name = COALESCE($1, name),
		    is_active = COALESCE($2, is_active),
		    min_deposit = COALESCE($3, min_deposit),
		    max_deposit = COALESCE($4, max_deposit),
		    min_withdrawal = COALESCE($5, min_withdrawal),
		    max_withdrawal = COALESCE($6, max_withdrawal),
		    updated_at = NOW()
		WHERE id = $7
	`, update.Name, update.IsActive, update.MinDeposit, update.MaxDeposit, update.MinWithdrawal, update.MaxWithdrawal, platformID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
