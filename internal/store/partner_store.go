package store

import (
	"context"

	"blaffapay/internal/models"
)

type PartnerStore struct {
	db DB
}

func NewPartnerStore(db DB) *PartnerStore {
	return &PartnerStore{db: db}
}

func (s *PartnerStore) GetByID(ctx context.Context, partnerID string) (models.Partner, error) {
	var row models.Partner
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, is_active, balance, created_at, updated_at
		FROM partners
		WHERE id = $1
	`, partnerID)
	if err != nil {
		return models.Partner{}, err
	}
	return row, nil
}

func (s *PartnerStore) List(ctx context.Context, limit, offset int) ([]models.Partner, error) {
	var rows []models.Partner
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, is_active, balance, created_at, updated_at
		FROM partners
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *PartnerStore) AdjustBalance(ctx context.Context, tx Execer, partnerID string, delta int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE partners
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`, delta, partnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PartnerStore) SetActive(ctx context.Context, tx Execer, partnerID string, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE partners
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2
	`, active, partnerID)
	return err
}
