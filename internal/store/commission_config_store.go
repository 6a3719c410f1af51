package store

import (
	"context"

	"blaffapay/internal/models"
)

type CommissionConfigStore struct {
	db DB
}

func NewCommissionConfigStore(db DB) *CommissionConfigStore {
	return &CommissionConfigStore{db: db}
}

func (s *CommissionConfigStore) GetByPartner(ctx context.Context, partnerID string) (models.CommissionConfig, error) {
	var row models.CommissionConfig
	err := s.db.GetContext(ctx, &row, `
		SELECT partner_id, deposit_rate, withdrawal_rate, updated_by, updated_at
		FROM commission_configs
		WHERE partner_id = $1
	`, partnerID)
	if err != nil {
		return models.CommissionConfig{}, err
	}
	return row, nil
}

// Upsert keeps one row per partner; a second configuration replaces the first
// in place. Historical rates live on the transactions they were frozen onto.
func (s *CommissionConfigStore) Upsert(ctx context.Context, tx Execer, partnerID, depositRate, withdrawalRate, updatedBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commission_configs (partner_id, deposit_rate, withdrawal_rate, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (partner_id) DO UPDATE
		SET deposit_rate = EXCLUDED.deposit_rate,
		    withdrawal_rate = EXCLUDED.withdrawal_rate,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = NOW()
	`, partnerID, depositRate, withdrawalRate, updatedBy)
	return err
}
