package store

import (
	"context"

	"blaffapay/internal/models"
)

// AccountStore writes the append-only entries behind every partner balance
// change. Balances are never set directly; they move by entry plus an
// AdjustBalance on the partner row inside the same database transaction.
type AccountStore struct {
	db DB
}

type AccountEntryInput struct {
	ID        string
	PartnerID string
	Amount    int64
	Reference string
	Reason    string
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// InsertEntry is idempotent per (partner, reference): a replayed credit hits
// the unique index, inserts nothing, and reports zero rows so the caller can
// skip the balance adjustment.
func (s *AccountStore) InsertEntry(ctx context.Context, tx Execer, input AccountEntryInput) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO account_entries (id, partner_id, amount, reference, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (partner_id, reference) DO NOTHING
	`, input.ID, input.PartnerID, input.Amount, input.Reference, input.Reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *AccountStore) GetByReference(ctx context.Context, partnerID, reference string) (models.AccountEntry, error) {
	var row models.AccountEntry
	err := s.db.GetContext(ctx, &row, `
		SELECT id, partner_id, amount, reference, reason, created_at
		FROM account_entries
		WHERE partner_id = $1 AND reference = $2
	`, partnerID, reference)
	if err != nil {
		return models.AccountEntry{}, err
	}
	return row, nil
}

func (s *AccountStore) ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.AccountEntry, error) {
	var rows []models.AccountEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, partner_id, amount, reference, reason, created_at
		FROM account_entries
		WHERE partner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, partnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) SumByPartner(ctx context.Context, partnerID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM account_entries
		WHERE partner_id = $1
	`, partnerID)
	return sum, err
}
