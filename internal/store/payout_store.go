package store

import (
	"context"
	"time"

	"blaffapay/internal/models"

	"github.com/lib/pq"
)

type PayoutStore struct {
	db DB
}

type PayoutInput struct {
	ID             string
	PartnerID      string
	TransactionIDs []string
	TotalAmount    int64
	AdminNotes     string
	PaidBy         string
}

type payoutRow struct {
	ID             string         `db:"id"`
	PartnerID      string         `db:"partner_id"`
	TransactionIDs pq.StringArray `db:"transaction_ids"`
	TotalAmount    int64          `db:"total_amount"`
	AdminNotes     string         `db:"admin_notes"`
	PaidBy         string         `db:"paid_by"`
	PaidAt         time.Time      `db:"paid_at"`
}

func NewPayoutStore(db DB) *PayoutStore {
	return &PayoutStore{db: db}
}

func (s *PayoutStore) Create(ctx context.Context, tx Execer, input PayoutInput) error {
	query := `
		INSERT INTO commission_payouts (id, partner_id, transaction_ids, total_amount, admin_notes, paid_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.PartnerID, pq.Array(input.TransactionIDs), input.TotalAmount, input.AdminNotes, input.PaidBy,
	)
	return err
}

func (s *PayoutStore) GetByID(ctx context.Context, payoutID string) (models.CommissionPayout, error) {
	var row models.CommissionPayout
	err := s.db.GetContext(ctx, &row, `
		SELECT id, partner_id, total_amount, admin_notes, paid_by, paid_at
		FROM commission_payouts
		WHERE id = $1
	`, payoutID)
	if err != nil {
		return models.CommissionPayout{}, err
	}
	ids, err := s.transactionIDs(ctx, payoutID)
	if err != nil {
		return models.CommissionPayout{}, err
	}
	row.TransactionIDs = ids
	return row, nil
}

func (s *PayoutStore) ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error) {
	var rows []payoutRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, partner_id, transaction_ids, total_amount, admin_notes, paid_by, paid_at
		FROM commission_payouts
		WHERE partner_id = $1
		ORDER BY paid_at DESC
		LIMIT $2 OFFSET $3
	`, partnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	payouts := make([]models.CommissionPayout, 0, len(rows))
	for _, row := range rows {
		payouts = append(payouts, models.CommissionPayout{
			ID:             row.ID,
			PartnerID:      row.PartnerID,
			TransactionIDs: []string(row.TransactionIDs),
			TotalAmount:    row.TotalAmount,
			AdminNotes:     row.AdminNotes,
			PaidBy:         row.PaidBy,
			PaidAt:         row.PaidAt,
		})
	}
	return payouts, nil
}

func (s *PayoutStore) transactionIDs(ctx context.Context, payoutID string) ([]string, error) {
	var ids pq.StringArray
	err := s.db.GetContext(ctx, &ids, `
		SELECT transaction_ids FROM commission_payouts WHERE id = $1
	`, payoutID)
	if err != nil {
		return nil, err
	}
	return []string(ids), nil
}
