package store

import (
	"context"
	"fmt"
	"time"

	"blaffapay/internal/models"

	"github.com/lib/pq"
)

type TransactionStore struct {
	db DB
}

const transactionColumns = `
	id, reference, partner_id, platform_id, type, status, previous_status,
	amount, commission_rate, commission_amount, commission_accrued, commission_paid,
	retry_count, external_id, failure_reason, created_at, updated_at, completed_at
`

type TransactionInput struct {
	ID         string
	Reference  string
	PartnerID  string
	PlatformID string
	Type       string
	Status     string
	Amount     int64
}

type TransactionFilter struct {
	PartnerID string
	Type      string
	Status    string
}

type PartnerCommissionStats struct {
	TotalEarned        int64 `db:"total_earned"`
	TotalPaid          int64 `db:"total_paid"`
	TotalUnpaid        int64 `db:"total_unpaid"`
	PayableCount       int64 `db:"payable_count"`
	CurrentMonthEarned int64 `db:"current_month_earned"`
	SettledCount       int64 `db:"settled_count"`
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, reference, partner_id, platform_id, type, status, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.Reference, input.PartnerID, input.PlatformID, input.Type, input.Status, input.Amount,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// TransitionStatus flips status only when the row still holds the expected
// one. Zero rows affected means a concurrent writer won; the caller re-reads
// and re-applies its transition logic.
func (s *TransactionStore) TransitionStatus(ctx context.Context, tx Execer, transactionID, from, to string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, transactionID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordSuccess and RecordFailure clear previous_status: settling out of
// cancellation_requested ends the adjudication and the remembered status with it.
func (s *TransactionStore) RecordSuccess(ctx context.Context, tx Execer, transactionID, from string, externalID *string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'success',
		    previous_status = NULL,
		    external_id = COALESCE($1, external_id),
		    failure_reason = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, externalID, transactionID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) RecordFailure(ctx context.Context, tx Execer, transactionID, from, status, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    previous_status = NULL,
		    failure_reason = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, status, reason, transactionID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) RecordCancelled(ctx context.Context, tx Execer, transactionID, from string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'cancelled',
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, transactionID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordCancellationRequest remembers the status the transaction came from so
// a rejected cancellation can restore it.
func (s *TransactionStore) RecordCancellationRequest(ctx context.Context, tx Execer, transactionID, from string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'cancellation_requested',
		    previous_status = $1,
		    updated_at = NOW()
		WHERE id = $2 AND status = $1
	`, from, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) RestoreStatus(ctx context.Context, tx Execer, transactionID, to string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1,
		    previous_status = NULL,
		    updated_at = NOW()
		WHERE id = $2 AND status = 'cancellation_requested'
	`, to, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) RecordRetry(ctx context.Context, tx Execer, transactionID, from string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, transactionID, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) SetExternalID(ctx context.Context, tx Execer, transactionID, externalID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET external_id = $1, updated_at = NOW()
		WHERE id = $2
	`, externalID, transactionID)
	return err
}

// FreezeCommission writes the rate and amount exactly once; the accrued flag
// doubles as the idempotency guard for the ledger.
func (s *TransactionStore) FreezeCommission(ctx context.Context, tx Execer, transactionID, rate string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET commission_rate = $1,
		    commission_amount = $2,
		    commission_accrued = TRUE,
		    updated_at = NOW()
		WHERE id = $3 AND commission_accrued = FALSE
	`, rate, amount, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) SelectPayableForUpdate(ctx context.Context, tx Selecter, partnerID string, transactionIDs []string) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE partner_id = $1
		  AND status = 'success'
		  AND commission_accrued = TRUE
		  AND commission_paid = FALSE
	`
	args := []any{partnerID}
	if len(transactionIDs) > 0 {
		query += " AND id = ANY($2)"
		args = append(args, pq.Array(transactionIDs))
	}
	query += " ORDER BY created_at FOR UPDATE"
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) MarkCommissionPaid(ctx context.Context, tx Execer, transactionIDs []string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET commission_paid = TRUE, updated_at = NOW()
		WHERE id = ANY($1) AND commission_accrued = TRUE AND commission_paid = FALSE
	`, pq.Array(transactionIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) Stats(ctx context.Context, partnerID string, from, to *time.Time) (PartnerCommissionStats, error) {
	var row PartnerCommissionStats
	err := s.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(commission_amount), 0) AS total_earned,
		       COALESCE(SUM(commission_amount) FILTER (WHERE commission_paid), 0) AS total_paid,
		       COALESCE(SUM(commission_amount) FILTER (WHERE NOT commission_paid), 0) AS total_unpaid,
		       COUNT(*) FILTER (WHERE NOT commission_paid) AS payable_count,
		       COALESCE(SUM(commission_amount) FILTER (WHERE completed_at >= date_trunc('month', NOW())), 0) AS current_month_earned,
		       COUNT(*) AS settled_count
		FROM transactions
		WHERE partner_id = $1
		  AND status = 'success'
		  AND commission_accrued = TRUE
		  AND ($2::timestamptz IS NULL OR completed_at >= $2)
		  AND ($3::timestamptz IS NULL OR completed_at < $3)
	`, partnerID, from, to)
	if err != nil {
		return PartnerCommissionStats{}, err
	}
	return row, nil
}

func (s *TransactionStore) List(ctx context.Context, filter TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	args := []any{}
	if filter.PartnerID != "" {
		args = append(args, filter.PartnerID)
		query += fmt.Sprintf(" AND partner_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListStale returns open transactions older than the cutoff for the timeout
// sweep. The sweep transitions them one at a time through the state machine.
func (s *TransactionStore) ListStale(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status IN ('pending', 'processing') AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
