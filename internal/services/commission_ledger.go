package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"blaffapay/internal/db"
	"blaffapay/internal/models"
	"blaffapay/internal/money"
	"blaffapay/internal/store"
	"blaffapay/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type LedgerTransactionStore interface {
	FreezeCommission(ctx context.Context, tx store.Execer, transactionID, rate string, amount int64) (int64, error)
	SelectPayableForUpdate(ctx context.Context, tx store.Selecter, partnerID string, transactionIDs []string) ([]models.Transaction, error)
	MarkCommissionPaid(ctx context.Context, tx store.Execer, transactionIDs []string) (int64, error)
	Stats(ctx context.Context, partnerID string, from, to *time.Time) (store.PartnerCommissionStats, error)
}

type PartnerStore interface {
	GetByID(ctx context.Context, partnerID string) (models.Partner, error)
	AdjustBalance(ctx context.Context, tx store.Execer, partnerID string, delta int64) (int64, error)
}

type AccountStore interface {
	InsertEntry(ctx context.Context, tx store.Execer, input store.AccountEntryInput) (int64, error)
}

type PayoutStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PayoutInput) error
	GetByID(ctx context.Context, payoutID string) (models.CommissionPayout, error)
	ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error)
}

type SettlementHub interface {
	BroadcastSettlement(update websocket.SettlementUpdate)
}

// CommissionLedger tracks commission owed per settled transaction and the
// paid/unpaid split per partner. Accrual is driven by the settlement service;
// payout is an admin action.
type CommissionLedger struct {
	txRunner     db.TxRunner
	transactions LedgerTransactionStore
	partners     PartnerStore
	accounts     AccountStore
	payouts      PayoutStore
	audit        AuditStore
	hub          SettlementHub
}

func NewCommissionLedger(txRunner db.TxRunner, transactions LedgerTransactionStore, partners PartnerStore, accounts AccountStore, payouts PayoutStore, audit AuditStore, hub SettlementHub) *CommissionLedger {
	return &CommissionLedger{
		txRunner:     txRunner,
		transactions: transactions,
		partners:     partners,
		accounts:     accounts,
		payouts:      payouts,
		audit:        audit,
		hub:          hub,
	}
}

// Accrue freezes the commission rate and amount onto a transaction, exactly
// once. A second call for the same transaction returns ErrAlreadyAccrued and
// changes nothing. It runs inside the caller's database transaction so the
// freeze commits or rolls back with the status change that triggered it.
func (l *CommissionLedger) Accrue(ctx context.Context, tx store.Execer, transactionID string, rate decimal.Decimal, amountMinor int64) (int64, error) {
	commission := money.Commission(amountMinor, rate)
	rows, err := l.transactions.FreezeCommission(ctx, tx, transactionID, rate.StringFixed(2), commission)
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, ErrAlreadyAccrued
	}
	return commission, nil
}

type PartnerStats struct {
	PartnerID          string `json:"partner_id"`
	TotalEarned        int64  `json:"total_earned"`
	TotalPaid          int64  `json:"total_paid"`
	TotalUnpaid        int64  `json:"total_unpaid"`
	PayableCount       int64  `json:"payable_count"`
	CurrentMonthEarned int64  `json:"current_month_earned"`
	SettledCount       int64  `json:"settled_count"`
}

func (l *CommissionLedger) PartnerStats(ctx context.Context, partnerID string, from, to *time.Time) (PartnerStats, error) {
	row, err := l.transactions.Stats(ctx, partnerID, from, to)
	if err != nil {
		return PartnerStats{}, err
	}
	return PartnerStats{
		PartnerID:          partnerID,
		TotalEarned:        row.TotalEarned,
		TotalPaid:          row.TotalPaid,
		TotalUnpaid:        row.TotalUnpaid,
		PayableCount:       row.PayableCount,
		CurrentMonthEarned: row.CurrentMonthEarned,
		SettledCount:       row.SettledCount,
	}, nil
}

type PayoutRequest struct {
	PartnerID      string
	TransactionIDs []string
	AdminNotes     string
	PaidBy         string
}

// PayCommissions atomically flips the selected unpaid commissions to paid,
// writes one payout record, and credits the partner's balance. A selection
// naming a transaction that is not payable aborts the whole batch. With no
// explicit selection it pays everything currently unpaid for the partner.
func (l *CommissionLedger) PayCommissions(ctx context.Context, req PayoutRequest) (models.CommissionPayout, error) {
	if strings.TrimSpace(req.AdminNotes) == "" || req.PaidBy == "" {
		return models.CommissionPayout{}, ErrReasonRequired
	}
	if _, err := l.partners.GetByID(ctx, req.PartnerID); err != nil {
		return models.CommissionPayout{}, ErrPartnerNotFound
	}

	payoutID := uuid.NewString()
	var payout models.CommissionPayout
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := l.transactions.SelectPayableForUpdate(ctx, tx, req.PartnerID, req.TransactionIDs)
		if err != nil {
			return err
		}
		if len(req.TransactionIDs) > 0 && len(rows) != len(req.TransactionIDs) {
			return ErrUnpayableTransaction
		}
		if len(rows) == 0 {
			return ErrNothingToPay
		}
		ids := make([]string, 0, len(rows))
		var total int64
		for _, row := range rows {
			ids = append(ids, row.ID)
			total += row.CommissionAmount
		}
		updated, err := l.transactions.MarkCommissionPaid(ctx, tx, ids)
		if err != nil {
			return err
		}
		if updated != int64(len(ids)) {
			return ErrConcurrentUpdate
		}
		if err := l.payouts.Create(ctx, tx, store.PayoutInput{
			ID:             payoutID,
			PartnerID:      req.PartnerID,
			TransactionIDs: ids,
			TotalAmount:    total,
			AdminNotes:     req.AdminNotes,
			PaidBy:         req.PaidBy,
		}); err != nil {
			return err
		}
		inserted, err := l.accounts.InsertEntry(ctx, tx, store.AccountEntryInput{
			ID:        uuid.NewString(),
			PartnerID: req.PartnerID,
			Amount:    total,
			Reference: "payout:" + payoutID,
			Reason:    "commission payout",
		})
		if err != nil {
			return err
		}
		if inserted > 0 {
			if _, err := l.partners.AdjustBalance(ctx, tx, req.PartnerID, total); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]any{
			"transaction_ids": ids,
			"total_amount":    total,
			"notes":           req.AdminNotes,
		})
		if err := l.audit.Log(ctx, tx, req.PaidBy, "pay_commissions", "commission_payout", payoutID, string(data)); err != nil {
			return err
		}
		payout = models.CommissionPayout{
			ID:             payoutID,
			PartnerID:      req.PartnerID,
			TransactionIDs: ids,
			TotalAmount:    total,
			AdminNotes:     req.AdminNotes,
			PaidBy:         req.PaidBy,
			PaidAt:         time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return models.CommissionPayout{}, err
	}
	l.hub.BroadcastSettlement(websocket.SettlementUpdate{
		Event:      "payout",
		PartnerID:  req.PartnerID,
		Commission: money.FormatMinor(payout.TotalAmount),
	})
	return payout, nil
}

func (l *CommissionLedger) ListPayouts(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error) {
	return l.payouts.ListByPartner(ctx, partnerID, limit, offset)
}
