package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"blaffapay/internal/db"
	"blaffapay/internal/models"
	"blaffapay/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type CommissionConfigStore interface {
	GetByPartner(ctx context.Context, partnerID string) (models.CommissionConfig, error)
	Upsert(ctx context.Context, tx store.Execer, partnerID, depositRate, withdrawalRate, updatedBy string) error
}

var maxRate = decimal.NewFromInt(100)

type CommissionConfigService struct {
	txRunner          db.TxRunner
	configs           CommissionConfigStore
	audit             AuditStore
	defaultDeposit    decimal.Decimal
	defaultWithdrawal decimal.Decimal
}

func NewCommissionConfigService(txRunner db.TxRunner, configs CommissionConfigStore, audit AuditStore, defaultDeposit, defaultWithdrawal decimal.Decimal) *CommissionConfigService {
	return &CommissionConfigService{
		txRunner:          txRunner,
		configs:           configs,
		audit:             audit,
		defaultDeposit:    defaultDeposit,
		defaultWithdrawal: defaultWithdrawal,
	}
}

// EffectiveRates returns the partner's configured rates, or the system-wide
// defaults when the partner was never configured. It never fails on a missing
// config.
func (s *CommissionConfigService) EffectiveRates(ctx context.Context, partnerID string) (decimal.Decimal, decimal.Decimal, error) {
	config, err := s.configs.GetByPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultDeposit, s.defaultWithdrawal, nil
		}
		return decimal.Zero, decimal.Zero, err
	}
	deposit, err := decimal.NewFromString(config.DepositRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	withdrawal, err := decimal.NewFromString(config.WithdrawalRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return deposit, withdrawal, nil
}

func (s *CommissionConfigService) EffectiveRate(ctx context.Context, partnerID, txType string) (decimal.Decimal, error) {
	deposit, withdrawal, err := s.EffectiveRates(ctx, partnerID)
	if err != nil {
		return decimal.Zero, err
	}
	switch txType {
	case TypeDeposit:
		return deposit, nil
	case TypeWithdrawal:
		return withdrawal, nil
	}
	return decimal.Zero, ErrInvalidType
}

// Upsert replaces the partner's configuration in place: one row per partner,
// no history. Transactions settled before the change keep the rate frozen
// onto them at settlement.
func (s *CommissionConfigService) Upsert(ctx context.Context, partnerID string, depositRate, withdrawalRate decimal.Decimal, updatedBy string) (models.CommissionConfig, error) {
	if !validRate(depositRate) || !validRate(withdrawalRate) {
		return models.CommissionConfig{}, ErrInvalidRate
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.configs.Upsert(ctx, tx, partnerID, depositRate.StringFixed(2), withdrawalRate.StringFixed(2), updatedBy); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"deposit_rate":    depositRate.StringFixed(2),
			"withdrawal_rate": withdrawalRate.StringFixed(2),
		})
		return s.audit.Log(ctx, tx, updatedBy, "upsert_commission_config", "commission_config", partnerID, string(data))
	})
	if err != nil {
		return models.CommissionConfig{}, err
	}
	return s.configs.GetByPartner(ctx, partnerID)
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(maxRate)
}
