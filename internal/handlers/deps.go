package handlers

import (
	"context"
	"time"

	"blaffapay/internal/models"
	"blaffapay/internal/services"
	"blaffapay/internal/store"

	"github.com/shopspring/decimal"
)

type PartnerStore interface {
	GetByID(ctx context.Context, partnerID string) (models.Partner, error)
	List(ctx context.Context, limit, offset int) ([]models.Partner, error)
	SetActive(ctx context.Context, tx store.Execer, partnerID string, active bool) error
}

type PlatformStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PlatformInput) error
	GetByID(ctx context.Context, platformID string) (models.Platform, error)
	List(ctx context.Context, limit, offset int) ([]models.Platform, error)
	Update(ctx context.Context, tx store.Execer, platformID string, update store.PlatformUpdate) (int64, error)
}

type AccountStore interface {
	ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.AccountEntry, error)
	SumByPartner(ctx context.Context, partnerID string) (int64, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type TransactionStore interface {
	GetByReference(ctx context.Context, reference string) (models.Transaction, error)
}

type PermissionService interface {
	Grant(ctx context.Context, req services.GrantRequest) (models.Permission, error)
	Authorize(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (services.Decision, error)
	Update(ctx context.Context, permissionID string, update store.PermissionUpdate, updatedBy string) (models.Permission, error)
	ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error)
}

type CommissionConfigService interface {
	EffectiveRates(ctx context.Context, partnerID string) (decimal.Decimal, decimal.Decimal, error)
	Upsert(ctx context.Context, partnerID string, depositRate, withdrawalRate decimal.Decimal, updatedBy string) (models.CommissionConfig, error)
}

type CommissionLedger interface {
	PartnerStats(ctx context.Context, partnerID string, from, to *time.Time) (services.PartnerStats, error)
	PayCommissions(ctx context.Context, req services.PayoutRequest) (models.CommissionPayout, error)
	ListPayouts(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error)
}

type SettlementService interface {
	Settle(ctx context.Context, req services.SettleRequest) (models.Transaction, error)
	MarkProcessing(ctx context.Context, transactionID string) (models.Transaction, error)
	MarkSuccess(ctx context.Context, transactionID, reason, actorID string, externalID *string) (models.Transaction, error)
	MarkFailed(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	Cancel(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	Retry(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	ProcessCancellation(ctx context.Context, transactionID string, approve bool, notes, actorID string) (models.Transaction, error)
	Get(ctx context.Context, transactionID string) (models.Transaction, error)
	List(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
}
