package handlers

import (
	"context"
	"time"

	"blaffapay/internal/config"
	"blaffapay/internal/db"
	"blaffapay/internal/models"
	"blaffapay/internal/services"
	"blaffapay/internal/store"
	"blaffapay/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubPartnerStore struct {
	getByIDFn   func(ctx context.Context, partnerID string) (models.Partner, error)
	listFn      func(ctx context.Context, limit, offset int) ([]models.Partner, error)
	setActiveFn func(ctx context.Context, tx store.Execer, partnerID string, active bool) error
}

func (s stubPartnerStore) GetByID(ctx context.Context, partnerID string) (models.Partner, error) {
	if s.getByIDFn == nil {
		return models.Partner{ID: partnerID, IsActive: true}, nil
	}
	return s.getByIDFn(ctx, partnerID)
}

func (s stubPartnerStore) List(ctx context.Context, limit, offset int) ([]models.Partner, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubPartnerStore) SetActive(ctx context.Context, tx store.Execer, partnerID string, active bool) error {
	if s.setActiveFn == nil {
		return nil
	}
	return s.setActiveFn(ctx, tx, partnerID, active)
}

type stubPlatformStore struct {
	createFn  func(ctx context.Context, tx store.Execer, input store.PlatformInput) error
	getByIDFn func(ctx context.Context, platformID string) (models.Platform, error)
	listFn    func(ctx context.Context, limit, offset int) ([]models.Platform, error)
	updateFn  func(ctx context.Context, tx store.Execer, platformID string, update store.PlatformUpdate) (int64, error)
}

func (s stubPlatformStore) Create(ctx context.Context, tx store.Execer, input store.PlatformInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubPlatformStore) GetByID(ctx context.Context, platformID string) (models.Platform, error) {
	if s.getByIDFn == nil {
		return models.Platform{ID: platformID, IsActive: true}, nil
	}
	return s.getByIDFn(ctx, platformID)
}

func (s stubPlatformStore) List(ctx context.Context, limit, offset int) ([]models.Platform, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func (s stubPlatformStore) Update(ctx context.Context, tx store.Execer, platformID string, update store.PlatformUpdate) (int64, error) {
	if s.updateFn == nil {
		return 1, nil
	}
	return s.updateFn(ctx, tx, platformID, update)
}

type stubAccountStore struct {
	listByPartnerFn func(ctx context.Context, partnerID string, limit, offset int) ([]models.AccountEntry, error)
	sumByPartnerFn  func(ctx context.Context, partnerID string) (int64, error)
}

func (s stubAccountStore) ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.AccountEntry, error) {
	if s.listByPartnerFn == nil {
		return nil, nil
	}
	return s.listByPartnerFn(ctx, partnerID, limit, offset)
}

func (s stubAccountStore) SumByPartner(ctx context.Context, partnerID string) (int64, error) {
	if s.sumByPartnerFn == nil {
		return 0, nil
	}
	return s.sumByPartnerFn(ctx, partnerID)
}

type stubAdminStore struct {
	isAdminFn   func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn   func(ctx context.Context, userID, role string) (bool, error)
	grantRoleFn func(ctx context.Context, tx store.Execer, adminUserID, role string) error
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return true, true, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return true, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubTransactionLookup struct {
	getByReferenceFn func(ctx context.Context, reference string) (models.Transaction, error)
}

func (s stubTransactionLookup) GetByReference(ctx context.Context, reference string) (models.Transaction, error) {
	if s.getByReferenceFn == nil {
		return models.Transaction{}, nil
	}
	return s.getByReferenceFn(ctx, reference)
}

type stubPermissionService struct {
	grantFn         func(ctx context.Context, req services.GrantRequest) (models.Permission, error)
	authorizeFn     func(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (services.Decision, error)
	updateFn        func(ctx context.Context, permissionID string, update store.PermissionUpdate, updatedBy string) (models.Permission, error)
	listByPartnerFn func(ctx context.Context, partnerID string) ([]models.Permission, error)
}

func (s stubPermissionService) Grant(ctx context.Context, req services.GrantRequest) (models.Permission, error) {
	if s.grantFn == nil {
		return models.Permission{}, nil
	}
	return s.grantFn(ctx, req)
}

func (s stubPermissionService) Authorize(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (services.Decision, error) {
	if s.authorizeFn == nil {
		return services.Decision{Allowed: true}, nil
	}
	return s.authorizeFn(ctx, partnerID, platformID, txType, amountMinor)
}

func (s stubPermissionService) Update(ctx context.Context, permissionID string, update store.PermissionUpdate, updatedBy string) (models.Permission, error) {
	if s.updateFn == nil {
		return models.Permission{}, nil
	}
	return s.updateFn(ctx, permissionID, update, updatedBy)
}

func (s stubPermissionService) ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error) {
	if s.listByPartnerFn == nil {
		return nil, nil
	}
	return s.listByPartnerFn(ctx, partnerID)
}

type stubCommissionConfigService struct {
	effectiveRatesFn func(ctx context.Context, partnerID string) (decimal.Decimal, decimal.Decimal, error)
	upsertFn         func(ctx context.Context, partnerID string, depositRate, withdrawalRate decimal.Decimal, updatedBy string) (models.CommissionConfig, error)
}

func (s stubCommissionConfigService) EffectiveRates(ctx context.Context, partnerID string) (decimal.Decimal, decimal.Decimal, error) {
	if s.effectiveRatesFn == nil {
		return decimal.Zero, decimal.Zero, nil
	}
	return s.effectiveRatesFn(ctx, partnerID)
}

func (s stubCommissionConfigService) Upsert(ctx context.Context, partnerID string, depositRate, withdrawalRate decimal.Decimal, updatedBy string) (models.CommissionConfig, error) {
	if s.upsertFn == nil {
		return models.CommissionConfig{}, nil
	}
	return s.upsertFn(ctx, partnerID, depositRate, withdrawalRate, updatedBy)
}

type stubLedger struct {
	partnerStatsFn   func(ctx context.Context, partnerID string, from, to *time.Time) (services.PartnerStats, error)
	payCommissionsFn func(ctx context.Context, req services.PayoutRequest) (models.CommissionPayout, error)
	listPayoutsFn    func(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error)
}

func (s stubLedger) PartnerStats(ctx context.Context, partnerID string, from, to *time.Time) (services.PartnerStats, error) {
	if s.partnerStatsFn == nil {
		return services.PartnerStats{}, nil
	}
	return s.partnerStatsFn(ctx, partnerID, from, to)
}

func (s stubLedger) PayCommissions(ctx context.Context, req services.PayoutRequest) (models.CommissionPayout, error) {
	if s.payCommissionsFn == nil {
		return models.CommissionPayout{}, nil
	}
	return s.payCommissionsFn(ctx, req)
}

func (s stubLedger) ListPayouts(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error) {
	if s.listPayoutsFn == nil {
		return nil, nil
	}
	return s.listPayoutsFn(ctx, partnerID, limit, offset)
}

type stubSettlementService struct {
	settleFn              func(ctx context.Context, req services.SettleRequest) (models.Transaction, error)
	markProcessingFn      func(ctx context.Context, transactionID string) (models.Transaction, error)
	markSuccessFn         func(ctx context.Context, transactionID, reason, actorID string, externalID *string) (models.Transaction, error)
	markFailedFn          func(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	cancelFn              func(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	retryFn               func(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error)
	processCancellationFn func(ctx context.Context, transactionID string, approve bool, notes, actorID string) (models.Transaction, error)
	getFn                 func(ctx context.Context, transactionID string) (models.Transaction, error)
	listFn                func(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
}

func (s stubSettlementService) Settle(ctx context.Context, req services.SettleRequest) (models.Transaction, error) {
	if s.settleFn == nil {
		return models.Transaction{}, nil
	}
	return s.settleFn(ctx, req)
}

func (s stubSettlementService) MarkProcessing(ctx context.Context, transactionID string) (models.Transaction, error) {
	if s.markProcessingFn == nil {
		return models.Transaction{}, nil
	}
	return s.markProcessingFn(ctx, transactionID)
}

func (s stubSettlementService) MarkSuccess(ctx context.Context, transactionID, reason, actorID string, externalID *string) (models.Transaction, error) {
	if s.markSuccessFn == nil {
		return models.Transaction{}, nil
	}
	return s.markSuccessFn(ctx, transactionID, reason, actorID, externalID)
}

func (s stubSettlementService) MarkFailed(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if s.markFailedFn == nil {
		return models.Transaction{}, nil
	}
	return s.markFailedFn(ctx, transactionID, reason, actorID)
}

func (s stubSettlementService) Cancel(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if s.cancelFn == nil {
		return models.Transaction{}, nil
	}
	return s.cancelFn(ctx, transactionID, reason, actorID)
}

func (s stubSettlementService) Retry(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if s.retryFn == nil {
		return models.Transaction{}, nil
	}
	return s.retryFn(ctx, transactionID, reason, actorID)
}

func (s stubSettlementService) ProcessCancellation(ctx context.Context, transactionID string, approve bool, notes, actorID string) (models.Transaction, error) {
	if s.processCancellationFn == nil {
		return models.Transaction{}, nil
	}
	return s.processCancellationFn(ctx, transactionID, approve, notes, actorID)
}

func (s stubSettlementService) Get(ctx context.Context, transactionID string) (models.Transaction, error) {
	if s.getFn == nil {
		return models.Transaction{ID: transactionID}, nil
	}
	return s.getFn(ctx, transactionID)
}

func (s stubSettlementService) List(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter, limit, offset)
}

type handlerDeps struct {
	txRunner     db.TxRunner
	partners     PartnerStore
	platforms    PlatformStore
	accounts     AccountStore
	admin        AdminStore
	audit        AuditStore
	transactions TransactionStore
	permissions  PermissionService
	commissions  CommissionConfigService
	ledger       CommissionLedger
	settlements  SettlementService
}

func newTestHandler(deps handlerDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		AllowedOrigins: "*",
		CallbackToken:  "callback-secret",
	}
	if deps.txRunner == nil {
		deps.txRunner = fakeTxRunner{}
	}
	if deps.partners == nil {
		deps.partners = stubPartnerStore{}
	}
	if deps.platforms == nil {
		deps.platforms = stubPlatformStore{}
	}
	if deps.accounts == nil {
		deps.accounts = stubAccountStore{}
	}
	if deps.admin == nil {
		deps.admin = stubAdminStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	if deps.transactions == nil {
		deps.transactions = stubTransactionLookup{}
	}
	if deps.permissions == nil {
		deps.permissions = stubPermissionService{}
	}
	if deps.commissions == nil {
		deps.commissions = stubCommissionConfigService{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedger{}
	}
	if deps.settlements == nil {
		deps.settlements = stubSettlementService{}
	}
	return New(deps.txRunner, cfg, deps.partners, deps.platforms, deps.accounts, deps.admin, deps.audit, deps.transactions, deps.permissions, deps.commissions, deps.ledger, deps.settlements, websocket.NewHub())
}
