package services

import (
	"context"
	"time"

	"blaffapay/internal/models"
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

type stubPermissionStore struct {
	createFn        func(ctx context.Context, tx store.Execer, input store.PermissionInput) error
	getByPairFn     func(ctx context.Context, partnerID, platformID string) (models.Permission, error)
	getByIDFn       func(ctx context.Context, permissionID string) (models.Permission, error)
	listByPartnerFn func(ctx context.Context, partnerID string) ([]models.Permission, error)
	updateFn        func(ctx context.Context, tx store.Execer, permissionID string, update store.PermissionUpdate) (int64, error)
}

func (s stubPermissionStore) Create(ctx context.Context, tx store.Execer, input store.PermissionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubPermissionStore) GetByPair(ctx context.Context, partnerID, platformID string) (models.Permission, error) {
	if s.getByPairFn == nil {
		return models.Permission{}, nil
	}
	return s.getByPairFn(ctx, partnerID, platformID)
}

func (s stubPermissionStore) GetByID(ctx context.Context, permissionID string) (models.Permission, error) {
	if s.getByIDFn == nil {
		return models.Permission{ID: permissionID}, nil
	}
	return s.getByIDFn(ctx, permissionID)
}

func (s stubPermissionStore) ListByPartner(ctx context.Context, partnerID string) ([]models.Permission, error) {
	if s.listByPartnerFn == nil {
		return nil, nil
	}
	return s.listByPartnerFn(ctx, partnerID)
}

func (s stubPermissionStore) Update(ctx context.Context, tx store.Execer, permissionID string, update store.PermissionUpdate) (int64, error) {
	if s.updateFn == nil {
		return 1, nil
	}
	return s.updateFn(ctx, tx, permissionID, update)
}

type stubPlatformStore struct {
	getByIDFn func(ctx context.Context, platformID string) (models.Platform, error)
}

func (s stubPlatformStore) GetByID(ctx context.Context, platformID string) (models.Platform, error) {
	if s.getByIDFn == nil {
		return models.Platform{ID: platformID, IsActive: true}, nil
	}
	return s.getByIDFn(ctx, platformID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubConfigStore struct {
	getByPartnerFn func(ctx context.Context, partnerID string) (models.CommissionConfig, error)
	upsertFn       func(ctx context.Context, tx store.Execer, partnerID, depositRate, withdrawalRate, updatedBy string) error
}

func (s stubConfigStore) GetByPartner(ctx context.Context, partnerID string) (models.CommissionConfig, error) {
	if s.getByPartnerFn == nil {
		return models.CommissionConfig{}, nil
	}
	return s.getByPartnerFn(ctx, partnerID)
}

func (s stubConfigStore) Upsert(ctx context.Context, tx store.Execer, partnerID, depositRate, withdrawalRate, updatedBy string) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, tx, partnerID, depositRate, withdrawalRate, updatedBy)
}

type stubLedgerTxStore struct {
	freezeCommissionFn       func(ctx context.Context, tx store.Execer, transactionID, rate string, amount int64) (int64, error)
	selectPayableForUpdateFn func(ctx context.Context, tx store.Selecter, partnerID string, transactionIDs []string) ([]models.Transaction, error)
	markCommissionPaidFn     func(ctx context.Context, tx store.Execer, transactionIDs []string) (int64, error)
	statsFn                  func(ctx context.Context, partnerID string, from, to *time.Time) (store.PartnerCommissionStats, error)
}

func (s stubLedgerTxStore) FreezeCommission(ctx context.Context, tx store.Execer, transactionID, rate string, amount int64) (int64, error) {
	if s.freezeCommissionFn == nil {
		return 1, nil
	}
	return s.freezeCommissionFn(ctx, tx, transactionID, rate, amount)
}

func (s stubLedgerTxStore) SelectPayableForUpdate(ctx context.Context, tx store.Selecter, partnerID string, transactionIDs []string) ([]models.Transaction, error) {
	if s.selectPayableForUpdateFn == nil {
		return nil, nil
	}
	return s.selectPayableForUpdateFn(ctx, tx, partnerID, transactionIDs)
}

func (s stubLedgerTxStore) MarkCommissionPaid(ctx context.Context, tx store.Execer, transactionIDs []string) (int64, error) {
	if s.markCommissionPaidFn == nil {
		return int64(len(transactionIDs)), nil
	}
	return s.markCommissionPaidFn(ctx, tx, transactionIDs)
}

func (s stubLedgerTxStore) Stats(ctx context.Context, partnerID string, from, to *time.Time) (store.PartnerCommissionStats, error) {
	if s.statsFn == nil {
		return store.PartnerCommissionStats{}, nil
	}
	return s.statsFn(ctx, partnerID, from, to)
}

type stubPartnerStore struct {
	getByIDFn       func(ctx context.Context, partnerID string) (models.Partner, error)
	adjustBalanceFn func(ctx context.Context, tx store.Execer, partnerID string, delta int64) (int64, error)
}

func (s stubPartnerStore) GetByID(ctx context.Context, partnerID string) (models.Partner, error) {
	if s.getByIDFn == nil {
		return models.Partner{ID: partnerID, IsActive: true}, nil
	}
	return s.getByIDFn(ctx, partnerID)
}

func (s stubPartnerStore) AdjustBalance(ctx context.Context, tx store.Execer, partnerID string, delta int64) (int64, error) {
	if s.adjustBalanceFn == nil {
		return delta, nil
	}
	return s.adjustBalanceFn(ctx, tx, partnerID, delta)
}

type stubAccountStore struct {
	insertEntryFn func(ctx context.Context, tx store.Execer, input store.AccountEntryInput) (int64, error)
}

func (s stubAccountStore) InsertEntry(ctx context.Context, tx store.Execer, input store.AccountEntryInput) (int64, error) {
	if s.insertEntryFn == nil {
		return 1, nil
	}
	return s.insertEntryFn(ctx, tx, input)
}

type stubPayoutStore struct {
	createFn        func(ctx context.Context, tx store.Execer, input store.PayoutInput) error
	getByIDFn       func(ctx context.Context, payoutID string) (models.CommissionPayout, error)
	listByPartnerFn func(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error)
}

func (s stubPayoutStore) Create(ctx context.Context, tx store.Execer, input store.PayoutInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubPayoutStore) GetByID(ctx context.Context, payoutID string) (models.CommissionPayout, error) {
	if s.getByIDFn == nil {
		return models.CommissionPayout{ID: payoutID}, nil
	}
	return s.getByIDFn(ctx, payoutID)
}

func (s stubPayoutStore) ListByPartner(ctx context.Context, partnerID string, limit, offset int) ([]models.CommissionPayout, error) {
	if s.listByPartnerFn == nil {
		return nil, nil
	}
	return s.listByPartnerFn(ctx, partnerID, limit, offset)
}

type stubHub struct {
	broadcastFn func(update websocket.SettlementUpdate)
}

func (s stubHub) BroadcastSettlement(update websocket.SettlementUpdate) {
	if s.broadcastFn != nil {
		s.broadcastFn(update)
	}
}

type stubSettlementTxStore struct {
	createFn                    func(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	getByIDFn                   func(ctx context.Context, transactionID string) (models.Transaction, error)
	getForUpdateFn              func(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	transitionStatusFn          func(ctx context.Context, tx store.Execer, transactionID, from, to string) (int64, error)
	recordSuccessFn             func(ctx context.Context, tx store.Execer, transactionID, from string, externalID *string) (int64, error)
	recordFailureFn             func(ctx context.Context, tx store.Execer, transactionID, from, status, reason string) (int64, error)
	recordCancelledFn           func(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	recordCancellationRequestFn func(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	restoreStatusFn             func(ctx context.Context, tx store.Execer, transactionID, to string) (int64, error)
	recordRetryFn               func(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	setExternalIDFn             func(ctx context.Context, tx store.Execer, transactionID, externalID string) error
	listFn                      func(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	listStaleFn                 func(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

func (s stubSettlementTxStore) Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubSettlementTxStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	if s.getByIDFn == nil {
		return models.Transaction{ID: transactionID}, nil
	}
	return s.getByIDFn(ctx, transactionID)
}

func (s stubSettlementTxStore) GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error) {
	if s.getForUpdateFn == nil {
		return models.Transaction{ID: transactionID}, nil
	}
	return s.getForUpdateFn(ctx, tx, transactionID)
}

func (s stubSettlementTxStore) TransitionStatus(ctx context.Context, tx store.Execer, transactionID, from, to string) (int64, error) {
	if s.transitionStatusFn == nil {
		return 1, nil
	}
	return s.transitionStatusFn(ctx, tx, transactionID, from, to)
}

func (s stubSettlementTxStore) RecordSuccess(ctx context.Context, tx store.Execer, transactionID, from string, externalID *string) (int64, error) {
	if s.recordSuccessFn == nil {
		return 1, nil
	}
	return s.recordSuccessFn(ctx, tx, transactionID, from, externalID)
}

func (s stubSettlementTxStore) RecordFailure(ctx context.Context, tx store.Execer, transactionID, from, status, reason string) (int64, error) {
	if s.recordFailureFn == nil {
		return 1, nil
	}
	return s.recordFailureFn(ctx, tx, transactionID, from, status, reason)
}

func (s stubSettlementTxStore) RecordCancelled(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error) {
	if s.recordCancelledFn == nil {
		return 1, nil
	}
	return s.recordCancelledFn(ctx, tx, transactionID, from)
}

func (s stubSettlementTxStore) RecordCancellationRequest(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error) {
	if s.recordCancellationRequestFn == nil {
		return 1, nil
	}
	return s.recordCancellationRequestFn(ctx, tx, transactionID, from)
}

func (s stubSettlementTxStore) RestoreStatus(ctx context.Context, tx store.Execer, transactionID, to string) (int64, error) {
	if s.restoreStatusFn == nil {
		return 1, nil
	}
	return s.restoreStatusFn(ctx, tx, transactionID, to)
}

func (s stubSettlementTxStore) RecordRetry(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error) {
	if s.recordRetryFn == nil {
		return 1, nil
	}
	return s.recordRetryFn(ctx, tx, transactionID, from)
}

func (s stubSettlementTxStore) SetExternalID(ctx context.Context, tx store.Execer, transactionID, externalID string) error {
	if s.setExternalIDFn == nil {
		return nil
	}
	return s.setExternalIDFn(ctx, tx, transactionID, externalID)
}

func (s stubSettlementTxStore) List(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter, limit, offset)
}

func (s stubSettlementTxStore) ListStale(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	if s.listStaleFn == nil {
		return nil, nil
	}
	return s.listStaleFn(ctx, cutoff)
}

type stubAuthorizer struct {
	authorizeFn func(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (Decision, error)
}

func (s stubAuthorizer) Authorize(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (Decision, error) {
	if s.authorizeFn == nil {
		return Decision{Allowed: true}, nil
	}
	return s.authorizeFn(ctx, partnerID, platformID, txType, amountMinor)
}

type stubRateSource struct {
	effectiveRateFn func(ctx context.Context, partnerID, txType string) (decimal.Decimal, error)
}

func (s stubRateSource) EffectiveRate(ctx context.Context, partnerID, txType string) (decimal.Decimal, error) {
	if s.effectiveRateFn == nil {
		return decimal.RequireFromString("2.00"), nil
	}
	return s.effectiveRateFn(ctx, partnerID, txType)
}

type stubAccruer struct {
	accrueFn func(ctx context.Context, tx store.Execer, transactionID string, rate decimal.Decimal, amountMinor int64) (int64, error)
}

func (s stubAccruer) Accrue(ctx context.Context, tx store.Execer, transactionID string, rate decimal.Decimal, amountMinor int64) (int64, error) {
	if s.accrueFn == nil {
		return 0, nil
	}
	return s.accrueFn(ctx, tx, transactionID, rate, amountMinor)
}

type stubDispatcher struct {
	dispatchFn func(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

func (s stubDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if s.dispatchFn == nil {
		return DispatchResult{ExternalID: "ext-1", Accepted: true}, nil
	}
	return s.dispatchFn(ctx, req)
}
