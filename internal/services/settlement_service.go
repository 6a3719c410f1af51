package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"blaffapay/internal/db"
	"blaffapay/internal/lifecycle"
	"blaffapay/internal/models"
	"blaffapay/internal/money"
	"blaffapay/internal/store"
	"blaffapay/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type SettlementTransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetByID(ctx context.Context, transactionID string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	TransitionStatus(ctx context.Context, tx store.Execer, transactionID, from, to string) (int64, error)
	RecordSuccess(ctx context.Context, tx store.Execer, transactionID, from string, externalID *string) (int64, error)
	RecordFailure(ctx context.Context, tx store.Execer, transactionID, from, status, reason string) (int64, error)
	RecordCancelled(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	RecordCancellationRequest(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	RestoreStatus(ctx context.Context, tx store.Execer, transactionID, to string) (int64, error)
	RecordRetry(ctx context.Context, tx store.Execer, transactionID, from string) (int64, error)
	SetExternalID(ctx context.Context, tx store.Execer, transactionID, externalID string) error
	List(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, partnerID, platformID, txType string, amountMinor int64) (Decision, error)
}

type RateSource interface {
	EffectiveRate(ctx context.Context, partnerID, txType string) (decimal.Decimal, error)
}

type Accruer interface {
	Accrue(ctx context.Context, tx store.Execer, transactionID string, rate decimal.Decimal, amountMinor int64) (int64, error)
}

type DispatchRequest struct {
	TransactionID      string
	Reference          string
	PartnerID          string
	PlatformExternalID string
	Type               string
	AmountMinor        int64
}

type DispatchResult struct {
	ExternalID string
	Accepted   bool
}

// Dispatcher hands a transaction to the external payment network. The
// network answers settlement asynchronously through the callback endpoints;
// Dispatch only reports whether the hand-off was accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

type SettlementConfig struct {
	RetryLimit      int
	DispatchTimeout time.Duration
	StaleAfter      time.Duration
}

// SettlementService owns the transaction lifecycle and is the only component
// that talks to both the status machine and the commission ledger, which is
// what keeps the frozen-rate invariant in one place.
type SettlementService struct {
	txRunner     db.TxRunner
	transactions SettlementTransactionStore
	partners     PartnerStore
	platforms    PlatformStore
	authorizer   Authorizer
	rates        RateSource
	ledger       Accruer
	accounts     AccountStore
	audit        AuditStore
	dispatcher   Dispatcher
	hub          SettlementHub
	cfg          SettlementConfig
}

func NewSettlementService(txRunner db.TxRunner, transactions SettlementTransactionStore, partners PartnerStore, platforms PlatformStore, authorizer Authorizer, rates RateSource, ledger Accruer, accounts AccountStore, audit AuditStore, dispatcher Dispatcher, hub SettlementHub, cfg SettlementConfig) *SettlementService {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 15 * time.Second
	}
	return &SettlementService{
		txRunner:     txRunner,
		transactions: transactions,
		partners:     partners,
		platforms:    platforms,
		authorizer:   authorizer,
		rates:        rates,
		ledger:       ledger,
		accounts:     accounts,
		audit:        audit,
		dispatcher:   dispatcher,
		hub:          hub,
		cfg:          cfg,
	}
}

type SettleRequest struct {
	PartnerID   string
	PlatformID  string
	Type        string
	AmountMinor int64
	Reference   string
	RequestedBy string
}

// Create authorizes and records a new pending transaction. On denial no
// transaction exists and the caller receives the denial reason.
func (s *SettlementService) Create(ctx context.Context, req SettleRequest) (models.Transaction, error) {
	if req.AmountMinor <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}
	if req.Type != TypeDeposit && req.Type != TypeWithdrawal {
		return models.Transaction{}, ErrInvalidType
	}
	partner, err := s.partners.GetByID(ctx, req.PartnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, ErrPartnerNotFound
		}
		return models.Transaction{}, err
	}
	if !partner.IsActive {
		return models.Transaction{}, ErrPartnerInactive
	}
	decision, err := s.authorizer.Authorize(ctx, req.PartnerID, req.PlatformID, req.Type, req.AmountMinor)
	if err != nil {
		return models.Transaction{}, err
	}
	if !decision.Allowed {
		return models.Transaction{}, &DenialError{Reason: decision.Reason}
	}

	transactionID := uuid.NewString()
	reference := req.Reference
	if reference == "" {
		reference = newReference()
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:         transactionID,
			Reference:  reference,
			PartnerID:  req.PartnerID,
			PlatformID: req.PlatformID,
			Type:       req.Type,
			Status:     string(lifecycle.StatusPending),
			Amount:     req.AmountMinor,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"platform_id": req.PlatformID,
			"type":        req.Type,
			"amount":      req.AmountMinor,
		})
		return s.audit.Log(ctx, tx, req.RequestedBy, "create_transaction", "transaction", transactionID, string(data))
	})
	if err != nil {
		return models.Transaction{}, err
	}
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	s.broadcast(txn)
	return txn, nil
}

// Settle is the full flow: synchronous create, then asynchronous hand-off to
// the payment network. Completion arrives later through MarkSuccess or
// MarkFailed, driven by the network callback.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (models.Transaction, error) {
	txn, err := s.Create(ctx, req)
	if err != nil {
		return models.Transaction{}, err
	}
	go func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
		defer cancel()
		if err := s.Dispatch(dispatchCtx, txn.ID); err != nil {
			log.Printf("dispatch transaction %s: %v", txn.ID, err)
		}
	}()
	return txn, nil
}

// Dispatch re-checks authorization at the moment funds actually leave,
// because a permission revoked after create must still stop the money.
func (s *SettlementService) Dispatch(ctx context.Context, transactionID string) error {
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return err
	}
	decision, err := s.authorizer.Authorize(ctx, txn.PartnerID, txn.PlatformID, txn.Type, txn.Amount)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if _, err := s.MarkFailed(ctx, transactionID, "authorization revoked: "+string(decision.Reason), "system"); err != nil {
			return err
		}
		return &DenialError{Reason: decision.Reason}
	}
	txn, err = s.MarkProcessing(ctx, transactionID)
	if err != nil {
		return err
	}
	platform, err := s.platforms.GetByID(ctx, txn.PlatformID)
	if err != nil {
		return err
	}
	result, err := s.dispatcher.Dispatch(ctx, DispatchRequest{
		TransactionID:      txn.ID,
		Reference:          txn.Reference,
		PartnerID:          txn.PartnerID,
		PlatformExternalID: platform.ExternalID,
		Type:               txn.Type,
		AmountMinor:        txn.Amount,
	})
	if err != nil {
		depErr := &DependencyError{Op: "payment_network", Err: err}
		if _, failErr := s.MarkFailed(ctx, transactionID, depErr.Error(), "system"); failErr != nil {
			return failErr
		}
		return depErr
	}
	if result.ExternalID != "" {
		if err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.transactions.SetExternalID(ctx, tx, transactionID, result.ExternalID)
		}); err != nil {
			return err
		}
	}
	if !result.Accepted {
		if _, err := s.MarkFailed(ctx, transactionID, "payment network rejected dispatch", "system"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SettlementService) MarkProcessing(ctx context.Context, transactionID string) (models.Transaction, error) {
	var result models.Transaction
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == string(lifecycle.StatusProcessing) {
			result = txn
			return nil
		}
		target, err := lifecycle.Target(lifecycle.Status(txn.Status), lifecycle.ActionProcess)
		if err != nil {
			return err
		}
		rows, err := s.transactions.TransitionStatus(ctx, tx, transactionID, txn.Status, string(target))
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.broadcast(result)
	return result, nil
}

// MarkSuccess settles a transaction. On first entry into success, and only
// then, the commission rate is frozen from the config in effect right now
// and the amount accrued; a replay returns the already-settled row untouched.
func (s *SettlementService) MarkSuccess(ctx context.Context, transactionID, reason, actorID string, externalID *string) (models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Transaction{}, ErrReasonRequired
	}
	var result models.Transaction
	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == string(lifecycle.StatusSuccess) {
			result = txn
			return nil
		}
		if _, err := lifecycle.Target(lifecycle.Status(txn.Status), lifecycle.ActionSucceed); err != nil {
			return err
		}
		rows, err := s.transactions.RecordSuccess(ctx, tx, transactionID, txn.Status, externalID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		if !txn.CommissionAccrued {
			rate, err := s.rates.EffectiveRate(ctx, txn.PartnerID, txn.Type)
			if err != nil {
				return err
			}
			if _, err := s.ledger.Accrue(ctx, tx, transactionID, rate, txn.Amount); err != nil && !errors.Is(err, ErrAlreadyAccrued) {
				return err
			}
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.audit.Log(ctx, tx, actorID, "mark_success", "transaction", transactionID, string(data)); err != nil {
			return err
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		changed = true
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if changed {
		s.broadcast(result)
	}
	return result, nil
}

func (s *SettlementService) MarkFailed(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Transaction{}, ErrReasonRequired
	}
	return s.terminate(ctx, transactionID, lifecycle.StatusFailed, lifecycle.ActionFail, reason, actorID, "mark_failed")
}

func (s *SettlementService) MarkTimeout(ctx context.Context, transactionID, actorID string) (models.Transaction, error) {
	return s.terminate(ctx, transactionID, lifecycle.StatusTimeout, lifecycle.ActionTimeout, "settlement deadline exceeded", actorID, "mark_timeout")
}

func (s *SettlementService) terminate(ctx context.Context, transactionID string, status lifecycle.Status, action lifecycle.Action, reason, actorID, auditAction string) (models.Transaction, error) {
	var result models.Transaction
	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == string(status) {
			result = txn
			return nil
		}
		if _, err := lifecycle.Target(lifecycle.Status(txn.Status), action); err != nil {
			return err
		}
		rows, err := s.transactions.RecordFailure(ctx, tx, transactionID, txn.Status, string(status), reason)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.audit.Log(ctx, tx, actorID, auditAction, "transaction", transactionID, string(data)); err != nil {
			return err
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		changed = true
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if changed {
		s.broadcast(result)
	}
	return result, nil
}

// Cancel moves an in-flight transaction straight to cancelled. A terminal
// transaction instead becomes cancellation_requested: the network request is
// already gone and only an admin can decide whether funds actually moved.
func (s *SettlementService) Cancel(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Transaction{}, ErrReasonRequired
	}
	var result models.Transaction
	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == string(lifecycle.StatusCancelled) || txn.Status == string(lifecycle.StatusCancellationRequested) {
			result = txn
			return nil
		}
		target, err := lifecycle.Target(lifecycle.Status(txn.Status), lifecycle.ActionCancel)
		if err != nil {
			return err
		}
		var rows int64
		if target == lifecycle.StatusCancelled {
			rows, err = s.transactions.RecordCancelled(ctx, tx, transactionID, txn.Status)
		} else {
			rows, err = s.transactions.RecordCancellationRequest(ctx, tx, transactionID, txn.Status)
		}
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.audit.Log(ctx, tx, actorID, "cancel_transaction", "transaction", transactionID, string(data)); err != nil {
			return err
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		changed = true
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if changed {
		s.broadcast(result)
	}
	return result, nil
}

func (s *SettlementService) Retry(ctx context.Context, transactionID, reason, actorID string) (models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Transaction{}, ErrReasonRequired
	}
	var result models.Transaction
	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		// Retry lands the transaction back in pending, so a replayed retry
		// sees the row it already produced and returns it without a second
		// counter increment or dispatch.
		if txn.Status == string(lifecycle.StatusPending) {
			result = txn
			return nil
		}
		if _, err := lifecycle.Target(lifecycle.Status(txn.Status), lifecycle.ActionRetry); err != nil {
			return err
		}
		if txn.RetryCount >= s.cfg.RetryLimit {
			return ErrRetryLimitExceeded
		}
		rows, err := s.transactions.RecordRetry(ctx, tx, transactionID, txn.Status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConcurrentUpdate
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.audit.Log(ctx, tx, actorID, "retry_transaction", "transaction", transactionID, string(data)); err != nil {
			return err
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		changed = true
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if !changed {
		return result, nil
	}
	s.broadcast(result)
	go func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
		defer cancel()
		if err := s.Dispatch(dispatchCtx, transactionID); err != nil {
			log.Printf("dispatch retried transaction %s: %v", transactionID, err)
		}
	}()
	return result, nil
}

// ProcessCancellation adjudicates a cancellation request. Approval cancels
// the transaction and refunds the full amount to the partner's balance;
// commission already accrued on a prior success is not clawed back.
// Rejection restores the terminal status the request came from.
func (s *SettlementService) ProcessCancellation(ctx context.Context, transactionID string, approve bool, notes, actorID string) (models.Transaction, error) {
	if strings.TrimSpace(notes) == "" {
		return models.Transaction{}, ErrReasonRequired
	}
	var result models.Transaction
	var changed bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		changed = false
		txn, err := s.getForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status != string(lifecycle.StatusCancellationRequested) {
			if approve && txn.Status == string(lifecycle.StatusCancelled) {
				result = txn
				return nil
			}
			return &lifecycle.TransitionError{From: lifecycle.Status(txn.Status), Action: "adjudicate"}
		}
		if approve {
			rows, err := s.transactions.RestoreStatus(ctx, tx, transactionID, string(lifecycle.StatusCancelled))
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrConcurrentUpdate
			}
			inserted, err := s.accounts.InsertEntry(ctx, tx, store.AccountEntryInput{
				ID:        uuid.NewString(),
				PartnerID: txn.PartnerID,
				Amount:    txn.Amount,
				Reference: "refund:" + txn.ID,
				Reason:    "cancellation refund",
			})
			if err != nil {
				return err
			}
			if inserted > 0 {
				if _, err := s.partners.AdjustBalance(ctx, tx, txn.PartnerID, txn.Amount); err != nil {
					return err
				}
			}
		} else {
			// previous_status is always written on entry into
			// cancellation_requested; failed is the conservative restore if a
			// legacy row lacks one.
			previous := string(lifecycle.StatusFailed)
			if txn.PreviousStatus != nil {
				previous = *txn.PreviousStatus
			}
			rows, err := s.transactions.RestoreStatus(ctx, tx, transactionID, previous)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrConcurrentUpdate
			}
		}
		data, _ := json.Marshal(map[string]any{
			"approved": approve,
			"notes":    notes,
		})
		if err := s.audit.Log(ctx, tx, actorID, "process_cancellation", "transaction", transactionID, string(data)); err != nil {
			return err
		}
		result, err = s.getForUpdate(ctx, tx, transactionID)
		changed = true
		return err
	})
	if err != nil {
		return models.Transaction{}, err
	}
	if changed {
		s.broadcast(result)
	}
	return result, nil
}

// SweepTimeouts times out open transactions older than the configured
// deadline. Races with a settling callback lose harmlessly: the transition
// check rejects the sweep for a row that just settled.
func (s *SettlementService) SweepTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	stale, err := s.transactions.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, txn := range stale {
		if _, err := s.MarkTimeout(ctx, txn.ID, "system"); err != nil {
			var transitionErr *lifecycle.TransitionError
			if errors.As(err, &transitionErr) || errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (s *SettlementService) Get(ctx context.Context, transactionID string) (models.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *SettlementService) List(ctx context.Context, filter store.TransactionFilter, limit, offset int) ([]models.Transaction, error) {
	return s.transactions.List(ctx, filter, limit, offset)
}

func (s *SettlementService) getForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error) {
	txn, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, ErrTransactionNotFound
		}
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *SettlementService) broadcast(txn models.Transaction) {
	s.hub.BroadcastSettlement(websocket.SettlementUpdate{
		Event:         "transaction",
		TransactionID: txn.ID,
		Reference:     txn.Reference,
		PartnerID:     txn.PartnerID,
		Status:        txn.Status,
		Amount:        money.FormatMinor(txn.Amount),
		Commission:    money.FormatMinor(txn.CommissionAmount),
	})
}

func newReference() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
