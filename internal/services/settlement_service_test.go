package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"blaffapay/internal/lifecycle"
	"blaffapay/internal/models"
	"blaffapay/internal/store"

	"github.com/shopspring/decimal"
)

type settlementDeps struct {
	transactions stubSettlementTxStore
	partners     stubPartnerStore
	platforms    stubPlatformStore
	authorizer   stubAuthorizer
	rates        stubRateSource
	ledger       stubAccruer
	accounts     stubAccountStore
	dispatcher   stubDispatcher
	cfg          SettlementConfig
}

func newSettlementService(deps settlementDeps) *SettlementService {
	return NewSettlementService(fakeTxRunner{}, deps.transactions, deps.partners, deps.platforms,
		deps.authorizer, deps.rates, deps.ledger, deps.accounts, stubAuditStore{}, deps.dispatcher,
		stubHub{}, deps.cfg)
}

func TestCreateDeniedPersistsNothing(t *testing.T) {
	var created bool
	service := newSettlementService(settlementDeps{
		authorizer: stubAuthorizer{
			authorizeFn: func(context.Context, string, string, string, int64) (Decision, error) {
				return Decision{Reason: DenialActionNotAllowed}, nil
			},
		},
		transactions: stubSettlementTxStore{
			createFn: func(context.Context, store.Execer, store.TransactionInput) error {
				created = true
				return nil
			},
		},
	})
	_, err := service.Create(context.Background(), SettleRequest{
		PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, AmountMinor: 10000, RequestedBy: "admin-1",
	})
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected DenialError, got %v", err)
	}
	if denial.Reason != DenialActionNotAllowed {
		t.Fatalf("unexpected reason %q", denial.Reason)
	}
	if created {
		t.Fatal("denied request must not create a transaction")
	}
}

func TestCreateValidation(t *testing.T) {
	service := newSettlementService(settlementDeps{})
	if _, err := service.Create(context.Background(), SettleRequest{PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, AmountMinor: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := service.Create(context.Background(), SettleRequest{PartnerID: "p1", PlatformID: "pl1", Type: "transfer", AmountMinor: 100}); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestCreateRejectsInactivePartner(t *testing.T) {
	service := newSettlementService(settlementDeps{
		partners: stubPartnerStore{
			getByIDFn: func(_ context.Context, partnerID string) (models.Partner, error) {
				return models.Partner{ID: partnerID, IsActive: false}, nil
			},
		},
	})
	_, err := service.Create(context.Background(), SettleRequest{PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, AmountMinor: 100})
	if !errors.Is(err, ErrPartnerInactive) {
		t.Fatalf("expected ErrPartnerInactive, got %v", err)
	}
}

func TestCreateGeneratesReference(t *testing.T) {
	var gotRef string
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				gotRef = input.Reference
				return nil
			},
		},
	})
	if _, err := service.Create(context.Background(), SettleRequest{PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, AmountMinor: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotRef) != len("TXN-")+12 || gotRef[:4] != "TXN-" {
		t.Fatalf("unexpected generated reference %q", gotRef)
	}
}

func TestMarkSuccessFreezesRateOnFirstSettle(t *testing.T) {
	var accruedRate decimal.Decimal
	var accruedAmount int64
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, PartnerID: "p1", Type: TypeWithdrawal, Status: "processing", Amount: 10000}, nil
			},
		},
		rates: stubRateSource{
			effectiveRateFn: func(_ context.Context, _ string, txType string) (decimal.Decimal, error) {
				if txType != TypeWithdrawal {
					t.Fatalf("expected withdrawal rate lookup, got %q", txType)
				}
				return decimal.RequireFromString("3.00"), nil
			},
		},
		ledger: stubAccruer{
			accrueFn: func(_ context.Context, _ store.Execer, _ string, rate decimal.Decimal, amountMinor int64) (int64, error) {
				accruedRate = rate
				accruedAmount = amountMinor
				return 300, nil
			},
		},
	})
	if _, err := service.MarkSuccess(context.Background(), "tx-1", "network confirmed", "admin-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accruedRate.StringFixed(2) != "3.00" || accruedAmount != 10000 {
		t.Fatalf("expected accrual at 3.00 on 10000, got %s on %d", accruedRate, accruedAmount)
	}
}

func TestMarkSuccessReplayDoesNotReaccrue(t *testing.T) {
	var recorded, accrued bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "success", CommissionAccrued: true, CommissionAmount: 300}, nil
			},
			recordSuccessFn: func(context.Context, store.Execer, string, string, *string) (int64, error) {
				recorded = true
				return 1, nil
			},
		},
		ledger: stubAccruer{
			accrueFn: func(context.Context, store.Execer, string, decimal.Decimal, int64) (int64, error) {
				accrued = true
				return 0, nil
			},
		},
	})
	txn, err := service.MarkSuccess(context.Background(), "tx-1", "callback replay", "payment-network", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.CommissionAmount != 300 {
		t.Fatalf("expected frozen commission 300, got %d", txn.CommissionAmount)
	}
	if recorded || accrued {
		t.Fatalf("replay must not touch the row, got recorded=%v accrued=%v", recorded, accrued)
	}
}

func TestMarkSuccessSkipsAccrualWhenAlreadyAccrued(t *testing.T) {
	// A transaction already accrued keeps its frozen rate when a later
	// callback settles it again after a restore.
	var accrued bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "processing", CommissionAccrued: true}, nil
			},
		},
		ledger: stubAccruer{
			accrueFn: func(context.Context, store.Execer, string, decimal.Decimal, int64) (int64, error) {
				accrued = true
				return 0, nil
			},
		},
	})
	if _, err := service.MarkSuccess(context.Background(), "tx-1", "late callback", "payment-network", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accrued {
		t.Fatal("accrual must not run a second time")
	}
}

func TestMarkSuccessRequiresReason(t *testing.T) {
	service := newSettlementService(settlementDeps{})
	if _, err := service.MarkSuccess(context.Background(), "tx-1", "  ", "admin-1", nil); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
}

func TestMarkSuccessInvalidFromCancelled(t *testing.T) {
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "cancelled"}, nil
			},
		},
	})
	_, err := service.MarkSuccess(context.Background(), "tx-1", "manual", "admin-1", nil)
	var transitionErr *lifecycle.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transitionErr.From != lifecycle.StatusCancelled {
		t.Fatalf("unexpected from status %q", transitionErr.From)
	}
}

func TestCancelInFlightGoesStraightToCancelled(t *testing.T) {
	var cancelled, requested bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "pending"}, nil
			},
			recordCancelledFn: func(context.Context, store.Execer, string, string) (int64, error) {
				cancelled = true
				return 1, nil
			},
			recordCancellationRequestFn: func(context.Context, store.Execer, string, string) (int64, error) {
				requested = true
				return 1, nil
			},
		},
	})
	if _, err := service.Cancel(context.Background(), "tx-1", "partner request", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled || requested {
		t.Fatalf("pending must cancel directly, got cancelled=%v requested=%v", cancelled, requested)
	}
}

func TestCancelTerminalBecomesRequest(t *testing.T) {
	var requested bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "success"}, nil
			},
			recordCancellationRequestFn: func(_ context.Context, _ store.Execer, _ string, from string) (int64, error) {
				requested = true
				if from != "success" {
					t.Fatalf("expected previous status success, got %q", from)
				}
				return 1, nil
			},
		},
	})
	if _, err := service.Cancel(context.Background(), "tx-1", "chargeback", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !requested {
		t.Fatal("terminal cancel must create a cancellation request")
	}
}

func TestRetryLimitEnforcedBeforeIncrement(t *testing.T) {
	var retried bool
	service := newSettlementService(settlementDeps{
		cfg: SettlementConfig{RetryLimit: 3},
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "failed", RetryCount: 3}, nil
			},
			recordRetryFn: func(context.Context, store.Execer, string, string) (int64, error) {
				retried = true
				return 1, nil
			},
		},
	})
	_, err := service.Retry(context.Background(), "tx-1", "try again", "admin-1")
	if !errors.Is(err, ErrRetryLimitExceeded) {
		t.Fatalf("expected ErrRetryLimitExceeded, got %v", err)
	}
	if retried {
		t.Fatal("retry at the cap must not increment the counter")
	}
}

func TestRetryReplayReturnsPendingRow(t *testing.T) {
	var retried bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "pending", RetryCount: 1}, nil
			},
			recordRetryFn: func(context.Context, store.Execer, string, string) (int64, error) {
				retried = true
				return 1, nil
			},
		},
	})
	txn, err := service.Retry(context.Background(), "tx-1", "try again", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status != "pending" || txn.RetryCount != 1 {
		t.Fatalf("expected the already pending row back, got %+v", txn)
	}
	if retried {
		t.Fatal("replay must not increment the retry counter")
	}
}

func TestRetryOnlyFromRetryableStatus(t *testing.T) {
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "success"}, nil
			},
		},
	})
	var transitionErr *lifecycle.TransitionError
	if _, err := service.Retry(context.Background(), "tx-1", "oops", "admin-1"); !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestProcessCancellationApproveRefunds(t *testing.T) {
	var restoredTo, entryRef string
	var refunded int64
	previous := "success"
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, PartnerID: "p1", Status: "cancellation_requested", PreviousStatus: &previous, Amount: 10000}, nil
			},
			restoreStatusFn: func(_ context.Context, _ store.Execer, _ string, to string) (int64, error) {
				restoredTo = to
				return 1, nil
			},
		},
		accounts: stubAccountStore{
			insertEntryFn: func(_ context.Context, _ store.Execer, input store.AccountEntryInput) (int64, error) {
				entryRef = input.Reference
				return 1, nil
			},
		},
		partners: stubPartnerStore{
			adjustBalanceFn: func(_ context.Context, _ store.Execer, _ string, delta int64) (int64, error) {
				refunded = delta
				return delta, nil
			},
		},
	})
	if _, err := service.ProcessCancellation(context.Background(), "tx-1", true, "dispute upheld", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restoredTo != "cancelled" {
		t.Fatalf("expected restore to cancelled, got %q", restoredTo)
	}
	if refunded != 10000 {
		t.Fatalf("expected full refund of 10000, got %d", refunded)
	}
	if entryRef != "refund:tx-1" {
		t.Fatalf("unexpected refund reference %q", entryRef)
	}
}

func TestProcessCancellationRejectRestoresPrevious(t *testing.T) {
	var restoredTo string
	var refunded bool
	previous := "timeout"
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "cancellation_requested", PreviousStatus: &previous, Amount: 10000}, nil
			},
			restoreStatusFn: func(_ context.Context, _ store.Execer, _ string, to string) (int64, error) {
				restoredTo = to
				return 1, nil
			},
		},
		partners: stubPartnerStore{
			adjustBalanceFn: func(_ context.Context, _ store.Execer, _ string, delta int64) (int64, error) {
				refunded = true
				return delta, nil
			},
		},
	})
	if _, err := service.ProcessCancellation(context.Background(), "tx-1", false, "funds already moved", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restoredTo != "timeout" {
		t.Fatalf("expected restore to timeout, got %q", restoredTo)
	}
	if refunded {
		t.Fatal("rejection must not refund")
	}
}

func TestProcessCancellationWrongStatus(t *testing.T) {
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "processing"}, nil
			},
		},
	})
	var transitionErr *lifecycle.TransitionError
	if _, err := service.ProcessCancellation(context.Background(), "tx-1", true, "notes", "admin-1"); !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestProcessCancellationApproveReplay(t *testing.T) {
	var restored bool
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "cancelled"}, nil
			},
			restoreStatusFn: func(context.Context, store.Execer, string, string) (int64, error) {
				restored = true
				return 1, nil
			},
		},
	})
	txn, err := service.ProcessCancellation(context.Background(), "tx-1", true, "replayed approval", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %q", txn.Status)
	}
	if restored {
		t.Fatal("replay must not touch the row")
	}
}

func TestDispatchRevokedAuthorizationFails(t *testing.T) {
	var failedReason string
	service := newSettlementService(settlementDeps{
		authorizer: stubAuthorizer{
			authorizeFn: func(context.Context, string, string, string, int64) (Decision, error) {
				return Decision{Reason: DenialPermissionInactive}, nil
			},
		},
		transactions: stubSettlementTxStore{
			getByIDFn: func(_ context.Context, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, Status: "pending", Amount: 100}, nil
			},
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "pending"}, nil
			},
			recordFailureFn: func(_ context.Context, _ store.Execer, _ string, _ string, _ string, reason string) (int64, error) {
				failedReason = reason
				return 1, nil
			},
		},
	})
	err := service.Dispatch(context.Background(), "tx-1")
	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected DenialError, got %v", err)
	}
	if failedReason != "authorization revoked: permission_inactive" {
		t.Fatalf("unexpected failure reason %q", failedReason)
	}
}

func TestDispatchDependencyFailureMarksFailed(t *testing.T) {
	var status string
	service := newSettlementService(settlementDeps{
		transactions: stubSettlementTxStore{
			getByIDFn: func(_ context.Context, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, PartnerID: "p1", PlatformID: "pl1", Type: TypeDeposit, Status: "pending", Amount: 100}, nil
			},
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				return models.Transaction{ID: transactionID, Status: "processing"}, nil
			},
			recordFailureFn: func(_ context.Context, _ store.Execer, _ string, _ string, to string, _ string) (int64, error) {
				status = to
				return 1, nil
			},
		},
		dispatcher: stubDispatcher{
			dispatchFn: func(context.Context, DispatchRequest) (DispatchResult, error) {
				return DispatchResult{}, errors.New("connection refused")
			},
		},
	})
	err := service.Dispatch(context.Background(), "tx-1")
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
	if status != "failed" {
		t.Fatalf("expected transition to failed, got %q", status)
	}
}

func TestSweepTimeoutsToleratesRaces(t *testing.T) {
	// tx-2 settled between listing and sweeping; the sweep skips it and
	// still times out the genuinely stale row.
	service := newSettlementService(settlementDeps{
		cfg: SettlementConfig{StaleAfter: 30 * time.Minute},
		transactions: stubSettlementTxStore{
			listStaleFn: func(context.Context, time.Time) ([]models.Transaction, error) {
				return []models.Transaction{{ID: "tx-1", Status: "processing"}, {ID: "tx-2", Status: "processing"}}, nil
			},
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
				if transactionID == "tx-2" {
					return models.Transaction{ID: transactionID, Status: "success"}, nil
				}
				return models.Transaction{ID: transactionID, Status: "processing"}, nil
			},
		},
	})
	swept, err := service.SweepTimeouts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}
}
