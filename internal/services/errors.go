package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrReasonRequired       = errors.New("a non-empty reason is required")
	ErrInvalidRate          = errors.New("commission rate must be between 0 and 100")
	ErrDuplicatePermission  = errors.New("permission already exists for this partner and platform")
	ErrPlatformNotFound     = errors.New("platform not found")
	ErrPlatformInactive     = errors.New("platform is inactive")
	ErrPermissionNotFound   = errors.New("permission not found")
	ErrPartnerNotFound      = errors.New("partner not found")
	ErrPartnerInactive      = errors.New("partner is inactive")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrRetryLimitExceeded   = errors.New("retry limit exceeded")
	ErrNothingToPay         = errors.New("no unpaid commissions to pay")
	ErrAlreadyAccrued       = errors.New("commission already accrued for this transaction")
	ErrUnpayableTransaction = errors.New("selection includes a transaction that is not payable")
	ErrConcurrentUpdate     = errors.New("transaction was modified concurrently, retry")
)

type DenialReason string

const (
	DenialNoPermission       DenialReason = "no_permission"
	DenialPermissionInactive DenialReason = "permission_inactive"
	DenialActionNotAllowed   DenialReason = "action_not_allowed"
	DenialAmountOutOfBounds  DenialReason = "amount_out_of_bounds"
)

// DenialError surfaces an authorization denial verbatim to the caller; it is
// never retried.
type DenialError struct {
	Reason DenialReason
}

func (e *DenialError) Error() string {
	return "authorization denied: " + string(e.Reason)
}

// DependencyError wraps a failed call to an external collaborator. Its
// message becomes the transaction's failure_reason rather than being dropped.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
