// Package lifecycle defines the transaction status machine. It is pure data:
// persistence and side effects live in the services that consume it.
package lifecycle

import "fmt"

type Status string

const (
	StatusPending               Status = "pending"
	StatusProcessing            Status = "processing"
	StatusSuccess               Status = "success"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
	StatusTimeout               Status = "timeout"
	StatusCancellationRequested Status = "cancellation_requested"
)

type Action string

const (
	ActionProcess Action = "process"
	ActionSucceed Action = "succeed"
	ActionFail    Action = "fail"
	ActionCancel  Action = "cancel"
	ActionRetry   Action = "retry"
	ActionTimeout Action = "timeout"
)

var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusSuccess,
	StatusFailed,
	StatusCancelled,
	StatusTimeout,
	StatusCancellationRequested,
}

var Actions = []Action{
	ActionProcess,
	ActionSucceed,
	ActionFail,
	ActionCancel,
	ActionRetry,
	ActionTimeout,
}

// A cancel on an already-terminal transaction moves to cancellation_requested
// instead of cancelled: funds may already have moved externally, so an admin
// has to adjudicate it rather than the machine reversing it silently.
var transitions = map[Action]map[Status]Status{
	ActionProcess: {
		StatusPending: StatusProcessing,
	},
	ActionSucceed: {
		StatusPending:               StatusSuccess,
		StatusProcessing:            StatusSuccess,
		StatusCancellationRequested: StatusSuccess,
	},
	ActionFail: {
		StatusPending:               StatusFailed,
		StatusProcessing:            StatusFailed,
		StatusCancellationRequested: StatusFailed,
	},
	ActionCancel: {
		StatusPending:    StatusCancelled,
		StatusProcessing: StatusCancelled,
		StatusSuccess:    StatusCancellationRequested,
		StatusFailed:     StatusCancellationRequested,
		StatusTimeout:    StatusCancellationRequested,
	},
	ActionRetry: {
		StatusFailed:  StatusPending,
		StatusTimeout: StatusPending,
	},
	ActionTimeout: {
		StatusPending:    StatusTimeout,
		StatusProcessing: StatusTimeout,
	},
}

type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s a %s transaction", e.Action, e.From)
}

// Target returns the status an action moves a transaction to, or a
// *TransitionError when the action is not valid from the current status.
func Target(from Status, action Action) (Status, error) {
	to, ok := transitions[action][from]
	if !ok {
		return "", &TransitionError{From: from, Action: action}
	}
	return to, nil
}

func Valid(from Status, action Action) bool {
	_, ok := transitions[action][from]
	return ok
}

// IsTerminal reports whether no automatic transition leaves the status.
// cancellation_requested is held open for admin adjudication.
func IsTerminal(status Status) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

func IsKnown(status Status) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}
