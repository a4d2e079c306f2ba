package remediation

import "errors"

var (
	ErrActionNotFound    = errors.New("action not found")
	ErrInvalidActionID   = errors.New("invalid action id")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrServiceRequired   = errors.New("service name is required for this action type")
	ErrReasonRequired    = errors.New("rejection reason is required")

	// ErrNotPending is the conflict surfaced when approving or rejecting an
	// action that already left the pending state.
	ErrNotPending = errors.New("action is not pending")
	// ErrNotExecuting is returned when a result arrives for an action that is
	// not currently executing.
	ErrNotExecuting = errors.New("action is not executing")
)
