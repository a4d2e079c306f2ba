package remediation

import (
	"fmt"
	"time"
)

// Approve moves a pending action to approved. Any other starting state is a
// conflict; the action is left unchanged.
func Approve(a *Action, by string, now time.Time) error {
	if a.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrNotPending, a.Status)
	}
	a.Status = StatusApproved
	a.ApprovedAt = &now
	a.ApprovedBy = by
	return nil
}

// Reject moves a pending action to the terminal rejected state. The reason is
// required and recorded verbatim.
func Reject(a *Action, by, reason string, now time.Time) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if a.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrNotPending, a.Status)
	}
	a.Status = StatusRejected
	a.RejectedAt = &now
	a.RejectedBy = by
	a.RejectReason = reason
	return nil
}

// Complete applies an execution result to an executing action, ending it
// completed or failed. Output is capped; overflow is dropped.
func Complete(a *Action, result Result, now time.Time) error {
	if a.Status != StatusExecuting {
		return fmt.Errorf("%w: status is %s", ErrNotExecuting, a.Status)
	}

	if result.Failed() {
		a.Status = StatusFailed
	} else {
		a.Status = StatusCompleted
	}

	a.CompletedAt = &now
	a.Stdout = TruncateOutput(result.Stdout)
	a.Stderr = TruncateOutput(result.Stderr)

	if result.ExitCode != nil {
		code := *result.ExitCode
		a.ExitCode = &code
	} else if result.Success != nil {
		code := 0
		if !*result.Success {
			code = 1
		}
		a.ExitCode = &code
	}

	return nil
}
