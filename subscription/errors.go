package subscription

import (
	"errors"
	"fmt"
)

// Sentinel errors making up the failure taxonomy of §7. Connection
// implementations should wrap one of these (or ErrServerError, for
// anything not otherwise classified) inside a FailureMsg.
var (
	// ErrStreamNotFound is recoverable-to-empty: the state machine absorbs
	// it as an empty read at the current position and keeps running.
	ErrStreamNotFound = errors.New("subscription: stream not found")

	// ErrStreamDeleted is classified as recoverable-to-empty at the
	// taxonomy level (§7), but the state machine's transition tables
	// (§4.1) only ever special-case ErrStreamNotFound; no transition rule
	// absorbs ErrStreamDeleted into an empty read. Per the resolved open
	// question (SPEC_FULL.md §9), it falls through to the terminal-error
	// default like any other unrecognized failure.
	ErrStreamDeleted = errors.New("subscription: stream deleted")

	// ErrServerError, ErrNotAuthenticated and ErrAccessDenied are terminal:
	// they end the subscription with OnError.
	ErrServerError      = errors.New("subscription: server error")
	ErrNotAuthenticated = errors.New("subscription: not authenticated")
	ErrAccessDenied     = errors.New("subscription: access denied")
)

// ErrCanceled names the reason for a subscription torn down by the
// consumer calling Handle.Cancel. The state machine never reports it:
// cancellation is reported via OnComplete, per §5, and no code path in
// this package passes ErrCanceled to Consumer.OnError.
var ErrCanceled = errors.New("subscription: canceled by consumer")

// absorbable reports whether err should be treated as an empty read
// rather than a terminal failure. Only ErrStreamNotFound is absorbed by
// the state machine's transition tables; see the ErrStreamDeleted comment
// above for why it is deliberately excluded here.
func absorbable(err error) bool {
	return errors.Is(err, ErrStreamNotFound)
}

// wrapf mirrors the teacher's fmt.Errorf("subscription.X: ...: %w", err)
// wrapping convention used throughout subscription.CatchUp.
func wrapf(op string, err error) error {
	return fmt.Errorf("subscription.%s: %w", op, err)
}
