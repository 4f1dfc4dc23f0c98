package checkpoint

import "context"

// Store persists the last position confirmed processed for a named
// subscription, so that a restart can resume it with subscription.FromExact
// instead of re-reading the whole log from subscription.FromBeginning.
//
// Read reports false in its second return value when no checkpoint has
// ever been written for name, so that a caller can fall back to its own
// default starting position.
type Store[P any] interface {
	Read(ctx context.Context, name string) (P, bool, error)
	Write(ctx context.Context, name string, pos P) error
}

// Nop is a Store that never persists anything: every Read reports that
// no checkpoint exists. Use it for subscriptions that never need to
// resume, such as one-shot batch jobs.
type Nop[P any] struct{}

// Read always reports no checkpoint found.
func (Nop[P]) Read(context.Context, string) (P, bool, error) {
	var zero P
	return zero, false, nil
}

// Write is a no-op.
func (Nop[P]) Write(context.Context, string, P) error { return nil }

// Fixed is a Store that always reports the same starting position,
// regardless of what has been written to it. Useful for volatile
// subscriptions that should always resume tailing from a fixed point,
// such as "whatever was current when the process started".
type Fixed[P any] struct{ From P }

// Read always returns From.
func (f Fixed[P]) Read(context.Context, string) (P, bool, error) { return f.From, true, nil }

// Write is a no-op.
func (f Fixed[P]) Write(context.Context, string, P) error { return nil }
