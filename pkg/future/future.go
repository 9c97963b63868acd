// Package future provides a promise-style future that can be resolved,
// rejected, or externally cancelled, with a single guaranteed cleanup hook
// that runs on the first terminal transition regardless of which terminal
// state is reached.
package future

import (
	"context"
	"errors"
	"sync"
)

// Status represents the settlement state of a Future.
type Status int

const (
	// Pending indicates the future has not settled yet.
	Pending Status = iota
	// Resolved indicates the future settled successfully.
	Resolved
	// Rejected indicates the future settled with an error.
	Rejected
	// Canceled indicates the future was cancelled before settling.
	Canceled
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ErrCanceled matches any cancellation error via errors.Is.
var ErrCanceled = errors.New("future canceled")

// CanceledError reports why a future was cancelled.
type CanceledError struct {
	Reason string
}

// Error implements the error interface.
func (e *CanceledError) Error() string {
	if e.Reason == "" {
		return "future canceled"
	}
	return "future canceled: " + e.Reason
}

// Is reports whether target is ErrCanceled.
func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// Future is a single-settlement promise. Exactly one of Resolve, Reject or
// Cancel takes effect; subsequent calls are no-ops. The cleanup hook passed
// to New runs exactly once, on the first terminal transition, before Done
// observers unblock.
type Future struct {
	mu      sync.Mutex
	status  Status
	value   any
	err     error
	done    chan struct{}
	cleanup func()
}

// New creates a future. body, if non-nil, runs synchronously with resolve
// and reject callbacks, promise-executor style. cleanup, if non-nil, runs on
// the first terminal transition.
func New(body func(resolve func(any), reject func(error)), cleanup func()) *Future {
	f := &Future{
		done:    make(chan struct{}),
		cleanup: cleanup,
	}
	if body != nil {
		body(func(v any) { f.Resolve(v) }, func(err error) { f.Reject(err) })
	}
	return f
}

// settle performs the terminal transition. The terminal status is recorded
// under the lock, the cleanup hook runs outside it (so cleanup may safely
// re-enter Cancel/Resolve/Reject, which become no-ops), and only then does
// the done channel close.
func (f *Future) settle(status Status, value any, err error) bool {
	f.mu.Lock()
	if f.status != Pending {
		f.mu.Unlock()
		return false
	}
	f.status = status
	f.value = value
	f.err = err
	cleanup := f.cleanup
	f.cleanup = nil
	f.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
	close(f.done)
	return true
}

// Resolve settles the future successfully. It reports whether this call
// performed the terminal transition.
func (f *Future) Resolve(value any) bool {
	return f.settle(Resolved, value, nil)
}

// Reject settles the future with an error.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = errors.New("future rejected")
	}
	return f.settle(Rejected, nil, err)
}

// Cancel settles the future as cancelled with an optional reason.
func (f *Future) Cancel(reason string) bool {
	return f.settle(Canceled, nil, &CanceledError{Reason: reason})
}

// Pending reports whether the future has not yet settled.
func (f *Future) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == Pending
}

// Status returns the current settlement status.
func (f *Future) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Done returns a channel closed after the future settles and its cleanup
// hook has run.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the settlement error: nil while pending or resolved, the
// rejection error, or a *CanceledError.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Value returns the resolution value, or nil if the future has not resolved.
func (f *Future) Value() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait blocks until the future settles or ctx ends. It returns the
// resolution value and the settlement error.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}
