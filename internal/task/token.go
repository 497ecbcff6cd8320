package task

import "sync/atomic"

// AbortToken is a write-once cancellation flag shared between the supervisor
// and a task's execution context. It is readable from any goroutine without
// blocking; clients poll it cooperatively (before the request and once per
// streamed chunk).
type AbortToken struct {
	tripped atomic.Bool
}

func NewAbortToken() *AbortToken { return &AbortToken{} }

// Trip sets the flag. It reports whether this call was the one that set it,
// so callers can treat repeated cancellation as a no-op.
func (t *AbortToken) Trip() bool {
	return t.tripped.CompareAndSwap(false, true)
}

// Aborted reports whether the token has been tripped.
func (t *AbortToken) Aborted() bool { return t.tripped.Load() }
