package pipeline

import "sync/atomic"

// Token is a cancellation flag that may be set from any goroutine. The
// pipeline reads it only between stages.
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token { return &Token{} }

// Cancel requests that the run stop at the next stage boundary.
func (t *Token) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}
