package identity

import (
	"context"
	"fmt"
	"sync"
)

// Identity is a verified (uid, pid) pair.
type Identity struct {
	UID uint32
	PID uint32
}

// String renders the identity for logs.
func (i Identity) String() string { return fmt.Sprintf("uid=%d pid=%d", i.UID, i.PID) }

// CallState is the per-dispatch identity record. It is created by the
// router for each incoming transaction and shared down the call chain via
// the context.
type CallState struct {
	mu      sync.Mutex
	origin  Identity // stamped by the router, immutable
	current Identity
	trace   string
}

// NewCallState records the router-stamped origin of a dispatch.
func NewCallState(origin Identity, trace string) *CallState {
	return &CallState{origin: origin, current: origin, trace: trace}
}

// Calling returns the identity downstream authorization should see: the
// origin, unless a Clear is in effect.
func (s *CallState) Calling() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Origin returns the router-stamped sender, regardless of Clear.
func (s *CallState) Origin() Identity {
	return s.origin
}

// Trace returns the transaction trace id.
func (s *CallState) Trace() string { return s.trace }

// Token restores a previous identity. It is single-use.
type Token struct {
	prev Identity
}

// Clear replaces the calling identity with local for the duration of a
// nested call. The returned token must be passed to Restore on every exit
// path:
//
//	tok := state.Clear(self)
//	defer state.Restore(tok)
func (s *CallState) Clear(local Identity) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := Token{prev: s.current}
	s.current = local
	return tok
}

// Restore reinstates the identity saved by Clear.
func (s *CallState) Restore(tok Token) {
	s.mu.Lock()
	s.current = tok.prev
	s.mu.Unlock()
}

type contextKey struct{}

// WithState attaches the dispatch call state to a context.
func WithState(ctx context.Context, s *CallState) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the call state of the current dispatch, if any.
func FromContext(ctx context.Context) (*CallState, bool) {
	s, ok := ctx.Value(contextKey{}).(*CallState)
	return s, ok
}

// Calling is a convenience for implementations: the identity authorization
// should evaluate, or the zero Identity outside a dispatch.
func Calling(ctx context.Context) Identity {
	if s, ok := FromContext(ctx); ok {
		return s.Calling()
	}
	return Identity{}
}
