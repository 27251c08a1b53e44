// Package view holds the stateful read sessions that screens consume: each
// session owns its loading/error/data state, keeps at most one fetch in
// flight, merges change-feed events incrementally when it can, and refetches
// when it cannot.
package view

import (
	"context"
	"sync"
	"time"
)

// Phase session lifecycle state
type Phase string

const (
	//PhaseIdle no fetch issued yet
	PhaseIdle Phase = "idle"
	//PhaseLoading a fetch is outstanding
	PhaseLoading Phase = "loading"
	//PhaseReady data is populated
	PhaseReady Phase = "ready"
	//PhaseError the last fetch failed; prior data is retained
	PhaseError Phase = "error"
)

// Snapshot one observable state of a session
type Snapshot[T any] struct {
	Phase Phase `json:"phase"`
	Data  T     `json:"data"`
	Error error `json:"-"`
}

// Session generic view session. At most one fetch is in flight at any
// time: triggers arriving while one is outstanding are skipped, trading a
// possibly-stale immediate result for non-overlapping requests. A failed
// fetch keeps the previously loaded data and records the error. Close
// cancels the session context, which aborts the outstanding fetch and
// releases every subscription opened with it.
type Session[T any] struct {
	mu       sync.Mutex
	phase    Phase
	data     T
	err      error
	inFlight bool

	fetch    func(ctx context.Context) (T, error)
	timeout  time.Duration
	onChange func(Snapshot[T])

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession create a session bound to parent; timeout bounds each fetch
func NewSession[T any](parent context.Context, timeout time.Duration, fetch func(ctx context.Context) (T, error)) *Session[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Session[T]{
		phase:   PhaseIdle,
		fetch:   fetch,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnChange register a callback invoked after every state transition
func (s *Session[T]) OnChange(fn func(Snapshot[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Context the session's lifetime context; subscriptions tied to it are
// released when the session closes
func (s *Session[T]) Context() context.Context {
	return s.ctx
}

// Refetch trigger a fetch. Skipped when one is already outstanding or the
// session is closed.
func (s *Session[T]) Refetch() {
	s.mu.Lock()
	if s.inFlight || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.phase = PhaseLoading
	s.mu.Unlock()

	s.emit()
	go s.run()
}

func (s *Session[T]) run() {
	ctx := s.ctx
	cancel := func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
	}
	defer cancel()

	data, err := s.fetch(ctx)

	s.mu.Lock()
	s.inFlight = false
	if s.ctx.Err() != nil {
		// Closed while the fetch was outstanding; discard the late
		// result instead of writing to a dead session.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.phase = PhaseError
		s.err = err
	} else {
		s.phase = PhaseReady
		s.data = data
		s.err = nil
	}
	s.mu.Unlock()

	s.emit()
}

// Merge apply an incremental update to ready data. When the session is not
// ready, or apply reports it cannot patch in place, fall back to a full
// refetch.
func (s *Session[T]) Merge(apply func(data T) (T, bool)) {
	s.mu.Lock()
	if s.phase != PhaseReady {
		s.mu.Unlock()
		s.Refetch()
		return
	}
	next, ok := apply(s.data)
	if !ok {
		s.mu.Unlock()
		s.Refetch()
		return
	}
	s.data = next
	s.mu.Unlock()

	s.emit()
}

// Snapshot current phase, data and error
func (s *Session[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot[T]{Phase: s.phase, Data: s.data, Error: s.err}
}

// Close cancel the session; safe to call more than once
func (s *Session[T]) Close() {
	s.cancel()
}

func (s *Session[T]) emit() {
	s.mu.Lock()
	fn := s.onChange
	snap := Snapshot[T]{Phase: s.phase, Data: s.data, Error: s.err}
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
