// Package runner coordinates long-running jobs: a single-active-run gate
// with cancellation, progress events, and the per-document OCR and export
// workers.
package runner

import (
	"context"
	"fmt"
	"sync"
)

// Progress event kinds.
const (
	EventDocStarted  = "doc_started"
	EventDocResolved = "doc_resolved"
	EventRunSummary  = "run_summary"
)

// Progress is one observable step of an active run.
type Progress struct {
	Kind      string
	Scope     string
	DocID     int
	Completed int
	Total     int
	Message   string
}

// Session gates mutually exclusive runs. A second Begin while a run is
// active is rejected, not queued.
type Session struct {
	mu     sync.Mutex
	scope  string
	cancel context.CancelFunc
	events chan Progress
}

func NewSession() *Session {
	return &Session{events: make(chan Progress, 64)}
}

// Events exposes the progress stream. Events are dropped rather than
// blocking the run when no one is draining the channel.
func (s *Session) Events() <-chan Progress {
	return s.events
}

// Begin claims the session for a named run and returns the run's context.
// The caller must call End when the run finishes.
func (s *Session) Begin(ctx context.Context, scope string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope != "" {
		return nil, fmt.Errorf("a %s run is already active", s.scope)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.scope = scope
	s.cancel = cancel
	return runCtx, nil
}

// Stop cancels the active run, if any. The run keeps the session until it
// observes the cancellation and calls End.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// End releases the session.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.scope = ""
}

// Active returns the name of the running job, or "" when idle.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Emit publishes a progress event without blocking.
func (s *Session) Emit(p Progress) {
	s.mu.Lock()
	p.Scope = s.scope
	s.mu.Unlock()
	select {
	case s.events <- p:
	default:
	}
}
