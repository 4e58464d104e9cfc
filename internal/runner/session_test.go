package runner

import (
	"context"
	"testing"
)

func TestSessionGate(t *testing.T) {
	s := NewSession()
	ctx, err := s.Begin(context.Background(), "ocr")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if s.Active() != "ocr" {
		t.Errorf("Active() = %q, want ocr", s.Active())
	}

	if _, err := s.Begin(context.Background(), "export"); err == nil {
		t.Error("second Begin should be rejected while a run is active")
	}

	s.Stop()
	if ctx.Err() == nil {
		t.Error("Stop() should cancel the run context")
	}
	if s.Active() != "ocr" {
		t.Error("Stop() should not release the session")
	}

	s.End()
	if s.Active() != "" {
		t.Errorf("Active() = %q after End, want idle", s.Active())
	}
	if _, err := s.Begin(context.Background(), "export"); err != nil {
		t.Errorf("Begin() after End error = %v", err)
	}
}

func TestSessionEmitDoesNotBlock(t *testing.T) {
	s := NewSession()
	// Nobody drains the channel; emitting past the buffer must not hang.
	for i := 0; i < 200; i++ {
		s.Emit(Progress{Kind: EventDocStarted, DocID: i})
	}
}
