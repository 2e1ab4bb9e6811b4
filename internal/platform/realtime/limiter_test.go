package realtime

import (
	"testing"
	"time"

	"github.com/homecare/homecare/internal/platform/apperror"
)

func newTestLimiter(max int, window time.Duration) (*SendLimiter, *time.Time) {
	l := NewSendLimiter(max, window)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestSendLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(5, 10*time.Second)

	for i := 0; i < 5; i++ {
		if err := l.Allow("nurse-1"); err != nil {
			t.Fatalf("send %d: unexpected error: %v", i+1, err)
		}
	}
	err := l.Allow("nurse-1")
	if !apperror.IsKind(err, apperror.KindThrottled) {
		t.Fatalf("expected throttled on 6th send, got %v", err)
	}
	if retry := apperror.RetryAfter(err); retry != 10*time.Second {
		t.Errorf("expected 10s retry hint, got %s", retry)
	}
}

func TestSendLimiter_WindowSlides(t *testing.T) {
	l, now := newTestLimiter(5, 10*time.Second)

	for i := 0; i < 5; i++ {
		if err := l.Allow("nurse-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		*now = now.Add(time.Second)
	}
	if err := l.Allow("nurse-1"); !apperror.IsKind(err, apperror.KindThrottled) {
		t.Fatalf("expected throttled, got %v", err)
	}

	// Advance past the oldest send; one slot frees up.
	*now = now.Add(6 * time.Second)
	if err := l.Allow("nurse-1"); err != nil {
		t.Errorf("expected budget after window slide, got %v", err)
	}
	if err := l.Allow("nurse-1"); !apperror.IsKind(err, apperror.KindThrottled) {
		t.Errorf("expected throttled again with window refilled, got %v", err)
	}
}

func TestSendLimiter_ScopedPerActor(t *testing.T) {
	l, _ := newTestLimiter(2, 10*time.Second)

	l.Allow("nurse-1")
	l.Allow("nurse-1")
	if err := l.Allow("nurse-1"); !apperror.IsKind(err, apperror.KindThrottled) {
		t.Fatalf("expected throttled, got %v", err)
	}
	if err := l.Allow("patient-1"); err != nil {
		t.Errorf("another actor's budget must be independent, got %v", err)
	}
}

func TestSendLimiter_ResetClearsWindow(t *testing.T) {
	l, _ := newTestLimiter(2, 10*time.Second)

	l.Allow("nurse-1")
	l.Allow("nurse-1")
	l.Reset("nurse-1")

	if err := l.Allow("nurse-1"); err != nil {
		t.Errorf("expected fresh budget after reset, got %v", err)
	}
}

func TestSendLimiter_DefaultsApplied(t *testing.T) {
	l := NewSendLimiter(0, 0)
	if l.max != DefaultSendLimit || l.window != DefaultSendWindow {
		t.Errorf("expected defaults %d/%s, got %d/%s", DefaultSendLimit, DefaultSendWindow, l.max, l.window)
	}
}
