package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	err := Conflict("request already accepted")
	if KindOf(err) != KindConflict {
		t.Errorf("expected conflict kind, got %s", KindOf(err))
	}

	wrapped := fmt.Errorf("accept: %w", err)
	if KindOf(wrapped) != KindConflict {
		t.Errorf("expected conflict kind through wrap, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for plain error")
	}
}

func TestThrottledCarriesRetryHint(t *testing.T) {
	err := Throttled("too many messages", 7*time.Second)

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.RetryAfter != 7*time.Second {
		t.Errorf("expected 7s retry hint, got %v", e.RetryAfter)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(KindNotFound, "load request", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to survive wrapping")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("expected not_found, got %s", KindOf(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Authentication("bad token"), http.StatusUnauthorized},
		{Authorization("not a participant"), http.StatusForbidden},
		{Conflict("already accepted"), http.StatusConflict},
		{Throttled("slow down", time.Second), http.StatusTooManyRequests},
		{NotFound("no such request"), http.StatusNotFound},
		{Invalid("missing room id"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
