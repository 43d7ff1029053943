package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: locked"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("constraint failed"), false},
	}
	for _, tc := range cases {
		if got := IsSQLiteConflictError(tc.err); got != tc.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	attempts := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, "write", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}, "write", func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	attempts := 0
	err := RetryOnConflict(context.Background(), RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, "write", func() error {
		attempts++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil {
		t.Fatal("Expected error after retries")
	}
	if attempts != 3 {
		t.Errorf("Expected first attempt plus 2 retries, got %d attempts", attempts)
	}
}

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("x")}, true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("eof")}, true},
		{"message", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), true},
		{"canceled", context.Canceled, false},
		{"api error", errors.New("400 bad request"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsConnectionError(tc.err); got != tc.want {
				t.Errorf("IsConnectionError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestMarkUnreachable(t *testing.T) {
	err := MarkUnreachable(errors.New("dial tcp: no such host"))
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Errorf("Expected ErrProviderUnreachable, got %v", err)
	}
	plain := errors.New("model overloaded")
	if MarkUnreachable(plain) != plain {
		t.Error("Expected non-connection error to be returned unchanged")
	}
}
