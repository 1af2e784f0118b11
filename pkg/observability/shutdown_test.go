package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"syscall"
	"testing"
	"time"
)

// TestNewShutdownManager tests defaulting of the shutdown timeout
func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "with custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
		{
			name:            "with zero timeout uses default",
			timeout:         0,
			expectedTimeout: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			server := &http.Server{}

			sm := NewShutdownManager(logger, server, tt.timeout)

			if sm == nil {
				t.Fatal("Expected non-nil shutdown manager")
			}
			if sm.timeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.timeout)
			}
		})
	}
}

// TestWaitForShutdown_RunsFuncsInReverseOrder drives a full shutdown by
// raising SIGTERM at the test process
func TestWaitForShutdown_RunsFuncsInReverseOrder(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"database", "redis", "health"} {
		name := name
		sm.RegisterShutdownFunc(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.WaitForShutdown()
	}()

	// Give WaitForShutdown time to install its signal handler.
	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to raise SIGTERM: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"health", "redis", "database"}
	if len(order) != len(want) {
		t.Fatalf("expected %d shutdown funcs to run, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected shutdown order %v, got %v", want, order)
			break
		}
	}
}

// TestWaitForShutdown_ReportsFailures tests that failing shutdown funcs
// surface as an error without stopping the rest
func TestWaitForShutdown_ReportsFailures(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var ran bool
	sm.RegisterShutdownFunc(func(context.Context) error {
		ran = true
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return errors.New("close failed")
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.WaitForShutdown()
	}()

	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to raise SIGTERM: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected an error when a shutdown func fails")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if !ran {
		t.Error("a failing func must not prevent the remaining funcs from running")
	}
}
