package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server and then releases registered
// resources in reverse registration order, so dependencies close after
// their dependents.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	funcs   []ShutdownFunc
	timeout time.Duration
	mu      sync.Mutex
}

// NewShutdownManager creates a new ShutdownManager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc registers a resource to release during shutdown.
// Register in dependency order: the database before the services using it.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server and
// runs the registered shutdown functions. Returns an error when the drain or
// any release fails, or the timeout elapses.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("failed to drain http server")
			return fmt.Errorf("failed to drain http server: %w", err)
		}
		sm.logger.Info("http server drained")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	var failed int
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("shutdown timeout reached: %w", err)
		}
		if err := funcs[i](ctx); err != nil {
			sm.logger.WithError(err).Error("shutdown function failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.logger.Info("shutdown complete")
	return nil
}
