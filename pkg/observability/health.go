package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Version is stamped into health responses at build time.
var Version = "dev"

// HealthChecker probes Postgres and Redis for the health endpoints.
// Redis is optional: the portal cache degrades to direct reads when it
// is down, so a Redis failure never fails readiness outright.
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a checker. Either dependency may be nil, in
// which case it is skipped.
func NewHealthChecker(db *sql.DB, redis *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redis}
}

// HealthStatus is the aggregate health report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus reports one dependency's probe result.
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Liveness always returns 200 while the process is up.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness probes all dependencies and returns 503 only when the
// aggregate is unhealthy. Degraded still serves traffic.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check probes every configured dependency and merges the results.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      Version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		dep := h.checkPostgres(ctx)
		status.Dependencies["database"] = dep
		status.Status = mergeStatus(status.Status, dep.Status)
	}

	if h.redis != nil {
		dep := h.checkRedis(ctx)
		status.Dependencies["redis"] = dep
		// Redis down caps the damage at degraded.
		if dep.Status == StatusUnhealthy {
			dep.Status = StatusDegraded
		}
		status.Status = mergeStatus(status.Status, dep.Status)
	}

	return status
}

// mergeStatus picks the worse of two statuses.
func mergeStatus(current, probe string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[probe] > rank[current] {
		return probe
	}
	return current
}

func (h *HealthChecker) checkPostgres(ctx context.Context) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

	if err := h.db.PingContext(ctx); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
		dep.Latency = time.Since(start)
		return dep
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = "query failed: " + err.Error()
		dep.Latency = time.Since(start)
		return dep
	}
	dep.Latency = time.Since(start)

	// MaxOpenConnections is 0 when the pool is unlimited.
	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool exhausted"
	}

	return dep
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusHealthy, Timestamp: start}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	dep.Latency = time.Since(start)

	return dep
}

// RegisterHealthRoutes mounts the probe endpoints on the health mux.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
