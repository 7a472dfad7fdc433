package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maisondore/newsletter/internal/pkg/httputil"
	"github.com/maisondore/newsletter/internal/token"
	"github.com/maisondore/newsletter/internal/unsubscribe"
)

// HealthStatus is the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker probes the stores behind the subscription core. Any
// dependency can be nil; nil deps report "not_configured".
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	tokens      *token.Service
	registry    *unsubscribe.Registry
	startTime   time.Time
}

// NewHealthChecker creates a health checker over the configured stores.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, tokens *token.Service, registry *unsubscribe.Registry) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		tokens:      tokens,
		registry:    registry,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

func (hc *HealthChecker) status(ctx context.Context) HealthStatus {
	checks := make(map[string]ComponentCheck)
	degraded := false

	if hc.db == nil {
		checks["postgres"] = ComponentCheck{Status: "not_configured"}
	} else {
		start := time.Now()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := hc.db.PingContext(pingCtx)
		cancel()
		if err != nil {
			degraded = true
			checks["postgres"] = ComponentCheck{Status: "down", Message: "ping failed"}
		} else {
			checks["postgres"] = ComponentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	}

	if hc.redisClient == nil {
		checks["redis"] = ComponentCheck{Status: "not_configured"}
	} else {
		start := time.Now()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := hc.redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Cache loss degrades read latency, not correctness.
			checks["redis"] = ComponentCheck{Status: "down", Message: "ping failed"}
		} else {
			checks["redis"] = ComponentCheck{Status: "up", Latency: time.Since(start).String()}
		}
	}

	if hc.tokens != nil {
		checks["token_fallback"] = ComponentCheck{
			Status:  "up",
			Message: fmt.Sprintf("%d in-process tokens", hc.tokens.FallbackSize()),
		}
	}
	if hc.registry != nil {
		pending := hc.registry.PendingCount()
		check := ComponentCheck{Status: "up", Message: fmt.Sprintf("%d pending durable writes", pending)}
		if pending > 0 {
			check.Status = "degraded"
			degraded = true
		}
		checks["unsubscribe_registry"] = check
	}

	status := "healthy"
	if degraded {
		status = "degraded"
	}
	return HealthStatus{
		Status:  status,
		Version: healthVersion,
		Uptime:  time.Since(hc.startTime).Round(time.Second).String(),
		Checks:  checks,
	}
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		httputil.OK(w, HealthStatus{Status: "healthy", Version: healthVersion})
		return
	}
	httputil.OK(w, h.health.status(r.Context()))
}
