package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"go.uber.org/zap"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	store  store.Store
	cache  store.Cache
	logger *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(s store.Store, cache store.Cache, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		store:  s,
		cache:  cache,
		logger: logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	probes := []struct {
		name string
		ping func(context.Context) error
	}{
		{name: "store", ping: h.checkStore},
		{name: "cache", ping: h.checkCache},
	}
	for _, p := range probes {
		if err := p.ping(ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("component", p.name), zap.Error(err))
			checks[p.name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		checks[p.name] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	if allHealthy {
		status.Status = "ready"
		writeStatus(w, http.StatusOK, status)
		return
	}
	status.Status = "not_ready"
	writeStatus(w, http.StatusServiceUnavailable, status)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkStore(ctx context.Context) error {
	if h.store == nil {
		return nil // Skip if not initialized
	}
	return h.store.Ping(ctx)
}

func (h *HealthChecker) checkCache(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Ping(ctx)
}
