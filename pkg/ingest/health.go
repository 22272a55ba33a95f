package ingest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
	"github.com/JailtonJunior94/pipetrace/pkg/registry"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthCheckFunc reports an error when the checked dependency is unusable.
// Implementations must respect ctx.Done().
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	OpenSpans *registry.Stats        `json:"open_spans,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// executeHealthChecks runs the checks in parallel, at most maxConcurrent at
// a time, and reports whether any failed or timed out.
func executeHealthChecks(
	ctx context.Context,
	checks map[string]HealthCheckFunc,
	timeout time.Duration,
	maxConcurrent int,
) (map[string]CheckResult, bool) {
	if len(checks) == 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	semaphore := make(chan struct{}, maxConcurrent)
	results := make(map[string]CheckResult, len(checks))
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		hasErrors bool
	)

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results[name] = CheckResult{Status: statusUnhealthy, Error: err.Error()}
			hasErrors = true
			return
		}
		results[name] = CheckResult{Status: statusHealthy}
	}

	for name, check := range checks {
		wg.Add(1)
		go func(name string, fn HealthCheckFunc) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				record(name, ctx.Err())
				return
			}

			record(name, fn(ctx))
		}(name, check)
	}

	wg.Wait()
	return results, hasErrors
}

func healthHandler(cfg Config, checks map[string]HealthCheckFunc, stats func() registry.Stats, logger observability.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, hasErrors := executeHealthChecks(r.Context(), checks, 5*time.Second, 10)

		for name, result := range results {
			if result.Status == statusUnhealthy {
				logger.Warn(r.Context(), "health check failed",
					observability.String("check", name),
					observability.String("error", result.Error),
				)
			}
		}

		health := HealthStatus{
			Status:    statusHealthy,
			Service:   cfg.ServiceName,
			Version:   cfg.ServiceVersion,
			Timestamp: time.Now(),
			Checks:    results,
		}
		if stats != nil {
			s := stats()
			health.OpenSpans = &s
		}

		code := http.StatusOK
		if hasErrors {
			health.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

func readyHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, hasErrors := executeHealthChecks(r.Context(), checks, 3*time.Second, 10); hasErrors {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Service Unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func liveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
