package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusFunc produces a JSON-serialisable status document.
type StatusFunc func(ctx context.Context) (any, error)

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

// StatusHandler serves the result of fn, or 503 with the error.
func StatusHandler(fn StatusFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := fn(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, logger)
			return
		}
		writeJSON(w, http.StatusOK, doc, logger)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
