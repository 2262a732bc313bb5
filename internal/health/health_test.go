package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthy(context.Context) error { return nil }

func fixed(status Status, message string) CheckFunc {
	return func(context.Context) (Status, string) { return status, message }
}

func TestHandlerAggregatesComponentStatuses(t *testing.T) {
	tests := []struct {
		name      string
		checkers  map[string]Checker
		overall   Status
		healthz   int
		readyz    int
		readyBody string
	}{
		{
			name:      "no checkers",
			overall:   StatusHealthy,
			healthz:   http.StatusOK,
			readyz:    http.StatusOK,
			readyBody: "ready",
		},
		{
			name: "all healthy",
			checkers: map[string]Checker{
				"order-store":   NewSimpleChecker("order-store", healthy),
				"cache-manager": NewFuncChecker("cache-manager", fixed(StatusHealthy, "")),
			},
			overall:   StatusHealthy,
			healthz:   http.StatusOK,
			readyz:    http.StatusOK,
			readyBody: "ready",
		},
		{
			name: "offline client is degraded but ready",
			checkers: map[string]Checker{
				"order-store":  NewSimpleChecker("order-store", healthy),
				"connectivity": NewFuncChecker("connectivity", fixed(StatusDegraded, "offline")),
			},
			overall:   StatusDegraded,
			healthz:   http.StatusOK,
			readyz:    http.StatusOK,
			readyBody: "ready",
		},
		{
			name: "unhealthy wins over degraded",
			checkers: map[string]Checker{
				"connectivity": NewFuncChecker("connectivity", fixed(StatusDegraded, "offline")),
				"order-store": NewSimpleChecker("order-store", func(context.Context) error {
					return errors.New("database is locked")
				}),
			},
			overall:   StatusUnhealthy,
			healthz:   http.StatusServiceUnavailable,
			readyz:    http.StatusServiceUnavailable,
			readyBody: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.2.0")
			for name, checker := range tt.checkers {
				handler.RegisterChecker(name, checker)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != tt.healthz {
				t.Errorf("/healthz code = %d, want %d", w.Code, tt.healthz)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q", ct)
			}

			var response Response
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("decode /healthz: %v", err)
			}
			if response.Status != tt.overall || response.Version != "v1.2.0" || len(response.Checks) != len(tt.checkers) {
				t.Errorf("unexpected response %+v", response)
			}

			ready := httptest.NewRecorder()
			handler.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if ready.Code != tt.readyz || ready.Body.String() != tt.readyBody {
				t.Errorf("/readyz = %d %q, want %d %q", ready.Code, ready.Body.String(), tt.readyz, tt.readyBody)
			}
		})
	}
}

func TestRegisterCheckerReplacesByName(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("cache-manager", NewFuncChecker("cache-manager", fixed(StatusDegraded, "installing")))
	handler.RegisterChecker("cache-manager", NewFuncChecker("cache-manager", fixed(StatusHealthy, "")))

	status, checks := handler.Run(context.Background())
	if status != StatusHealthy || len(checks) != 1 {
		t.Fatalf("Run() = %s %v, want one healthy check", status, checks)
	}
}

func TestLivenessIgnoresCheckers(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("/livez = %d %q", w.Code, w.Body.String())
	}
}

func TestFuncCheckerReportsDuration(t *testing.T) {
	check := NewSimpleChecker("order-store", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check(context.Background())

	if check.Name != "order-store" || check.Status != StatusHealthy {
		t.Errorf("unexpected check %+v", check)
	}
	if check.DurationMs < 10 {
		t.Errorf("duration = %dms, want >= 10ms", check.DurationMs)
	}
}

func TestRunBoundsEachCheck(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("cache-storage", NewSimpleChecker("cache-storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	status, checks := handler.Run(context.Background())
	if status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", status)
	}
	if checks["cache-storage"].Message != context.DeadlineExceeded.Error() {
		t.Errorf("unexpected message %q", checks["cache-storage"].Message)
	}
}
