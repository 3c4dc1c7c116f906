package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ok(name string) Checker {
	return CheckFunc{ComponentName: name, Fn: func(context.Context) error { return nil }}
}

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler("v1.2.3")
	h.Register(ok("storage"))
	h.Register(ok("kafka"))
	h.Register(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Equal(t, StatusHealthy, report.Status)
	require.Equal(t, "v1.2.3", report.Version)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "kafka", report.Checks[0].Name)
	require.Equal(t, "storage", report.Checks[1].Name)
}

func TestHandler_UnhealthyCheck(t *testing.T) {
	h := NewHandler("dev")
	h.Register(ok("kafka"))
	h.Register(CheckFunc{ComponentName: "storage", Fn: func(context.Context) error { return errors.New("connection refused") }})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	require.Equal(t, StatusUnhealthy, report.Status)
	require.Equal(t, "connection refused", report.Checks[1].Message)

	ready := httptest.NewRecorder()
	h.Ready(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, ready.Code)
}

func TestHandler_CheckTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 10 * time.Millisecond
	h.Register(CheckFunc{ComponentName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	report := h.Run(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
	require.Contains(t, report.Checks[0].Message, "deadline exceeded")
}

func TestProbes(t *testing.T) {
	h := NewHandler("dev")

	ready := httptest.NewRecorder()
	h.Ready(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, ready.Code)
	require.Equal(t, "ready", ready.Body.String())

	live := httptest.NewRecorder()
	Live(live, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, live.Code)
	require.Equal(t, "ok", live.Body.String())
}
