package simulation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"opdo-sim/internal/observability"
	"opdo-sim/internal/optics"
	"opdo-sim/internal/render"
	"opdo-sim/internal/testutil"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := observability.Logger
	observability.Logger = zap.New(core)
	t.Cleanup(func() { observability.Logger = prev })
	return logs
}

func TestHandlerSimulateSuccess(t *testing.T) {
	logs := observeLogs(t)
	h := NewHandler(newTestService(t, Options{}), 0)

	w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate", singletRequest())
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp SimulateResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)
	assert.Len(t, resp.Plots, 3)

	entries := logs.FilterMessage("simulation completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["surfaces"])
}

func TestHandlerValidationFailureLogsWarning(t *testing.T) {
	logs := observeLogs(t)
	h := NewHandler(newTestService(t, Options{}), 0)

	w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate", `{"surfaces":[{"radius":10}]}`)
	testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

	var payload map[string]string
	testutil.DecodeJSONBody(t, w.Body, &payload)
	assert.Equal(t, "surfaces[0].thickness is required", payload["error"])

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, string(KindValidation), warnings[0].ContextMap()["kind"])
}

func TestHandlerBuildFailureLogsError(t *testing.T) {
	logs := observeLogs(t)
	h := NewHandler(newTestService(t, Options{}), 0)

	w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate",
		`{"surfaces":[{"radius":10,"thickness":2,"material":"glass?"}]}`)
	testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

	assert.Len(t, logs.FilterLevelExact(zapcore.ErrorLevel).All(), 1)
}

func TestHandlerRejectsOversizedBody(t *testing.T) {
	observeLogs(t)
	h := NewHandler(newTestService(t, Options{}), 16)

	body := `{"surfaces":[{"radius":10,"thickness":2}` + strings.Repeat(`,{"radius":10,"thickness":2}`, 10) + `]}`
	w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate", body)
	testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

	var payload map[string]string
	testutil.DecodeJSONBody(t, w.Body, &payload)
	assert.NotEmpty(t, payload["error"])
}

func TestHandlerRejectsTrailingData(t *testing.T) {
	observeLogs(t)
	h := NewHandler(newTestService(t, Options{}), 0)

	for _, body := range []string{`{"surfaces":[]} junk`, `{"surfaces":[]} {"surfaces":[]}`} {
		w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate", body)
		testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

		var payload map[string]string
		testutil.DecodeJSONBody(t, w.Body, &payload)
		assert.Contains(t, payload["error"], errTrailingData.Error(), body)
	}

	w := testutil.PostJSON(t, http.HandlerFunc(h.Simulate), "/simulate", "{\"surfaces\":[]}\n")
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
}

func TestHandlerClientGoneLogsWarning(t *testing.T) {
	logs := observeLogs(t)
	svc := newTestService(t, Options{})
	release := make(chan struct{})
	defer close(release)
	svc.plots = []renderer{
		{name: "stuck", render: func(*optics.Lens) (*render.Figure, error) {
			<-release
			return nil, nil
		}},
	}
	h := NewHandler(svc, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(`{"surfaces":[]}`)).WithContext(ctx)
	w := testutil.ExecuteRequest(req, http.HandlerFunc(h.Simulate))
	testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, string(KindCanceled), warnings[0].ContextMap()["kind"])
	assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All())
}
