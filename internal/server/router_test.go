package server

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"opdo-sim/internal/config"
	"opdo-sim/internal/observability"
	"opdo-sim/internal/render"
	"opdo-sim/internal/simulation"
	"opdo-sim/internal/testutil"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func newTestRouter(t *testing.T, rl config.RateLimitConfig) http.Handler {
	t.Helper()

	observability.Logger = zap.NewNop()
	if err := simulation.InitMetrics(); err != nil {
		t.Fatalf("initializing simulation metrics: %v", err)
	}

	svc := simulation.NewService(simulation.Options{DPI: 40, NumRays: 3})
	return NewRouter(simulation.NewHandler(svc, 0), rl)
}

func TestNewRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := testutil.ExecuteRequest(req, router)

	testutil.CheckResponseCode(t, http.StatusOK, w.Code)
	if body := w.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func checkPlots(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	var resp simulation.SimulateResponse
	testutil.DecodeJSONBody(t, w.Body, &resp)

	if len(resp.Plots) != 3 {
		t.Fatalf("expected 3 plots, got %d", len(resp.Plots))
	}
	for _, name := range []string{simulation.PlotRaytrace, simulation.PlotDistortion, simulation.PlotRayFan} {
		url, ok := resp.Plots[name]
		if !ok {
			t.Fatalf("missing plot %q", name)
		}
		if !strings.HasPrefix(url, render.DataURLPrefix) {
			t.Fatalf("plot %q is not a PNG data URL: %.40q", name, url)
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, render.DataURLPrefix))
		if err != nil {
			t.Fatalf("plot %q: decoding base64: %v", name, err)
		}
		if !bytes.HasPrefix(raw, pngMagic) {
			t.Fatalf("plot %q does not start with the PNG signature", name)
		}
	}
}

func TestSimulateDefaultsToAir(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	w := testutil.PostJSON(t, router, "/simulate", `{"surfaces":[{"radius":50,"thickness":5}]}`)
	checkPlots(t, w)
}

func TestSimulateFocusedSinglet(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	for _, last := range []string{"47.5", "48"} {
		t.Run(last, func(t *testing.T) {
			body := `{"surfaces":[{"radius":50,"thickness":5,"material":"N-BK7"},{"radius":-50,"thickness":` + last + `}]}`
			checkPlots(t, testutil.PostJSON(t, router, "/simulate", body))
		})
	}
}

func TestSimulateReturnsThreePNGDataURLs(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	w := testutil.PostJSON(t, router, "/simulate",
		`{"surfaces":[{"radius":50,"thickness":5,"material":"N-BK7"}]}`)
	testutil.CheckResponseCode(t, http.StatusOK, w.Code)

	requestID := w.Result().Header.Get(observability.RequestIDHeader)
	if _, err := uuid.Parse(requestID); err != nil {
		t.Fatalf("expected valid UUID in %s, got %q: %v", observability.RequestIDHeader, requestID, err)
	}

	checkPlots(t, w)
}

func TestSimulateFailuresReturn500WithMessage(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing surfaces", body: `{}`, want: "surfaces is required"},
		{name: "missing radius", body: `{"surfaces":[{"thickness":5}]}`, want: "surfaces[0].radius is required"},
		{name: "non-numeric radius", body: `{"surfaces":[{"radius":"abc","thickness":5}]}`},
		{name: "malformed json", body: `{"surfaces":`},
		{name: "trailing data", body: `{"surfaces":[]} junk`, want: "single JSON object"},
		{name: "unknown material", body: `{"surfaces":[{"radius":50,"thickness":5,"material":"UNOBTAINIUM"}]}`, want: "UNOBTAINIUM"},
		{name: "unknown surface type", body: `{"surfaces":[{"radius":50,"thickness":5,"surface_type":"freeform"}]}`, want: "surface_type"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := testutil.PostJSON(t, router, "/simulate", tc.body)
			testutil.CheckResponseCode(t, http.StatusInternalServerError, w.Code)

			var payload map[string]string
			testutil.DecodeJSONBody(t, w.Body, &payload)

			msg := payload["error"]
			if msg == "" {
				t.Fatal("expected a non-empty error message")
			}
			if tc.want != "" && !strings.Contains(msg, tc.want) {
				t.Fatalf("expected error to mention %q, got %q", tc.want, msg)
			}
			if _, ok := payload["plots"]; ok {
				t.Fatal("did not expect plots in an error response")
			}
		})
	}
}

func TestSimulateEmptySurfaceListIsDeterministic(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	first := testutil.PostJSON(t, router, "/simulate", `{"surfaces":[]}`)
	second := testutil.PostJSON(t, router, "/simulate", `{"surfaces":[]}`)

	if first.Code != second.Code {
		t.Fatalf("expected identical status codes, got %d and %d", first.Code, second.Code)
	}
	testutil.CheckResponseCode(t, http.StatusOK, first.Code)
	if first.Body.String() != second.Body.String() {
		t.Fatal("expected identical bodies for identical requests")
	}
}

func TestSimulateConcurrentRequests(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})
	body := `{"surfaces":[{"radius":50,"thickness":5,"material":"N-BK7"}]}`

	const n = 4
	codes := make([]int, n)
	bodies := make([]string, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(body))
			w := testutil.ExecuteRequest(req, router)
			codes[i], bodies[i] = w.Code, w.Body.String()
		}()
	}
	wg.Wait()

	for i := range n {
		testutil.CheckResponseCode(t, http.StatusOK, codes[i])
		if bodies[i] != bodies[0] {
			t.Fatalf("response %d differs from response 0", i)
		}
	}
}

func TestCORSPreflightAllowsAnyOrigin(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/simulate", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := testutil.ExecuteRequest(req, router)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected Access-Control-Allow-Origin %q, got %q", "*", got)
	}
}

func TestSimulateRateLimit(t *testing.T) {
	router := newTestRouter(t, config.RateLimitConfig{Requests: 1, Window: time.Minute})

	first := testutil.PostJSON(t, router, "/simulate", `{}`)
	testutil.CheckResponseCode(t, http.StatusInternalServerError, first.Code)

	second := testutil.PostJSON(t, router, "/simulate", `{}`)
	testutil.CheckResponseCode(t, http.StatusTooManyRequests, second.Code)

	// the limiter only wraps /simulate
	health := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/health", nil), router)
	testutil.CheckResponseCode(t, http.StatusOK, health.Code)
}
