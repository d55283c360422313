package apihttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/growth"
	"kestrel/internal/store/decisionlog"
	"kestrel/internal/store/gormstore"
)

type fakeRunner struct {
	overrides RunOverrides
	result    *growth.Result
	err       error
	calls     int
}

func (f *fakeRunner) RunSimulation(_ context.Context, overrides RunOverrides) (*growth.Result, error) {
	f.calls++
	f.overrides = overrides
	return f.result, f.err
}

func newTestServer(t *testing.T, runner SimulationRunner) (*Server, *gormstore.GormStore, *decisionlog.Store) {
	t.Helper()
	dir := t.TempDir()
	runs, err := gormstore.NewGormStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	decisions, err := decisionlog.NewStore(filepath.Join(dir, "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisions.Close() })

	router, err := NewRouter(runs, decisions, runner)
	require.NoError(t, err)
	srv, err := NewServer(":0", router)
	require.NoError(t, err)
	return srv, runs, decisions
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleResult(runID string) *growth.Result {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &growth.Result{
		RunID:     runID,
		StartedAt: start,
		History: []growth.HistoryEntry{
			{Timestamp: start, TotalValue: 10000, Cash: 10000},
			{Timestamp: start.AddDate(0, 0, 1), TotalValue: 10200, Cash: 1200, DrawdownPct: 0},
		},
		Trades: []growth.TradeLogEntry{
			{Timestamp: start, Asset: "btc", Action: growth.ActionBuy, Quantity: 0.1, Price: 90000, Value: 9000, Reason: growth.ReasonRebalance},
		},
		Metrics:  growth.Metrics{DurationDays: 2, TotalReturnPct: 0.02, CAGR: 0.3, SharpeRatio: 1.1},
		Progress: growth.Progress{Pct: 0.01},
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestListRunsAndGetRun(t *testing.T) {
	srv, runs, _ := newTestServer(t, nil)
	result := sampleResult("run-http-1")
	require.NoError(t, runs.SaveRun(context.Background(), result, growth.Config{InitialCapital: 10000}))

	rec := doRequest(t, srv, http.MethodGet, "/api/growth/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Runs  []gormstore.RunSummary `json:"runs"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)
	assert.Equal(t, "run-http-1", listResp.Runs[0].RunID)

	rec = doRequest(t, srv, http.MethodGet, "/api/growth/runs/run-http-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got growth.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, result.RunID, got.RunID)
	assert.Len(t, got.History, 2)
	assert.Len(t, got.Trades, 1)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/growth/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRunOverrides(t *testing.T) {
	runner := &fakeRunner{result: sampleResult("run-http-2")}
	srv, _, _ := newTestServer(t, runner)

	rec := doRequest(t, srv, http.MethodPost, "/api/growth/run",
		`{"strategy":"aggressive","history_days":180,"initial_capital":25000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "aggressive", runner.overrides.Strategy)
	assert.Equal(t, 180, runner.overrides.HistoryDays)
	assert.InDelta(t, 25000.0, runner.overrides.InitialCapital, 1e-9)
	assert.Contains(t, rec.Body.String(), "run-http-2")
}

func TestTriggerRunEmptyBody(t *testing.T) {
	runner := &fakeRunner{result: sampleResult("run-http-3")}
	srv, _, _ := newTestServer(t, runner)

	rec := doRequest(t, srv, http.MethodPost, "/api/growth/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RunOverrides{}, runner.overrides)
}

func TestTriggerRunBadBody(t *testing.T) {
	runner := &fakeRunner{result: sampleResult("run-http-4")}
	srv, _, _ := newTestServer(t, runner)

	cases := []string{
		`{not json`,
		`{"history_days":"ninety"}`,
		`{"history_days":1}`,
		`{"initial_capital":-5}`,
		`{"strategy":42}`,
	}
	for _, body := range cases {
		rec := doRequest(t, srv, http.MethodPost, "/api/growth/run", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body=%s", body)
	}
	assert.Equal(t, 0, runner.calls)
}

func TestTriggerRunDisabled(t *testing.T) {
	runner := &fakeRunner{result: nil}
	srv, _, _ := newTestServer(t, runner)
	rec := doRequest(t, srv, http.MethodPost, "/api/growth/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunMarketDataError(t *testing.T) {
	runner := &fakeRunner{err: &growth.MarketDataError{Asset: "eth", Err: fmt.Errorf("upstream timeout")}}
	srv, _, _ := newTestServer(t, runner)
	rec := doRequest(t, srv, http.MethodPost, "/api/growth/run", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "eth")
}

func TestListDecisionsFilters(t *testing.T) {
	srv, _, decisions := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, decisions.Insert(ctx, decisionlog.Record{Timestamp: 1000, Symbol: "BTCUSDT", Status: "executed"}))
	require.NoError(t, decisions.Insert(ctx, decisionlog.Record{Timestamp: 2000, Symbol: "ETHUSDT", Status: "skipped"}))

	rec := doRequest(t, srv, http.MethodGet, "/api/automation/decisions?symbol=btcusdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Decisions []decisionlog.Record `json:"decisions"`
		Count     int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "BTCUSDT", resp.Decisions[0].Symbol)
}

func TestAutomationStatus(t *testing.T) {
	dir := t.TempDir()
	runs, err := gormstore.NewGormStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })
	decisions, err := decisionlog.NewStore(filepath.Join(dir, "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisions.Close() })

	router, err := NewRouter(runs, decisions, nil)
	require.NoError(t, err)
	router.WithStatus(func() map[string]any {
		return map[string]any{"enabled": true, "timeframe": "1h"}
	})
	srv, err := NewServer(":0", router)
	require.NoError(t, err)

	require.NoError(t, decisions.Insert(context.Background(), decisionlog.Record{
		Timestamp: 1000, Symbol: "BTCUSDT", Status: "executed",
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/automation/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["enabled"])
	assert.Equal(t, "1h", resp["timeframe"])
	assert.NotEmpty(t, resp["recent_decisions"])
}

func TestNewRouterRequiresRunStore(t *testing.T) {
	_, err := NewRouter(nil, nil, nil)
	assert.Error(t, err)
}
