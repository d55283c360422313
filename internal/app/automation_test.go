package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kcfg "kestrel/internal/config"
	"kestrel/internal/gateway/exchange"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/market"
	"kestrel/internal/posture"
	"kestrel/internal/store/decisionlog"
	"kestrel/internal/trader"
)

// fakeConnector 返回稳定上涨的行情，下单全部成交。
type fakeConnector struct {
	equity float64
	opened []exchange.OrderRequest
}

func (f *fakeConnector) Name() string { return "binance" }

func (f *fakeConnector) FetchCandles(_ context.Context, _, _ string, limit int) ([]market.Candle, error) {
	now := time.Now().UTC()
	out := make([]market.Candle, limit)
	for i := 0; i < limit; i++ {
		px := 100 + float64(i)
		ts := now.Add(-time.Duration(limit-i) * time.Hour)
		out[i] = market.Candle{
			OpenTime:  ts.UnixMilli(),
			CloseTime: ts.Add(time.Hour).UnixMilli() - 1,
			Open:      px - 0.5,
			High:      px + 1,
			Low:       px - 1,
			Close:     px,
			Volume:    10,
		}
	}
	return out, nil
}

func (f *fakeConnector) FetchDailyCloses(context.Context, string, int) ([]market.DailyClose, error) {
	return nil, nil
}

func (f *fakeConnector) GetMarginPositionRisk(context.Context, string) ([]exchange.PositionRisk, error) {
	return nil, nil
}

func (f *fakeConnector) OpenPosition(_ context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	f.opened = append(f.opened, req)
	return &exchange.OrderResult{OrderID: "1", FillPrice: req.Price}, nil
}

func (f *fakeConnector) ClosePosition(_ context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	return &exchange.OrderResult{OrderID: "2", FillPrice: req.Price}, nil
}

func (f *fakeConnector) AccountEquity(context.Context) (float64, error) {
	return f.equity, nil
}

func automationTestConfig() *kcfg.Config {
	cfg := &kcfg.Config{
		Assets: []kcfg.AssetConfig{{Key: "btc", Symbol: "BTCUSDT", Exchange: "binance"}},
	}
	cfg.Automation = trader.AutomationConfig{
		Enabled:         true,
		Timeframe:       "1h",
		MinConfidence:   0.6,
		PositionPct:     0.05,
		MaxPositions:    5,
		PositionEpsilon: 1e-9,
	}
	cfg.Posture = posture.Config{
		BullishMaRatio:   1.0,
		BearishMaRatio:   1.0,
		NeutralBuffer:    0.02,
		MinSlope:         0.0005,
		Lookback:         5,
		MinTrendStrength: 20,
		RSIBullish:       55,
		RSIBearish:       45,
	}
	return cfg
}

func newAutomationService(t *testing.T, cfg *kcfg.Config, conn exchange.Connector) (*AutomationService, *decisionlog.Store) {
	t.Helper()
	registry := exchange.NewRegistry()
	require.NoError(t, registry.Register(conn))
	decisions, err := decisionlog.NewStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = decisions.Close() })
	return &AutomationService{
		cfg:       func() *kcfg.Config { return cfg },
		registry:  registry,
		decisions: decisions,
		reporter:  notifier.Noop{},
	}, decisions
}

// 上涨行情 + 零阈值 → 看多开仓，决策落库为 executed。
func TestAutomationTickOpensLong(t *testing.T) {
	conn := &fakeConnector{equity: 10000}
	svc, decisions := newAutomationService(t, automationTestConfig(), conn)

	svc.tick(context.Background())

	require.Len(t, conn.opened, 1)
	assert.Equal(t, "long", conn.opened[0].Direction)

	recs, err := decisions.List(context.Background(), decisionlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "BTCUSDT", recs[0].Symbol)
	assert.Equal(t, string(trader.StatusExecuted), recs[0].Status)
	assert.Equal(t, "long", recs[0].Action)
	assert.Equal(t, "bullish", recs[0].Posture)
}

func TestAutomationTickUnknownExchange(t *testing.T) {
	cfg := automationTestConfig()
	cfg.Assets[0].Exchange = "kraken"
	svc, decisions := newAutomationService(t, cfg, &fakeConnector{equity: 10000})

	svc.tick(context.Background())

	recs, err := decisions.List(context.Background(), decisionlog.Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(trader.StatusFailed), recs[0].Status)
	assert.Contains(t, recs[0].Error, "kraken")
}

func TestAutomationTickDisabledByReload(t *testing.T) {
	cfg := automationTestConfig()
	cfg.Automation.Enabled = false
	conn := &fakeConnector{equity: 10000}
	svc, decisions := newAutomationService(t, cfg, conn)

	svc.tick(context.Background())

	assert.Empty(t, conn.opened)
	recs, err := decisions.List(context.Background(), decisionlog.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTrackDailyLoss(t *testing.T) {
	svc := &AutomationService{}
	assert.InDelta(t, 0.0, svc.trackDailyLoss(10000), 1e-9)
	assert.InDelta(t, 500.0, svc.trackDailyLoss(9500), 1e-9)
	// 权益回升不产生负亏损。
	assert.InDelta(t, 0.0, svc.trackDailyLoss(10100), 1e-9)
}
