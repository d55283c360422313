package growth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/internal/market"
)

type fakeFetcher struct {
	series map[string][]market.DailyClose
	errs   map[string]error
}

func (f *fakeFetcher) FetchDailyCloses(_ context.Context, asset Asset, _ int) ([]market.DailyClose, error) {
	if err := f.errs[asset.Key]; err != nil {
		return nil, err
	}
	return f.series[asset.Key], nil
}

func dailyCloses(days int, base, step float64) []market.DailyClose {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.DailyClose, days)
	for i := 0; i < days; i++ {
		out[i] = market.DailyClose{
			Timestamp: start.AddDate(0, 0, i),
			Close:     base + step*float64(i),
		}
	}
	return out
}

type recordingStore struct {
	saved []*Result
}

func (r *recordingStore) SaveRun(_ context.Context, result *Result, _ Config) error {
	r.saved = append(r.saved, result)
	return nil
}

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) SendText(text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func growthParams() Params {
	cfg := baseConfig()
	return Params{
		Assets: []Asset{
			{Key: "btc", Symbol: "BTC/USDT", Exchange: "binance"},
			{Key: "eth", Symbol: "ETH/USDT", Exchange: "binance"},
		},
		Config: cfg,
	}
}

func TestSimulatorRun(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]market.DailyClose{
		"btc": dailyCloses(40, 50000, 120),
		"eth": dailyCloses(40, 3000, -4),
	}}
	store := &recordingStore{}
	notif := &recordingNotifier{}
	sim := NewSimulator(fetcher, WithRunStore(store), WithNotifier(notif))

	result, err := sim.Run(context.Background(), growthParams())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.RunID)
	assert.Len(t, result.History, 40)
	assert.NotEmpty(t, result.Trades)
	assert.Equal(t, 40, result.Metrics.DurationDays)
	assert.Greater(t, result.Metrics.Rebalances, 0)
	assert.Greater(t, result.Progress.Pct, 0.0)

	// 旁路依赖各收到一次结果。
	require.Len(t, store.saved, 1)
	assert.Same(t, result, store.saved[0])
	require.Len(t, notif.texts, 1)
	assert.Contains(t, notif.texts[0], result.RunID)
}

func TestSimulatorDisabled(t *testing.T) {
	sim := NewSimulator(&fakeFetcher{})
	params := growthParams()
	params.Config.Enabled = false

	result, err := sim.Run(context.Background(), params)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestSimulatorMarketDataError(t *testing.T) {
	fetcher := &fakeFetcher{
		series: map[string][]market.DailyClose{"btc": dailyCloses(40, 50000, 120)},
		errs:   map[string]error{"eth": errors.New("exchange unavailable")},
	}
	sim := NewSimulator(fetcher)

	result, err := sim.Run(context.Background(), growthParams())
	assert.Nil(t, result)

	var mdErr *MarketDataError
	require.ErrorAs(t, err, &mdErr)
	assert.Equal(t, "eth", mdErr.Asset)
}

// 行情过短同样按数据错误处理，而不是跑出误导性的结果。
func TestSimulatorShortHistory(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]market.DailyClose{
		"btc": dailyCloses(40, 50000, 120),
		"eth": dailyCloses(1, 3000, 0),
	}}
	sim := NewSimulator(fetcher)

	_, err := sim.Run(context.Background(), growthParams())
	var mdErr *MarketDataError
	require.ErrorAs(t, err, &mdErr)
	assert.Equal(t, "eth", mdErr.Asset)
}

// 各资产长度不一时，按最短长度从尾部对齐。
func TestSimulatorAlignsToShortest(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]market.DailyClose{
		"btc": dailyCloses(40, 50000, 120),
		"eth": dailyCloses(25, 3000, 5),
	}}
	sim := NewSimulator(fetcher)

	result, err := sim.Run(context.Background(), growthParams())
	require.NoError(t, err)
	assert.Len(t, result.History, 25)
}

func TestSimulatorValidation(t *testing.T) {
	sim := NewSimulator(&fakeFetcher{})

	t.Run("no assets", func(t *testing.T) {
		params := growthParams()
		params.Assets = nil
		_, err := sim.Run(context.Background(), params)
		assert.Error(t, err)
	})

	t.Run("non-positive capital", func(t *testing.T) {
		params := growthParams()
		params.Config.InitialCapital = 0
		_, err := sim.Run(context.Background(), params)
		assert.Error(t, err)
	})

	t.Run("duplicate asset key", func(t *testing.T) {
		params := growthParams()
		params.Assets = append(params.Assets, params.Assets[0])
		_, err := sim.Run(context.Background(), params)
		assert.Error(t, err)
	})
}
