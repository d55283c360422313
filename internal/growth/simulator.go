package growth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kestrel/internal/gateway/notifier"
	"kestrel/internal/logger"
	"kestrel/internal/market"
)

// CloseFetcher 提供资产的日线收盘序列，按时间升序返回。
type CloseFetcher interface {
	FetchDailyCloses(ctx context.Context, asset Asset, days int) ([]market.DailyClose, error)
}

// RunStore 持久化模拟结果，实现为可选依赖。
type RunStore interface {
	SaveRun(ctx context.Context, result *Result, cfg Config) error
}

// ChartRenderer 把一次运行渲染为图表文件并返回路径。
type ChartRenderer interface {
	RenderRun(ctx context.Context, result *Result) ([]string, error)
}

// Simulator 驱动一次完整的资金增长模拟：拉数据、跑逐日引擎、
// 聚合指标，并把结果交给可选的存储 / 图表 / 通知依赖。
type Simulator struct {
	fetcher  CloseFetcher
	store    RunStore
	charts   ChartRenderer
	notifier notifier.TextNotifier
}

type SimulatorOption func(*Simulator)

func WithRunStore(store RunStore) SimulatorOption {
	return func(s *Simulator) { s.store = store }
}

func WithChartRenderer(r ChartRenderer) SimulatorOption {
	return func(s *Simulator) { s.charts = r }
}

func WithNotifier(n notifier.TextNotifier) SimulatorOption {
	return func(s *Simulator) { s.notifier = n }
}

func NewSimulator(fetcher CloseFetcher, opts ...SimulatorOption) *Simulator {
	s := &Simulator{fetcher: fetcher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 执行一次模拟。Enabled 为 false 时返回 (nil, nil)，调用方据此
// 区分"未启用"与"失败"。任一资产行情缺失立即返回 MarketDataError，
// 不做部分资产的降级模拟。
func (s *Simulator) Run(ctx context.Context, params Params) (*Result, error) {
	cfg := params.Config
	if !cfg.Enabled {
		return nil, nil
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	series, err := s.fetchAll(ctx, params)
	if err != nil {
		return nil, err
	}
	aligned, err := align(series)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	state := simulate(cfg, aligned)
	metrics := computeMetrics(cfg, state.history, state.rebalances)
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: started,
		History:   state.history,
		Trades:    state.trades,
		Metrics:   metrics,
		Progress:  computeProgress(cfg, metrics, state.history),
	}
	logger.Infof("growth: 模拟 %s 完成，%d 天 %d 笔成交，总收益 %.2f%%",
		result.RunID, metrics.DurationDays, len(result.Trades), metrics.TotalReturnPct*100)

	s.finishRun(ctx, result, cfg)
	return result, nil
}

// finishRun 处理存储、图表与通知。这些都是尽力而为的旁路：
// 失败只告警，不影响已算出的结果。
func (s *Simulator) finishRun(ctx context.Context, result *Result, cfg Config) {
	if s.charts != nil {
		paths, err := s.charts.RenderRun(ctx, result)
		if err != nil {
			logger.Warnf("growth: 渲染图表失败: %v", err)
		} else {
			result.ChartPaths = paths
		}
	}
	if s.store != nil {
		if err := s.store.SaveRun(ctx, result, cfg); err != nil {
			logger.Warnf("growth: 保存运行记录失败: %v", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.SendText(summaryText(result, cfg)); err != nil {
			logger.Warnf("growth: 推送模拟摘要失败: %v", err)
		}
	}
}

func (s *Simulator) fetchAll(ctx context.Context, params Params) (map[string][]market.DailyClose, error) {
	series := make(map[string][]market.DailyClose, len(params.Assets))
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]market.DailyClose, len(params.Assets))
	for i, asset := range params.Assets {
		g.Go(func() error {
			closes, err := s.fetcher.FetchDailyCloses(gctx, asset, params.Config.Simulation.HistoryDays)
			if err != nil {
				return &MarketDataError{Asset: asset.Key, Err: err}
			}
			if len(closes) < 2 {
				return &MarketDataError{Asset: asset.Key, Err: fmt.Errorf("only %d daily closes", len(closes))}
			}
			results[i] = closes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, asset := range params.Assets {
		series[asset.Key] = results[i]
	}
	return series, nil
}

// align 把各资产序列按最短长度从尾部对齐，时间轴取第一个资产的。
// 正常情况下各所日线的天数一致，截尾只在个别资产上市较晚时生效。
func align(series map[string][]market.DailyClose) (alignedSeries, error) {
	minLen := -1
	for _, closes := range series {
		if minLen < 0 || len(closes) < minLen {
			minLen = len(closes)
		}
	}
	if minLen < 2 {
		return alignedSeries{}, fmt.Errorf("aligned history too short: %d days", minLen)
	}

	prices := make(map[string][]float64, len(series))
	var days []time.Time
	for key, closes := range series {
		trimmed := closes[len(closes)-minLen:]
		row := make([]float64, minLen)
		for i, c := range trimmed {
			row[i] = c.Close
		}
		prices[key] = row
		if days == nil {
			days = make([]time.Time, minLen)
			for i, c := range trimmed {
				days[i] = c.Timestamp
			}
		}
	}
	return alignedSeries{days: days, prices: prices, keys: sortedKeys(prices)}, nil
}

func validateParams(params Params) error {
	if len(params.Assets) == 0 {
		return fmt.Errorf("growth: 资产列表不能为空")
	}
	if params.Config.InitialCapital <= 0 {
		return fmt.Errorf("growth: initial_capital 必须为正, 当前 %.2f", params.Config.InitialCapital)
	}
	if params.Config.Simulation.HistoryDays < 2 {
		return fmt.Errorf("growth: history_days 至少为 2, 当前 %d", params.Config.Simulation.HistoryDays)
	}
	seen := make(map[string]struct{}, len(params.Assets))
	for _, asset := range params.Assets {
		if asset.Key == "" || asset.Symbol == "" {
			return fmt.Errorf("growth: 资产 key 与 symbol 不能为空")
		}
		if _, dup := seen[asset.Key]; dup {
			return fmt.Errorf("growth: 资产 key 重复: %s", asset.Key)
		}
		seen[asset.Key] = struct{}{}
	}
	return nil
}

func summaryText(result *Result, cfg Config) string {
	return fmt.Sprintf(
		"📈 *增长模拟完成*\nRun: `%s`\n周期: %d 天\n总收益: %.2f%%\nCAGR: %.2f%%\n最大回撤: %.2f%%\n目标进度: %.1f%%",
		result.RunID,
		result.Metrics.DurationDays,
		result.Metrics.TotalReturnPct*100,
		result.Metrics.CAGR*100,
		result.Metrics.MaxDrawdownPct*100,
		result.Progress.Pct*100,
	)
}
