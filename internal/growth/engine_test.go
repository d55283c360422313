package growth

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSeries(t *testing.T, prices map[string][]float64) alignedSeries {
	t.Helper()
	length := -1
	for _, row := range prices {
		if length < 0 {
			length = len(row)
		}
		require.Equal(t, length, len(row), "所有资产序列必须等长")
	}
	days := make([]time.Time, length)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return alignedSeries{days: days, prices: prices, keys: sortedKeys(prices)}
}

func baseConfig() Config {
	return Config{
		Enabled:        true,
		InitialCapital: 10000,
		TargetCapital:  1000000,
		Simulation: SimulationConfig{
			HistoryDays:  40,
			RiskFreeRate: 0.02,
			Contribution: ContributionConfig{Amount: 500, IntervalDays: 7},
			SlippagePct:  0.001,
		},
		Rebalance: RebalanceConfig{IntervalDays: 7, TolerancePct: 0.02},
		Risk: RiskConfig{
			MaxDrawdownPct: 0.5,
			StopLossPct:    0.5,
			TakeProfitPct:  2.0,
			MaxPositionPct: 0.8,
		},
		Strategy: StrategyConfig{
			Allocation:       map[string]float64{"btc": 0.5, "eth": 0.3},
			MinAllocationPct: 0.0,
			MaxAllocationPct: 0.6,
		},
	}
}

// 合成 40 天双资产行情：btc 温和上行带波动，eth 震荡。
func trendingSeries(t *testing.T, days int) alignedSeries {
	btc := make([]float64, days)
	eth := make([]float64, days)
	for i := 0; i < days; i++ {
		btc[i] = 50000 * (1 + 0.004*float64(i) + 0.02*math.Sin(float64(i)/3))
		eth[i] = 3000 * (1 + 0.05*math.Sin(float64(i)/2))
	}
	return makeSeries(t, map[string][]float64{"btc": btc, "eth": eth})
}

func TestSimulateEndToEnd(t *testing.T) {
	cfg := baseConfig()
	series := trendingSeries(t, 40)

	state := simulate(cfg, series)

	assert.Len(t, state.history, 40)
	assert.Greater(t, state.rebalances, 0)
	assert.NotEmpty(t, state.trades)

	// 净值曲线每天都有记录且回撤在 [0,1] 内。
	for _, h := range state.history {
		assert.GreaterOrEqual(t, h.DrawdownPct, 0.0)
		assert.Less(t, h.DrawdownPct, 1.0)
		assert.GreaterOrEqual(t, h.Cash, -1e-9)
	}
}

// 会计恒等式：按成交与入金重放现金流，应与引擎记录的
// 现金、总值逐日一致。
func TestSimulateAccountingIdentity(t *testing.T) {
	cfg := baseConfig()
	series := trendingSeries(t, 40)
	state := simulate(cfg, series)

	cash := cfg.InitialCapital
	holdings := make(map[string]float64)
	tradeIdx := 0
	for day, h := range state.history {
		if day > 0 && day%cfg.Simulation.Contribution.IntervalDays == 0 {
			cash += cfg.Simulation.Contribution.Amount
		}
		for tradeIdx < len(state.trades) && state.trades[tradeIdx].Timestamp.Equal(series.days[day]) {
			tr := state.trades[tradeIdx]
			switch tr.Action {
			case ActionBuy:
				cash -= tr.Value
				holdings[tr.Asset] += tr.Quantity
			case ActionSell:
				cash += tr.Value
				holdings[tr.Asset] -= tr.Quantity
			}
			tradeIdx++
		}
		total := cash
		for key, qty := range holdings {
			total += qty * series.prices[key][day]
		}
		assert.InEpsilon(t, h.Cash+1, cash+1, 1e-6, "day %d cash", day)
		assert.InEpsilon(t, h.TotalValue, total, 1e-6, "day %d total", day)
	}
	assert.Equal(t, len(state.trades), tradeIdx, "所有成交都应落在模拟日内")
}

func TestSimulateDeterministic(t *testing.T) {
	cfg := baseConfig()
	series := trendingSeries(t, 40)

	first := simulate(cfg, series)
	second := simulate(cfg, series)

	assert.Equal(t, first.trades, second.trades)
	assert.Equal(t, first.history, second.history)
	assert.Equal(t, first.rebalances, second.rebalances)
}

// 权重钳制：超过 max_allocation_pct 的目标权重按上限建仓。
func TestSimulateAllocationClamped(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy.Allocation = map[string]float64{"btc": 0.9}
	cfg.Strategy.MaxAllocationPct = 0.6
	cfg.Rebalance.TolerancePct = 0
	cfg.Simulation.Contribution = ContributionConfig{}

	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 100
	}
	series := makeSeries(t, map[string][]float64{"btc": flat})

	state := simulate(cfg, series)
	require.NotEmpty(t, state.trades)
	first := state.trades[0]
	assert.Equal(t, ActionBuy, first.Action)
	// 目标被钳到 0.6：首日买入额 ≈ 0.6 × 初始资金。
	assert.InDelta(t, 0.6*cfg.InitialCapital, first.Value, 1)
}

func TestSimulateStopLoss(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy.Allocation = map[string]float64{"btc": 0.5}
	cfg.Risk.StopLossPct = 0.1
	cfg.Rebalance.IntervalDays = 0
	cfg.Rebalance.TolerancePct = 0
	cfg.Simulation.Contribution = ContributionConfig{}

	// 首日建仓后价格崩 20%，次日应触发止损全平。
	series := makeSeries(t, map[string][]float64{
		"btc": {100, 80, 80, 80, 80},
	})
	state := simulate(cfg, series)

	var stops []TradeLogEntry
	for _, tr := range state.trades {
		if tr.Reason == ReasonStopLoss {
			stops = append(stops, tr)
		}
	}
	require.Len(t, stops, 1)
	assert.Equal(t, ActionSell, stops[0].Action)
	assert.Equal(t, "btc", stops[0].Asset)
	// 止损后持仓清零。
	assert.Empty(t, state.holdings)
}

func TestSimulateTakeProfit(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy.Allocation = map[string]float64{"btc": 0.5}
	cfg.Risk.TakeProfitPct = 0.2
	cfg.Rebalance.IntervalDays = 0
	cfg.Rebalance.TolerancePct = 0
	cfg.Simulation.Contribution = ContributionConfig{}

	series := makeSeries(t, map[string][]float64{
		"btc": {100, 130, 130, 130},
	})
	state := simulate(cfg, series)

	found := false
	for _, tr := range state.trades {
		if tr.Reason == ReasonTakeProfit {
			found = true
			assert.Equal(t, ActionSell, tr.Action)
		}
	}
	assert.True(t, found, "应出现止盈成交")
}

func TestSimulateMaxDrawdownDeRisks(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy.Allocation = map[string]float64{"btc": 0.6}
	cfg.Risk.MaxDrawdownPct = 0.1
	cfg.Risk.StopLossPct = 0 // 只验证组合级回撤路径
	cfg.Rebalance.IntervalDays = 0
	cfg.Rebalance.TolerancePct = 0
	cfg.Simulation.Contribution = ContributionConfig{}

	series := makeSeries(t, map[string][]float64{
		"btc": {100, 100, 70, 70, 70},
	})
	state := simulate(cfg, series)

	var deRisk *TradeLogEntry
	for i := range state.trades {
		if state.trades[i].Reason == ReasonMaxDrawdown {
			deRisk = &state.trades[i]
			break
		}
	}
	require.NotNil(t, deRisk, "组合回撤超限应触发减仓")
	assert.Equal(t, ActionSell, deRisk.Action)
	// 减半而非清仓。
	assert.Greater(t, state.holdings["btc"], 0.0)
}

// 周期与漂移都未触发时不应产生计划外成交。
func TestSimulateNoDriftNoTrades(t *testing.T) {
	cfg := baseConfig()
	cfg.Strategy.Allocation = map[string]float64{"btc": 0.5}
	cfg.Rebalance.IntervalDays = 0
	cfg.Rebalance.TolerancePct = 0.5
	cfg.Simulation.Contribution = ContributionConfig{}
	cfg.Risk.StopLossPct = 0
	cfg.Risk.TakeProfitPct = 0
	cfg.Risk.MaxDrawdownPct = 0

	flat := []float64{100, 101, 100, 101, 100, 101}
	series := makeSeries(t, map[string][]float64{"btc": flat})
	state := simulate(cfg, series)

	// 只有首日建仓一笔。
	require.Len(t, state.trades, 1)
	assert.Equal(t, ReasonRebalance, state.trades[0].Reason)
}

func TestComputeMetrics(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.Simulation.RiskFreeRate = 0.02

	history := make([]HistoryEntry, 0, 365)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 365; i++ {
		history = append(history, HistoryEntry{
			Timestamp:  start.AddDate(0, 0, i),
			TotalValue: 10000 * math.Pow(1.2, float64(i+1)/365),
		})
	}
	m := computeMetrics(cfg, history, 3)

	assert.InDelta(t, 0.20, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 0.20, m.CAGR, 1e-9)
	assert.Equal(t, 3, m.Rebalances)
	assert.Equal(t, 365, m.DurationDays)
	// 平滑复利曲线没有回撤。
	assert.Zero(t, m.MaxDrawdownPct)
}

func TestComputeProgress(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCapital = 20000

	history := []HistoryEntry{{TotalValue: 12000}}
	metrics := Metrics{CAGR: 0.2}
	p := computeProgress(cfg, metrics, history)

	assert.InDelta(t, 0.6, p.Pct, 1e-9)
	assert.InDelta(t, 8000, p.RemainingCapital, 1e-9)
	assert.True(t, p.Reachable)
	// ln(20000/12000)/ln(1.2)
	assert.InDelta(t, math.Log(20000.0/12000)/math.Log(1.2), p.EstimatedYearsToTarget, 1e-9)

	// CAGR ≤ 0 → 不可达，年限为 0。
	p = computeProgress(cfg, Metrics{CAGR: -0.1}, history)
	assert.False(t, p.Reachable)
	assert.Zero(t, p.EstimatedYearsToTarget)

	// 超额达成不截断：pct 可大于 1，剩余资金为负。
	p = computeProgress(cfg, Metrics{CAGR: 0.2}, []HistoryEntry{{TotalValue: 25000}})
	assert.InDelta(t, 1.25, p.Pct, 1e-9)
	assert.InDelta(t, -5000, p.RemainingCapital, 1e-9)
	assert.True(t, p.Reachable)
	assert.Zero(t, p.EstimatedYearsToTarget)
}
