package growth

import (
	"math"
	"sort"
	"time"
)

// 回撤触发去风险时，按该比例等比减仓换取现金。
const deRiskFraction = 0.5

// 小于该名义金额的调仓差额直接忽略，避免尘埃级成交。
const minTradeValue = 1e-6

// alignedSeries 是对齐到同一日线下标后的输入：所有资产等长。
type alignedSeries struct {
	days   []time.Time
	prices map[string][]float64
	keys   []string // 排序后的资产 key，保证逐日遍历确定有序
}

type simState struct {
	cash     float64
	holdings map[string]float64
	entry    map[string]float64 // 平均建仓价，风控退出用
	peak     float64

	lastRebalanceDay int
	rebalances       int

	history []HistoryEntry
	trades  []TradeLogEntry
}

func newSimState(initialCapital float64, days int) *simState {
	return &simState{
		cash:             initialCapital,
		holdings:         make(map[string]float64),
		entry:            make(map[string]float64),
		peak:             initialCapital,
		lastRebalanceDay: -1,
		history:          make([]HistoryEntry, 0, days),
	}
}

func (s *simState) totalValue(series alignedSeries, day int) float64 {
	total := s.cash
	for _, key := range series.keys {
		if qty := s.holdings[key]; qty > 0 {
			total += qty * series.prices[key][day]
		}
	}
	return total
}

// sell 以收盘价叠加不利滑点卖出，返回实际成交额。
func (s *simState) sell(ts time.Time, asset string, qty, closePrice, slippagePct float64, reason string) float64 {
	if qty <= 0 || closePrice <= 0 {
		return 0
	}
	held := s.holdings[asset]
	if qty > held {
		qty = held
	}
	if qty <= 0 {
		return 0
	}
	execPrice := closePrice * (1 - slippagePct)
	value := qty * execPrice
	s.cash += value
	remaining := held - qty
	if remaining <= 0 {
		delete(s.holdings, asset)
		delete(s.entry, asset)
	} else {
		s.holdings[asset] = remaining
	}
	s.trades = append(s.trades, TradeLogEntry{
		Timestamp: ts,
		Asset:     asset,
		Action:    ActionSell,
		Quantity:  qty,
		Price:     execPrice,
		Value:     value,
		Reason:    reason,
	})
	return value
}

// buy 动用 spend 数额的现金买入（滑点摊薄到成交数量上）。
func (s *simState) buy(ts time.Time, asset string, spend, closePrice, slippagePct float64, reason string) {
	if spend <= 0 || closePrice <= 0 {
		return
	}
	if spend > s.cash {
		spend = s.cash
	}
	if spend < minTradeValue {
		return
	}
	execPrice := closePrice * (1 + slippagePct)
	qty := spend / execPrice
	prevQty := s.holdings[asset]
	prevEntry := s.entry[asset]
	s.cash -= spend
	s.holdings[asset] = prevQty + qty
	if prevQty > 0 && prevEntry > 0 {
		s.entry[asset] = (prevQty*prevEntry + qty*execPrice) / (prevQty + qty)
	} else {
		s.entry[asset] = execPrice
	}
	s.trades = append(s.trades, TradeLogEntry{
		Timestamp: ts,
		Asset:     asset,
		Action:    ActionBuy,
		Quantity:  qty,
		Price:     execPrice,
		Value:     spend,
		Reason:    reason,
	})
}

// simulate 是确定性的逐日核心：相同输入产生逐字节一致的交易与指标。
func simulate(cfg Config, series alignedSeries) *simState {
	state := newSimState(cfg.InitialCapital, len(series.days))
	slip := cfg.Simulation.SlippagePct
	contrib := cfg.Simulation.Contribution

	for day := range series.days {
		ts := series.days[day]

		// a. 定投入金。
		if contrib.Amount > 0 && contrib.IntervalDays > 0 && day > 0 && day%contrib.IntervalDays == 0 {
			state.cash += contrib.Amount
		}

		// b. 估值与回撤，峰值只升不降。
		total := state.totalValue(series, day)
		drawdown := 0.0
		if state.peak > 0 && total < state.peak {
			drawdown = (state.peak - total) / state.peak
		}
		if total > state.peak {
			state.peak = total
		}

		// c. 个券风控退出：止损/止盈强制平仓。
		for _, key := range series.keys {
			qty := state.holdings[key]
			entry := state.entry[key]
			if qty <= 0 || entry <= 0 {
				continue
			}
			price := series.prices[key][day]
			ret := (price - entry) / entry
			switch {
			case cfg.Risk.StopLossPct > 0 && ret <= -cfg.Risk.StopLossPct:
				state.sell(ts, key, qty, price, slip, ReasonStopLoss)
			case cfg.Risk.TakeProfitPct > 0 && ret >= cfg.Risk.TakeProfitPct:
				state.sell(ts, key, qty, price, slip, ReasonTakeProfit)
			}
		}

		// d. 组合级回撤超限：先于任何计划内调仓等比减仓。
		if cfg.Risk.MaxDrawdownPct > 0 && drawdown > cfg.Risk.MaxDrawdownPct {
			for _, key := range series.keys {
				if qty := state.holdings[key]; qty > 0 {
					state.sell(ts, key, qty*deRiskFraction, series.prices[key][day], slip, ReasonMaxDrawdown)
				}
			}
			state.rebalances++
			state.lastRebalanceDay = day
		} else if due, reason := rebalanceDue(cfg, state, series, day); due {
			rebalance(cfg, state, series, day, ts, slip, reason)
		}

		// f. 收日：重估并落历史。会计恒等式 cash + Σ(持仓×现价) == total。
		total = state.totalValue(series, day)
		if total > state.peak {
			state.peak = total
		}
		drawdown = 0
		if state.peak > 0 && total < state.peak {
			drawdown = (state.peak - total) / state.peak
		}
		state.history = append(state.history, HistoryEntry{
			Timestamp:   ts,
			TotalValue:  total,
			Cash:        state.cash,
			DrawdownPct: drawdown,
		})
	}
	return state
}

// rebalanceDue 判断是否触发调仓：首日建仓、计划周期到期，或任一
// 资产权重漂移超出容忍带。
func rebalanceDue(cfg Config, state *simState, series alignedSeries, day int) (bool, string) {
	if len(cfg.Strategy.Allocation) == 0 {
		return false, ""
	}
	if state.lastRebalanceDay < 0 {
		return true, ReasonRebalance
	}
	if cfg.Rebalance.IntervalDays > 0 && day-state.lastRebalanceDay >= cfg.Rebalance.IntervalDays {
		return true, ReasonRebalance
	}
	if cfg.Rebalance.TolerancePct <= 0 {
		return false, ""
	}
	total := state.totalValue(series, day)
	if total <= 0 {
		return false, ""
	}
	targets := targetWeights(cfg, state, series, day)
	for _, key := range series.keys {
		actual := state.holdings[key] * series.prices[key][day] / total
		if math.Abs(actual-targets[key]) > cfg.Rebalance.TolerancePct {
			return true, ReasonDrift
		}
	}
	return false, ""
}

// targetWeights 产出钳制与波动率缩放后的有效目标权重。
// 波动率目标只作用于调仓权重，不缩放定投金额。
func targetWeights(cfg Config, state *simState, series alignedSeries, day int) map[string]float64 {
	targets := make(map[string]float64, len(series.keys))
	for _, key := range series.keys {
		w := cfg.Strategy.Allocation[key]
		if w < cfg.Strategy.MinAllocationPct {
			w = cfg.Strategy.MinAllocationPct
		}
		if cfg.Strategy.MaxAllocationPct > 0 && w > cfg.Strategy.MaxAllocationPct {
			w = cfg.Strategy.MaxAllocationPct
		}
		if cfg.Risk.MaxPositionPct > 0 && w > cfg.Risk.MaxPositionPct {
			w = cfg.Risk.MaxPositionPct
		}
		targets[key] = w
	}

	lookback := cfg.Risk.VolatilityLookback
	target := cfg.Risk.VolatilityTargetPct
	if lookback <= 0 || target <= 0 || len(state.history) < lookback+1 {
		return targets
	}
	returns := make([]float64, 0, lookback)
	hist := state.history[len(state.history)-lookback-1:]
	for i := 1; i < len(hist); i++ {
		prev := hist[i-1].TotalValue
		if prev > 0 {
			returns = append(returns, hist[i].TotalValue/prev-1)
		}
	}
	realized := stddev(returns) * math.Sqrt(365)
	if realized <= target {
		return targets
	}
	scale := target / realized
	for key := range targets {
		targets[key] *= scale
	}
	return targets
}

func rebalance(cfg Config, state *simState, series alignedSeries, day int, ts time.Time, slip float64, reason string) {
	total := state.totalValue(series, day)
	if total <= 0 {
		return
	}
	targets := targetWeights(cfg, state, series, day)

	// 先卖后买，保证买入时现金充足且结果与遍历顺序无关。
	for _, key := range series.keys {
		price := series.prices[key][day]
		if price <= 0 {
			continue
		}
		current := state.holdings[key] * price
		delta := targets[key]*total - current
		if delta < -minTradeValue {
			state.sell(ts, key, -delta/price, price, slip, reason)
		}
	}
	for _, key := range series.keys {
		price := series.prices[key][day]
		if price <= 0 {
			continue
		}
		current := state.holdings[key] * price
		delta := targets[key]*total - current
		if delta > minTradeValue {
			state.buy(ts, key, delta, price, slip, reason)
		}
	}
	state.rebalances++
	state.lastRebalanceDay = day
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
