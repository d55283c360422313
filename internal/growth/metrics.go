package growth

import "math"

// computeMetrics 从历史曲线聚合绩效指标。年化一律按 365 个自然日。
func computeMetrics(cfg Config, history []HistoryEntry, rebalances int) Metrics {
	m := Metrics{Rebalances: rebalances, DurationDays: len(history)}
	if len(history) == 0 || cfg.InitialCapital <= 0 {
		return m
	}
	final := history[len(history)-1].TotalValue
	m.TotalReturnPct = (final - cfg.InitialCapital) / cfg.InitialCapital

	days := float64(len(history))
	if final > 0 && days > 0 {
		m.CAGR = math.Pow(final/cfg.InitialCapital, 365/days) - 1
	}

	for _, h := range history {
		if h.DrawdownPct > m.MaxDrawdownPct {
			m.MaxDrawdownPct = h.DrawdownPct
		}
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].TotalValue
		if prev > 0 {
			returns = append(returns, history[i].TotalValue/prev-1)
		}
	}
	m.AnnualizedVolatility = stddev(returns) * math.Sqrt(365)
	if m.AnnualizedVolatility > 0 {
		m.SharpeRatio = (m.CAGR - cfg.Simulation.RiskFreeRate) / m.AnnualizedVolatility
	}
	return m
}

// computeProgress 估算按当前 CAGR 复利距目标资金还需几年。
func computeProgress(cfg Config, metrics Metrics, history []HistoryEntry) Progress {
	p := Progress{}
	if cfg.TargetCapital <= 0 || len(history) == 0 {
		return p
	}
	// pct 与剩余资金均不截断：超额达成时 pct > 1、剩余为负。
	final := history[len(history)-1].TotalValue
	p.Pct = final / cfg.TargetCapital
	p.RemainingCapital = cfg.TargetCapital - final

	if p.RemainingCapital <= 0 {
		p.Reachable = true
		return p
	}
	// CAGR ≤ 0 时目标不可达，年限无意义。
	if metrics.CAGR <= 0 || final <= 0 {
		return p
	}
	p.Reachable = true
	p.EstimatedYearsToTarget = math.Log(cfg.TargetCapital/final) / math.Log(1+metrics.CAGR)
	return p
}
