// Package growth simulates multi-asset capital growth day by day, applying
// contributions, rebalancing, slippage and drawdown-based risk controls.
package growth

import (
	"fmt"
	"time"
)

// Asset 是参与模拟的一个标的。
type Asset struct {
	Key      string `toml:"key"`
	Symbol   string `toml:"symbol"`
	Exchange string `toml:"exchange"`
}

type ContributionConfig struct {
	Amount       float64 `toml:"amount"`
	IntervalDays int     `toml:"interval_days"`
}

type SimulationConfig struct {
	HistoryDays  int                `toml:"history_days"`
	RiskFreeRate float64            `toml:"risk_free_rate"`
	Contribution ContributionConfig `toml:"contribution"`
	SlippagePct  float64            `toml:"slippage_pct"`
}

type RebalanceConfig struct {
	IntervalDays int     `toml:"interval_days"`
	TolerancePct float64 `toml:"tolerance_pct"`
}

type RiskConfig struct {
	MaxDrawdownPct      float64 `toml:"max_drawdown_pct"`
	StopLossPct         float64 `toml:"stop_loss_pct"`
	TakeProfitPct       float64 `toml:"take_profit_pct"`
	MaxPositionPct      float64 `toml:"max_position_pct"`
	VolatilityLookback  int     `toml:"volatility_lookback"`
	VolatilityTargetPct float64 `toml:"volatility_target_pct"`
}

// StrategyConfig 是目标配置：资产 → 权重，权重会被钳制到
// [MinAllocationPct, MaxAllocationPct]。
type StrategyConfig struct {
	Allocation       map[string]float64 `toml:"allocation"`
	MinAllocationPct float64            `toml:"min_allocation_pct"`
	MaxAllocationPct float64            `toml:"max_allocation_pct"`
}

// Config 是资金增长模拟的完整配置块，所有比例均为小数（0.05 = 5%）。
type Config struct {
	Enabled        bool             `toml:"enabled"`
	InitialCapital float64          `toml:"initial_capital"`
	TargetCapital  float64          `toml:"target_capital"`
	Simulation     SimulationConfig `toml:"simulation"`
	Rebalance      RebalanceConfig  `toml:"rebalance"`
	Risk           RiskConfig       `toml:"risk"`
	Strategy       StrategyConfig   `toml:"-"`
}

// Params 是一次模拟运行的输入。
type Params struct {
	Assets []Asset
	Config Config
}

// HistoryEntry 每个模拟日追加一条，只增不改。
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalValue  float64   `json:"total_value"`
	Cash        float64   `json:"cash"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

// TradeLogEntry 是审计用成交记录，只增不改。
type TradeLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Asset     string    `json:"asset"`
	Action    string    `json:"action"` // BUY | SELL
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Value     float64   `json:"value"`
	Reason    string    `json:"reason"`
}

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Trade log reasons.
const (
	ReasonStopLoss    = "stopLoss"
	ReasonTakeProfit  = "takeProfit"
	ReasonMaxDrawdown = "maxDrawdown"
	ReasonRebalance   = "rebalance"
	ReasonDrift       = "drift"
)

type Metrics struct {
	TotalReturnPct       float64 `json:"total_return_pct"`
	CAGR                 float64 `json:"cagr"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	Rebalances           int     `json:"rebalances"`
	DurationDays         int     `json:"duration_days"`
}

// Progress 描述距离目标资金的进度。CAGR ≤ 0 时 EstimatedYearsToTarget
// 不可用，置 0 且 Reachable 为 false。
type Progress struct {
	Pct                    float64 `json:"pct"`
	RemainingCapital       float64 `json:"remaining_capital"`
	EstimatedYearsToTarget float64 `json:"estimated_years_to_target"`
	Reachable              bool    `json:"reachable"`
}

// Result 一次运行返回一份，构造后不再修改。
type Result struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	History    []HistoryEntry  `json:"history"`
	Trades     []TradeLogEntry `json:"trades"`
	Metrics    Metrics         `json:"metrics"`
	Progress   Progress        `json:"progress"`
	ChartPaths []string        `json:"chart_paths,omitempty"`
}

// MarketDataError 表示必需的行情序列缺失或不可用。
// 模拟不做部分降级：缺一个资产就终止，避免误导报表。
type MarketDataError struct {
	Asset string
	Err   error
}

func (e *MarketDataError) Error() string {
	return fmt.Sprintf("market data for %s unavailable: %v", e.Asset, e.Err)
}

func (e *MarketDataError) Unwrap() error { return e.Err }
