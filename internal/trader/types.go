package trader

import (
	"kestrel/internal/posture"
	"kestrel/internal/risk"
)

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// PositionSnapshot 由交易所带符号持仓量推导：正为多、负为空、
// 绝对值不超过 epsilon 视为无仓。只读，每个 tick 重新查询。
type PositionSnapshot struct {
	Symbol    string
	Direction Direction
	Quantity  float64
}

// AutomationConfig 控制自动交易开关与仓位参数。
type AutomationConfig struct {
	Enabled         bool    `toml:"enabled"`
	Timeframe       string  `toml:"timeframe"`
	MinConfidence   float64 `toml:"min_confidence"`
	PositionPct     float64 `toml:"position_pct"`
	MaxPositions    int     `toml:"max_positions"`
	PositionEpsilon float64 `toml:"position_epsilon"`
}

// Params 是一次自动化调用的输入：决策、行情快照与账户状态。
type Params struct {
	AssetKey  string
	Symbol    string
	Timeframe string
	Decision  posture.Decision
	Posture   posture.Posture
	Price     float64

	// QuantityStep 是该 symbol 的最小下单步进，0 表示不对齐。
	QuantityStep float64

	AccountEquity float64
	TotalExposure float64
	DailyLoss     float64
}

type Status string

const (
	StatusSkipped  Status = "skipped"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// Skip reasons surfaced in Outcome.Reason.
const (
	ReasonDisabled          = "disabled"
	ReasonLowConfidence     = "lowConfidence"
	ReasonMaxPositions      = "maxPositions"
	ReasonNoPosition        = "noPosition"
	ReasonAlreadyPositioned = "alreadyPositioned"
	riskReasonPrefix        = "risk:"
)

// Step 记录状态机中单个 open/close 子步骤的结果。
type Step struct {
	Action     string          `json:"action"` // open | close
	Direction  Direction       `json:"direction"`
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Quantity   float64         `json:"quantity,omitempty"`
	Price      float64         `json:"price,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	Compliance risk.Compliance `json:"compliance"`
}

// Outcome 是 AutomateTrading 的统一结果变体。
type Outcome struct {
	Status    Status    `json:"status"`
	Skipped   bool      `json:"skipped"`
	Executed  bool      `json:"executed"`
	Reason    string    `json:"reason,omitempty"`
	Action    string    `json:"action,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Steps     []Step    `json:"steps,omitempty"`
}

func skippedOutcome(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Skipped: true, Reason: reason}
}
