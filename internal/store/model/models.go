package model

import "gorm.io/datatypes"

// SimulationRunModel 持久化一次增长模拟的头信息与聚合指标。
// 完整配置以 JSON 形式落库，便于复现。
type SimulationRunModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	RunID          string         `gorm:"column:run_id;uniqueIndex"`
	StartedAtUnix  int64          `gorm:"column:started_at"`
	DurationDays   int            `gorm:"column:duration_days"`
	InitialCapital float64        `gorm:"column:initial_capital"`
	FinalValue     float64        `gorm:"column:final_value"`
	TotalReturnPct float64        `gorm:"column:total_return_pct"`
	CAGR           float64        `gorm:"column:cagr"`
	MaxDrawdownPct float64        `gorm:"column:max_drawdown_pct"`
	SharpeRatio    float64        `gorm:"column:sharpe_ratio"`
	Rebalances     int            `gorm:"column:rebalances"`
	ProgressPct    float64        `gorm:"column:progress_pct"`
	ConfigJSON     datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	MetricsJSON    datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (SimulationRunModel) TableName() string { return "simulation_runs" }

// TradeLogModel 是模拟成交流水，按 run 归属，只增不改。
type TradeLogModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	RunID     string  `gorm:"column:run_id;index"`
	Timestamp int64   `gorm:"column:timestamp"`
	Asset     string  `gorm:"column:asset;index"`
	Action    string  `gorm:"column:action"`
	Quantity  float64 `gorm:"column:quantity"`
	Price     float64 `gorm:"column:price"`
	Value     float64 `gorm:"column:value"`
	Reason    string  `gorm:"column:reason"`
}

func (TradeLogModel) TableName() string { return "trade_logs" }

// HistorySnapshotModel 是逐日净值曲线点。
type HistorySnapshotModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	RunID       string  `gorm:"column:run_id;index"`
	Timestamp   int64   `gorm:"column:timestamp"`
	TotalValue  float64 `gorm:"column:total_value"`
	Cash        float64 `gorm:"column:cash"`
	DrawdownPct float64 `gorm:"column:drawdown_pct"`
}

func (HistorySnapshotModel) TableName() string { return "history_snapshots" }
