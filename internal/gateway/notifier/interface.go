package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// DecisionReport 描述一次交易决策/执行的推送载荷。
type DecisionReport struct {
	AssetKey   string  `json:"asset_key"`
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Action     string  `json:"action"`
	Direction  string  `json:"direction,omitempty"`
	Status     string  `json:"status"` // executed | skipped
	Reason     string  `json:"reason,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Compliance any     `json:"compliance,omitempty"`
}

// TradeNotifier 接收决策与执行上报。实现必须是 fire-and-forget：
// 失败只记日志，绝不阻塞或影响决策路径。
type TradeNotifier interface {
	ReportTradingDecision(report DecisionReport)
	ReportTradingExecution(report DecisionReport)
}

// Noop 在通知未配置时充当占位实现。
type Noop struct{}

func (Noop) SendText(string) error { return nil }

func (Noop) ReportTradingDecision(DecisionReport) {}

func (Noop) ReportTradingExecution(DecisionReport) {}
