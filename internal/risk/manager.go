package risk

import "math"

type IntentAction string

const (
	IntentOpen  IntentAction = "open"
	IntentClose IntentAction = "close"
)

// TradeIntent 是一次拟执行交易的值对象，不持久化。
type TradeIntent struct {
	Action   IntentAction
	Symbol   string
	Quantity float64
	Price    float64
	Notional float64 // 为 0 时按 Quantity×Price 计算
}

func (i TradeIntent) notional() float64 {
	if i.Notional > 0 && !math.IsNaN(i.Notional) && !math.IsInf(i.Notional, 0) {
		return i.Notional
	}
	n := i.Quantity * i.Price
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	return n
}

// Context 携带评估时点的账户状态。
type Context struct {
	AccountEquity float64
	TotalExposure float64
	DailyLoss     float64
}

type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictScale Verdict = "scale"
	VerdictBlock Verdict = "block"
)

type ComplianceStatus string

const (
	StatusCleared ComplianceStatus = "cleared"
	StatusScaled  ComplianceStatus = "scaled"
	StatusBlocked ComplianceStatus = "blocked"
)

type BreachType string

const (
	BreachBlacklist   BreachType = "blacklist"
	BreachDailyLoss   BreachType = "dailyLoss"
	BreachMaxExposure BreachType = "maxExposure"
)

type Breach struct {
	Type    BreachType `json:"type"`
	Message string     `json:"message"`
}

// Compliance 附着在每个风控结论上，创建后不再修改。
type Compliance struct {
	Status   ComplianceStatus `json:"status"`
	Breaches []Breach         `json:"breaches,omitempty"`
	Messages []string         `json:"messages,omitempty"`
}

// Result 是 EvaluateTradeIntent 的结论。缩量时 Quantity/Notional
// 为调整后的值，其余情况与入参一致。
type Result struct {
	Verdict    Verdict    `json:"decision"`
	Reason     string     `json:"reason,omitempty"`
	Quantity   float64    `json:"quantity"`
	Notional   float64    `json:"notional"`
	Compliance Compliance `json:"compliance"`
}

// EvaluateTradeIntent 按固定顺序执行检查：黑名单 → 当日亏损 → 敞口。
// 前两项命中即阻断，敞口超限时先尝试缩量。纯函数，永不报错；
// 非法数值（NaN、负价）会退化为零名义敞口，由上游负责校验。
func EvaluateTradeIntent(intent TradeIntent, ctx Context, policy Policy) Result {
	notional := intent.notional()

	if policy.Blacklist.Contains(intent.Symbol) {
		msg := policy.Blacklist.Reason(intent.Symbol)
		return Result{
			Verdict:  VerdictBlock,
			Reason:   string(BreachBlacklist),
			Quantity: intent.Quantity,
			Notional: notional,
			Compliance: Compliance{
				Status:   StatusBlocked,
				Breaches: []Breach{{Type: BreachBlacklist, Message: msg}},
				Messages: []string{msg},
			},
		}
	}

	if cap := policy.dailyLossCap(ctx.AccountEquity); cap > 0 && ctx.DailyLoss >= cap {
		msg := "daily loss limit reached"
		return Result{
			Verdict:  VerdictBlock,
			Reason:   string(BreachDailyLoss),
			Quantity: intent.Quantity,
			Notional: notional,
			Compliance: Compliance{
				Status:   StatusBlocked,
				Breaches: []Breach{{Type: BreachDailyLoss, Message: msg}},
				Messages: []string{msg},
			},
		}
	}

	cap := policy.exposureCap(ctx.AccountEquity)
	if cap <= 0 || ctx.TotalExposure+notional <= cap {
		return Result{
			Verdict:    VerdictAllow,
			Quantity:   intent.Quantity,
			Notional:   notional,
			Compliance: Compliance{Status: StatusCleared},
		}
	}

	remaining := cap - ctx.TotalExposure
	if remaining <= 0 {
		msg := "exposure limit exhausted"
		return Result{
			Verdict:  VerdictBlock,
			Reason:   string(BreachMaxExposure),
			Quantity: intent.Quantity,
			Notional: notional,
			Compliance: Compliance{
				Status:   StatusBlocked,
				Breaches: []Breach{{Type: BreachMaxExposure, Message: msg}},
				Messages: []string{msg},
			},
		}
	}

	// 缩量只会减少数量，绝不放大，也不会产生负数。
	scaled := intent.Quantity * (remaining / notional)
	if scaled < 0 {
		scaled = 0
	}
	msg := "quantity scaled down to fit exposure cap"
	return Result{
		Verdict:  VerdictScale,
		Reason:   string(BreachMaxExposure),
		Quantity: scaled,
		Notional: scaled * intent.Price,
		Compliance: Compliance{
			Status:   StatusScaled,
			Breaches: []Breach{{Type: BreachMaxExposure, Message: msg}},
			Messages: []string{msg},
		},
	}
}
