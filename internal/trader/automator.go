// Package trader turns posture-derived decisions into position lifecycle
// transitions (open / close / reverse / no-op) against the live exchange
// state, consulting the risk manager before every execution step.
package trader

import (
	"context"
	"math"
	"strings"

	"kestrel/internal/gateway/exchange"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/logger"
	"kestrel/internal/pkg/trading"
	"kestrel/internal/posture"
	"kestrel/internal/risk"
)

// Automator 串联决策、风控与交易所执行。单次调用内所有 I/O 串行；
// 同一 symbol 的并发调用需由调用方（调度器）互斥。
type Automator struct {
	conn     exchange.Connector
	reporter notifier.TradeNotifier
}

func NewAutomator(conn exchange.Connector, reporter notifier.TradeNotifier) *Automator {
	if reporter == nil {
		reporter = notifier.Noop{}
	}
	return &Automator{conn: conn, reporter: reporter}
}

// AutomateTrading 执行一轮自动化决策。配置与风控策略按值传入，
// 重载只产生新值，调用期间不可变。
//
// 决策方向与既有持仓一致时视为 no-op（既不加仓也不调仓），
// 返回 alreadyPositioned。
func (a *Automator) AutomateTrading(ctx context.Context, params Params, cfg AutomationConfig, policy risk.Policy) (Outcome, error) {
	if !cfg.Enabled {
		// 关闭状态短路返回，不触碰交易所与通知器。
		return skippedOutcome(ReasonDisabled), nil
	}
	if params.Decision.Confidence < cfg.MinConfidence {
		return a.reportDecision(params, skippedOutcome(ReasonLowConfidence)), nil
	}

	positions, err := a.conn.GetMarginPositionRisk(ctx, "")
	if err != nil {
		return Outcome{Status: StatusFailed}, err
	}
	snapshot, others := derivePositions(positions, params.Symbol, cfg.PositionEpsilon)

	wantDirection := decisionDirection(params.Decision.Action)

	if snapshot.Direction == DirectionNone {
		if wantDirection == DirectionNone {
			return a.reportDecision(params, skippedOutcome(ReasonNoPosition)), nil
		}
		// 已持仓的资产不占用该上限名额。
		if cfg.MaxPositions > 0 && others >= cfg.MaxPositions {
			return a.reportDecision(params, skippedOutcome(ReasonMaxPositions)), nil
		}
	}

	// 目标数量按权益比例计算后向下对齐交易所步进。
	targetQty := trading.RoundToStep(
		trading.PositionQuantity(params.AccountEquity, cfg.PositionPct, params.Price),
		params.QuantityStep,
	)

	var outcome Outcome
	switch {
	case wantDirection == DirectionNone:
		// flat + 持仓 → 平掉现有方向。
		outcome, err = a.closeOnly(ctx, params, policy, snapshot)
	case snapshot.Direction == DirectionNone:
		outcome, err = a.openOnly(ctx, params, policy, wantDirection, targetQty)
	case snapshot.Direction == wantDirection:
		outcome = skippedOutcome(ReasonAlreadyPositioned)
	default:
		outcome, err = a.reverse(ctx, params, policy, snapshot, wantDirection, targetQty)
	}
	if err != nil {
		return outcome, err
	}
	return a.reportDecision(params, outcome), nil
}

func (a *Automator) openOnly(ctx context.Context, params Params, policy risk.Policy, dir Direction, qty float64) (Outcome, error) {
	step, err := a.execStep(ctx, params, policy, "open", dir, qty, params.TotalExposure)
	if err != nil {
		return Outcome{Status: StatusFailed, Steps: []Step{step}}, err
	}
	if step.Status == StatusSkipped {
		out := skippedOutcome(step.Reason)
		out.Steps = []Step{step}
		return out, nil
	}
	return Outcome{
		Status:    StatusExecuted,
		Executed:  true,
		Action:    "open",
		Direction: dir,
		Steps:     []Step{step},
	}, nil
}

func (a *Automator) closeOnly(ctx context.Context, params Params, policy risk.Policy, snapshot PositionSnapshot) (Outcome, error) {
	step, err := a.execStep(ctx, params, policy, "close", snapshot.Direction, snapshot.Quantity, params.TotalExposure)
	if err != nil {
		return Outcome{Status: StatusFailed, Steps: []Step{step}}, err
	}
	if step.Status == StatusSkipped {
		out := skippedOutcome(step.Reason)
		out.Steps = []Step{step}
		return out, nil
	}
	return Outcome{
		Status:    StatusExecuted,
		Executed:  true,
		Action:    "close",
		Direction: snapshot.Direction,
		Steps:     []Step{step},
	}, nil
}

// reverse 是显式的两段子状态机：先平旧仓、后开新仓，两步各自
// 独立过风控、独立上报。平仓成功而开仓失败时返回部分完成的
// Outcome 与错误，不吞掉中间状态。
func (a *Automator) reverse(ctx context.Context, params Params, policy risk.Policy, snapshot PositionSnapshot, dir Direction, qty float64) (Outcome, error) {
	closeStep, err := a.execStep(ctx, params, policy, "close", snapshot.Direction, snapshot.Quantity, params.TotalExposure)
	if err != nil {
		return Outcome{Status: StatusFailed, Steps: []Step{closeStep}}, err
	}
	if closeStep.Status == StatusSkipped {
		out := skippedOutcome(closeStep.Reason)
		out.Steps = []Step{closeStep}
		return out, nil
	}

	// 平仓已落地，开仓步骤的敞口基数随之下降。
	exposure := params.TotalExposure - closeStep.Quantity*params.Price
	if exposure < 0 {
		exposure = 0
	}
	openStep, err := a.execStep(ctx, params, policy, "open", dir, qty, exposure)
	steps := []Step{closeStep, openStep}
	if err != nil {
		return Outcome{Status: StatusFailed, Action: "reverse", Direction: dir, Steps: steps}, err
	}
	if openStep.Status == StatusSkipped {
		// 半途阻断：旧仓已平、新仓未开，如实呈现两步。
		out := skippedOutcome(openStep.Reason)
		out.Steps = steps
		return out, nil
	}
	return Outcome{
		Status:    StatusExecuted,
		Executed:  true,
		Action:    "reverse",
		Direction: dir,
		Steps:     steps,
	}, nil
}

// execStep 对单个 open/close 步骤做风控评估并执行。
// 阻断 → skipped（不触发交易所调用）；缩量 → 以调整后数量执行。
func (a *Automator) execStep(ctx context.Context, params Params, policy risk.Policy, action string, dir Direction, qty float64, exposure float64) (Step, error) {
	intent := risk.TradeIntent{
		Action:   risk.IntentAction(action),
		Symbol:   params.Symbol,
		Quantity: qty,
		Price:    params.Price,
	}
	verdict := risk.EvaluateTradeIntent(intent, risk.Context{
		AccountEquity: params.AccountEquity,
		TotalExposure: exposure,
		DailyLoss:     params.DailyLoss,
	}, policy)

	step := Step{
		Action:     action,
		Direction:  dir,
		Quantity:   verdict.Quantity,
		Price:      params.Price,
		Compliance: verdict.Compliance,
	}
	if verdict.Verdict == risk.VerdictBlock {
		step.Status = StatusSkipped
		step.Reason = riskReasonPrefix + verdict.Reason
		a.reportStep(params, step)
		return step, nil
	}

	req := exchange.OrderRequest{
		Symbol:    params.Symbol,
		Direction: string(dir),
		Quantity:  verdict.Quantity,
		Price:     params.Price,
		Metadata: map[string]any{
			"asset_key":  params.AssetKey,
			"timeframe":  params.Timeframe,
			"compliance": verdict.Compliance.Status,
		},
	}
	var (
		res *exchange.OrderResult
		err error
	)
	if action == "open" {
		res, err = a.conn.OpenPosition(ctx, req)
	} else {
		res, err = a.conn.ClosePosition(ctx, req)
	}
	if err != nil {
		// 执行失败向上传播，由调用方记录并隔离该资产。
		step.Status = StatusFailed
		step.Reason = err.Error()
		a.reportStep(params, step)
		return step, err
	}
	step.Status = StatusExecuted
	if res != nil {
		step.OrderID = res.OrderID
		if res.FillPrice > 0 {
			step.Price = res.FillPrice
		}
	}
	a.reportStep(params, step)
	return step, nil
}

func (a *Automator) reportDecision(params Params, out Outcome) Outcome {
	status := string(StatusSkipped)
	if out.Executed {
		status = string(StatusExecuted)
	}
	a.reporter.ReportTradingDecision(notifier.DecisionReport{
		AssetKey:   params.AssetKey,
		Symbol:     params.Symbol,
		Timeframe:  params.Timeframe,
		Action:     string(params.Decision.Action),
		Status:     status,
		Reason:     out.Reason,
		Confidence: params.Decision.Confidence,
	})
	return out
}

func (a *Automator) reportStep(params Params, step Step) {
	a.reporter.ReportTradingExecution(notifier.DecisionReport{
		AssetKey:   params.AssetKey,
		Symbol:     params.Symbol,
		Timeframe:  params.Timeframe,
		Action:     step.Action,
		Direction:  string(step.Direction),
		Status:     string(step.Status),
		Reason:     step.Reason,
		Quantity:   step.Quantity,
		Price:      step.Price,
		Compliance: step.Compliance,
	})
}

// derivePositions 在全量持仓报告中定位当前 symbol 的快照，
// 并统计其他 symbol 的有效持仓数（maxPositions 用）。
func derivePositions(positions []exchange.PositionRisk, symbol string, epsilon float64) (PositionSnapshot, int) {
	if epsilon <= 0 {
		epsilon = 1e-9
	}
	snapshot := PositionSnapshot{Symbol: symbol, Direction: DirectionNone}
	others := 0
	target := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
	for _, p := range positions {
		amt := p.PositionAmt
		if math.Abs(amt) <= epsilon {
			continue
		}
		name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p.Symbol), "/", ""))
		if name == target {
			snapshot.Quantity = math.Abs(amt)
			if amt > 0 {
				snapshot.Direction = DirectionLong
			} else {
				snapshot.Direction = DirectionShort
			}
			continue
		}
		others++
	}
	if snapshot.Direction == DirectionNone {
		logger.Debugf("automator: %s 无持仓（其他持仓 %d 个）", symbol, others)
	}
	return snapshot, others
}

func decisionDirection(action posture.Action) Direction {
	switch action {
	case posture.ActionLong:
		return DirectionLong
	case posture.ActionShort:
		return DirectionShort
	default:
		return DirectionNone
	}
}
