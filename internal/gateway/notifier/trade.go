package notifier

import (
	"fmt"
	"strings"

	"kestrel/internal/logger"
)

// TradeReporter 把 DecisionReport 渲染为文本并交给底层 TextNotifier。
// 发送失败只记 Warn，不向调用方传播。
type TradeReporter struct {
	text TextNotifier
}

func NewTradeReporter(text TextNotifier) *TradeReporter {
	if text == nil {
		text = Noop{}
	}
	return &TradeReporter{text: text}
}

var _ TradeNotifier = (*TradeReporter)(nil)

func (r *TradeReporter) ReportTradingDecision(report DecisionReport) {
	msg := fmt.Sprintf("*决策* %s %s\naction: %s\nconfidence: %.2f\nstatus: %s",
		report.Symbol, report.Timeframe, report.Action, report.Confidence, report.Status)
	if report.Reason != "" {
		msg += "\nreason: " + report.Reason
	}
	r.send(msg)
}

func (r *TradeReporter) ReportTradingExecution(report DecisionReport) {
	var b strings.Builder
	fmt.Fprintf(&b, "*执行* %s\n%s %s", report.Symbol, report.Action, report.Direction)
	if report.Quantity > 0 {
		fmt.Fprintf(&b, "\nqty: %.6f @ %.2f", report.Quantity, report.Price)
	}
	fmt.Fprintf(&b, "\nstatus: %s", report.Status)
	if report.Reason != "" {
		fmt.Fprintf(&b, "\nreason: %s", report.Reason)
	}
	r.send(b.String())
}

func (r *TradeReporter) send(msg string) {
	if err := r.text.SendText(msg); err != nil {
		logger.Warnf("交易通知发送失败: %v", err)
	}
}
