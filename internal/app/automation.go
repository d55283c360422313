package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	kcfg "kestrel/internal/config"
	"kestrel/internal/gateway/exchange"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/posture"
	"kestrel/internal/scheduler"
	"kestrel/internal/store/decisionlog"
	"kestrel/internal/trader"
)

// 指标需要 slow MA(50) + ADX warm-up，多取一段冗余。
const automationCandleLimit = 160

// AutomationService 驱动按 K 线对齐的自动化决策循环：
// 拉行情 → 评估姿态 → 推导动作 → 风控执行 → 落决策日志。
// 单资产失败只隔离该资产，不中断整轮。
type AutomationService struct {
	cfg       func() *kcfg.Config
	registry  *exchange.Registry
	decisions *decisionlog.Store
	reporter  notifier.TradeNotifier

	mu          sync.Mutex
	lossDay     string
	startEquity float64
}

// Run 启动循环，直到 ctx 取消。调度间隔取启动时配置的 timeframe；
// 热重载只影响每轮内读取的阈值，不改变对齐周期。
func (s *AutomationService) Run(ctx context.Context) error {
	cfg := s.cfg()
	if !cfg.Automation.Enabled {
		logger.Infof("自动化交易未启用，循环退出")
		<-ctx.Done()
		return nil
	}
	interval, ok := scheduler.ParseIntervalDuration(cfg.Automation.Timeframe)
	if !ok {
		return fmt.Errorf("automation.timeframe 非法: %s", cfg.Automation.Timeframe)
	}
	sched := scheduler.NewAlignedScheduler(ctx, interval, 5*time.Second)
	sched.Start(func() { s.tick(ctx) })
	return nil
}

func (s *AutomationService) tick(ctx context.Context) {
	cfg := s.cfg()
	if !cfg.Automation.Enabled {
		logger.Debugf("自动化已被热更新关闭，本轮跳过")
		return
	}
	for _, asset := range cfg.Assets {
		if err := s.processAsset(ctx, cfg, asset); err != nil {
			logger.Errorf("自动化处理 %s 失败: %v", asset.Key, err)
			s.record(ctx, decisionlog.Record{
				AssetKey:  asset.Key,
				Symbol:    asset.Symbol,
				Timeframe: cfg.Automation.Timeframe,
				Status:    string(trader.StatusFailed),
				Error:     err.Error(),
			})
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *AutomationService) processAsset(ctx context.Context, cfg *kcfg.Config, asset kcfg.AssetConfig) error {
	conn, err := s.registry.Resolve(asset.Exchange)
	if err != nil {
		return err
	}
	candles, err := conn.FetchCandles(ctx, asset.Symbol, cfg.Automation.Timeframe, automationCandleLimit)
	if err != nil {
		return fmt.Errorf("拉取 K 线失败: %w", err)
	}
	series, err := market.BuildIndicatorSeries(candles, market.IndicatorConfig{})
	if err != nil {
		return err
	}
	price, ok := market.Last(series.Closes)
	if !ok || price <= 0 {
		return fmt.Errorf("收盘价不可用")
	}

	p := posture.Evaluate(series, cfg.Posture)
	decision := posture.DeriveStrategy(p, cfg.Automation.MinConfidence)
	logger.Infof("%s %s posture=%s confidence=%.2f action=%s",
		asset.Key, cfg.Automation.Timeframe, p.State, p.Confidence, decision.Action)

	equity, err := s.accountEquity(ctx, conn)
	if err != nil {
		return fmt.Errorf("获取账户权益失败: %w", err)
	}
	exposure, err := s.totalExposure(ctx, conn)
	if err != nil {
		return fmt.Errorf("获取持仓敞口失败: %w", err)
	}

	params := trader.Params{
		AssetKey:      asset.Key,
		Symbol:        asset.Symbol,
		Timeframe:     cfg.Automation.Timeframe,
		Decision:      decision,
		Posture:       p,
		Price:         price,
		QuantityStep:  asset.QuantityStep,
		AccountEquity: equity,
		TotalExposure: exposure,
		DailyLoss:     s.trackDailyLoss(equity),
	}
	automator := trader.NewAutomator(conn, s.reporter)
	outcome, err := automator.AutomateTrading(ctx, params, cfg.Automation, cfg.Risk)

	rec := decisionlog.Record{
		AssetKey:   asset.Key,
		Symbol:     asset.Symbol,
		Timeframe:  cfg.Automation.Timeframe,
		Action:     string(decision.Action),
		Posture:    string(p.State),
		Confidence: p.Confidence,
		Status:     string(outcome.Status),
		Reason:     outcome.Reason,
		Steps:      outcome.Steps,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.record(ctx, rec)
	return err
}

func (s *AutomationService) accountEquity(ctx context.Context, conn exchange.Connector) (float64, error) {
	reader, ok := conn.(exchange.AccountReader)
	if !ok {
		return 0, fmt.Errorf("交易所 %s 不支持账户权益查询", conn.Name())
	}
	equity, err := reader.AccountEquity(ctx)
	if err != nil {
		return 0, err
	}
	if equity <= 0 {
		return 0, fmt.Errorf("账户权益非法: %.2f", equity)
	}
	return equity, nil
}

func (s *AutomationService) totalExposure(ctx context.Context, conn exchange.Connector) (float64, error) {
	positions, err := conn.GetMarginPositionRisk(ctx, "")
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, p := range positions {
		amt := p.PositionAmt
		if amt < 0 {
			amt = -amt
		}
		total += amt * p.MarkPrice
	}
	return total, nil
}

// trackDailyLoss 以 UTC 自然日为界跟踪权益回撤：当日亏损 =
// max(0, 日初权益 - 当前权益)。跨日重置基准。
func (s *AutomationService) trackDailyLoss(equity float64) float64 {
	day := time.Now().UTC().Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lossDay != day {
		s.lossDay = day
		s.startEquity = equity
	}
	loss := s.startEquity - equity
	if loss < 0 {
		return 0
	}
	return loss
}

func (s *AutomationService) record(ctx context.Context, rec decisionlog.Record) {
	if s.decisions == nil {
		return
	}
	rec.Timestamp = time.Now().UnixMilli()
	if err := s.decisions.Insert(ctx, rec); err != nil {
		logger.Warnf("写入决策日志失败 symbol=%s: %v", rec.Symbol, err)
	}
}
