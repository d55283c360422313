package app

import (
	"context"
	"fmt"
	"time"

	kcfg "kestrel/internal/config"
	"kestrel/internal/growth"
	"kestrel/internal/logger"
	"kestrel/internal/scheduler"
	"kestrel/internal/strategyreg"
	apihttp "kestrel/internal/transport/http/api"
)

// simulationRunner 抽象模拟执行入口，测试时可替换。
type simulationRunner interface {
	Run(ctx context.Context, params growth.Params) (*growth.Result, error)
}

// GrowthService 把配置、策略档案与模拟器粘合起来：
// 定时跑每日模拟，也响应 HTTP 手动触发（可带参数覆盖）。
type GrowthService struct {
	cfg        func() *kcfg.Config
	strategies *strategyreg.Registry
	sim        simulationRunner
}

var _ apihttp.SimulationRunner = (*GrowthService)(nil)

// RunSimulation 以当前配置执行一次模拟。overrides 中的非零字段
// 覆盖配置文件的取值，仅对本次调用生效。
func (s *GrowthService) RunSimulation(ctx context.Context, overrides apihttp.RunOverrides) (*growth.Result, error) {
	cfg := s.cfg()
	gcfg := cfg.Growth

	active := cfg.Strategies.Active
	if overrides.Strategy != "" {
		active = overrides.Strategy
	}
	profile, ok := s.strategies.Profile(active)
	if !ok {
		return nil, fmt.Errorf("策略 %q 不存在（可选: %v）", active, s.strategies.Names())
	}
	gcfg.Strategy = profile.StrategyConfig()

	if overrides.HistoryDays > 0 {
		gcfg.Simulation.HistoryDays = overrides.HistoryDays
	}
	if overrides.InitialCapital > 0 {
		gcfg.InitialCapital = overrides.InitialCapital
	}
	if overrides.Strategy != "" || overrides.HistoryDays > 0 || overrides.InitialCapital > 0 {
		// 手动覆盖即视为启用，哪怕定时模拟是关闭的。
		gcfg.Enabled = true
	}

	assets := make([]growth.Asset, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets = append(assets, a.GrowthAsset())
	}
	return s.sim.Run(ctx, growth.Params{Assets: assets, Config: gcfg})
}

// RunLoop 每日对齐执行一次模拟，直到 ctx 取消。
func (s *GrowthService) RunLoop(ctx context.Context) error {
	cfg := s.cfg()
	if !cfg.Growth.Enabled {
		logger.Infof("增长模拟未启用，定时循环退出")
		<-ctx.Done()
		return nil
	}
	sched := scheduler.NewAlignedScheduler(ctx, 24*time.Hour, time.Minute)
	sched.RunImmediately = true
	sched.Start(func() {
		result, err := s.RunSimulation(ctx, apihttp.RunOverrides{})
		switch {
		case err != nil:
			logger.Errorf("定时增长模拟失败: %v", err)
		case result == nil:
			logger.Debugf("增长模拟已被热更新关闭，本轮跳过")
		}
	})
	return nil
}
