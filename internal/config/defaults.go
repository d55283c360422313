package config

import (
	"fmt"
	"strings"

	"kestrel/internal/growth"
	"kestrel/internal/posture"
	"kestrel/internal/trader"
)

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9991"
	defaultAppLogPath   = "/data/logs/kestrel.log"
	defaultAppDBPath    = "/data/db/kestrel.db"
	defaultAppChartDir  = "/data/charts"
	defaultMarketName   = "binance"
	defaultMarketREST   = "https://fapi.binance.com"
	defaultStrategyPath = "configs/strategies.yaml"

	defaultPostureBullRatio  = 1.0
	defaultPostureBearRatio  = 1.0
	defaultPostureBuffer     = 0.02
	defaultPostureMinSlope   = 0.0005
	defaultPostureLookback   = 5
	defaultPostureMinADX     = 20
	defaultPostureRSIBullish = 55
	defaultPostureRSIBearish = 45

	defaultAutoTimeframe = "1h"
	defaultAutoMinConf   = 0.6
	defaultAutoPct       = 0.05
	defaultAutoMaxPos    = 5
	defaultAutoEpsilon   = 1e-9

	defaultGrowthDays     = 365
	defaultGrowthRebal    = 7
	defaultGrowthSlippage = 0.001
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
	applyPostureDefaults(&c.Posture, keys)
	applyAutomationDefaults(&c.Automation, keys)
	applyGrowthDefaults(&c.Growth, keys)
	for i := range c.Assets {
		a := &c.Assets[i]
		a.Key = strings.ToLower(strings.TrimSpace(a.Key))
		a.Symbol = strings.TrimSpace(a.Symbol)
		if strings.TrimSpace(a.Exchange) == "" {
			a.Exchange = defaultMarketName
		}
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
		stringFieldDefault("app.chart_dir", &a.ChartDir, defaultAppChartDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		src.Proxy.normalize()
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultMarketREST
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategyPath),
	)
}

func applyPostureDefaults(p *posture.Config, keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "posture.bullish_ma_ratio",
			need:  func() bool { return p.BullishMaRatio <= 0 },
			apply: func() { p.BullishMaRatio = defaultPostureBullRatio },
		},
		fieldDefault{
			key:   "posture.bearish_ma_ratio",
			need:  func() bool { return p.BearishMaRatio <= 0 },
			apply: func() { p.BearishMaRatio = defaultPostureBearRatio },
		},
		fieldDefault{
			key:   "posture.neutral_buffer",
			need:  func() bool { return p.NeutralBuffer <= 0 },
			apply: func() { p.NeutralBuffer = defaultPostureBuffer },
		},
		fieldDefault{
			key:   "posture.min_slope",
			need:  func() bool { return p.MinSlope <= 0 },
			apply: func() { p.MinSlope = defaultPostureMinSlope },
		},
		fieldDefault{
			key:   "posture.lookback",
			need:  func() bool { return p.Lookback <= 0 },
			apply: func() { p.Lookback = defaultPostureLookback },
		},
		fieldDefault{
			key:   "posture.min_trend_strength",
			need:  func() bool { return p.MinTrendStrength <= 0 },
			apply: func() { p.MinTrendStrength = defaultPostureMinADX },
		},
		fieldDefault{
			key:   "posture.rsi_bullish",
			need:  func() bool { return p.RSIBullish <= 0 },
			apply: func() { p.RSIBullish = defaultPostureRSIBullish },
		},
		fieldDefault{
			key:   "posture.rsi_bearish",
			need:  func() bool { return p.RSIBearish <= 0 },
			apply: func() { p.RSIBearish = defaultPostureRSIBearish },
		},
	)
}

func applyAutomationDefaults(t *trader.AutomationConfig, keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("automation.timeframe", &t.Timeframe, defaultAutoTimeframe),
		fieldDefault{
			key:   "automation.min_confidence",
			need:  func() bool { return t.MinConfidence <= 0 },
			apply: func() { t.MinConfidence = defaultAutoMinConf },
		},
		fieldDefault{
			key:   "automation.position_pct",
			need:  func() bool { return t.PositionPct <= 0 || t.PositionPct > 1 },
			apply: func() { t.PositionPct = defaultAutoPct },
		},
		fieldDefault{
			key:   "automation.max_positions",
			need:  func() bool { return t.MaxPositions <= 0 },
			apply: func() { t.MaxPositions = defaultAutoMaxPos },
		},
		fieldDefault{
			key:   "automation.position_epsilon",
			need:  func() bool { return t.PositionEpsilon <= 0 },
			apply: func() { t.PositionEpsilon = defaultAutoEpsilon },
		},
	)
}

func applyGrowthDefaults(g *growth.Config, keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "growth.simulation.history_days",
			need:  func() bool { return g.Simulation.HistoryDays <= 0 },
			apply: func() { g.Simulation.HistoryDays = defaultGrowthDays },
		},
		fieldDefault{
			key:   "growth.rebalance.interval_days",
			need:  func() bool { return g.Rebalance.IntervalDays <= 0 },
			apply: func() { g.Rebalance.IntervalDays = defaultGrowthRebal },
		},
		fieldDefault{
			key:   "growth.simulation.slippage_pct",
			need:  func() bool { return g.Simulation.SlippagePct <= 0 },
			apply: func() { g.Simulation.SlippagePct = defaultGrowthSlippage },
		},
	)
	if g.Simulation.Contribution.Amount < 0 {
		g.Simulation.Contribution.Amount = 0
	}
	if g.Simulation.SlippagePct < 0 {
		g.Simulation.SlippagePct = 0
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
