// Package risk evaluates trade intents against exposure, daily-loss and
// blacklist policy. Compliance outcomes are data, never errors.
package risk

import (
	"math"
	"strings"
)

// Blacklist 是策略级拒绝名单；命中即阻断，优先级高于一切额度检查。
type Blacklist struct {
	Symbols []string          `toml:"symbols"`
	Reasons map[string]string `toml:"reasons"`
}

// Contains 大小写不敏感匹配。
func (b Blacklist) Contains(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, s := range b.Symbols {
		if strings.ToUpper(strings.TrimSpace(s)) == symbol {
			return true
		}
	}
	return false
}

// Reason 返回符号对应的拒绝说明，未配置时给出默认文案。
func (b Blacklist) Reason(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for key, msg := range b.Reasons {
		if strings.ToUpper(strings.TrimSpace(key)) == symbol && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return "symbol is blacklisted by risk policy"
}

// VolatilityTriggers 预留给波动率熔断配置，核心引擎只透传。
type VolatilityTriggers struct {
	Enabled   bool    `toml:"enabled"`
	Lookback  int     `toml:"lookback"`
	TargetPct float64 `toml:"target_pct"`
}

// Policy 是进程级风控配置。重载产生新值，绝不原地修改。
// 每组 pct/value 中 value 优先：存在且为有限正数时生效，否则按
// pct × 账户权益计算额度。
type Policy struct {
	MaxExposurePct     float64            `toml:"max_exposure_pct"`
	MaxExposureValue   float64            `toml:"max_exposure_value"`
	MaxDailyLossPct    float64            `toml:"max_daily_loss_pct"`
	MaxDailyLossValue  float64            `toml:"max_daily_loss_value"`
	VolatilityTriggers VolatilityTriggers `toml:"volatility_triggers"`
	Blacklist          Blacklist          `toml:"blacklist"`
}

func (p Policy) exposureCap(equity float64) float64 {
	return capOf(p.MaxExposureValue, p.MaxExposurePct, equity)
}

func (p Policy) dailyLossCap(equity float64) float64 {
	return capOf(p.MaxDailyLossValue, p.MaxDailyLossPct, equity)
}

func capOf(value, pct, equity float64) float64 {
	if value > 0 && !math.IsInf(value, 0) && !math.IsNaN(value) {
		return value
	}
	return pct * equity
}
