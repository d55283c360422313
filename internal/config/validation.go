package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := validateAssets(c.Assets); err != nil {
		return err
	}
	if err := validatePosture(c); err != nil {
		return err
	}
	if err := validateAutomation(c); err != nil {
		return err
	}
	if err := validateGrowth(c); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("market.sources requires at least one source")
	}
	activeName := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	enabled := 0
	activeFound := false
	for _, src := range m.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("market source %s missing rest_base_url", src.Name)
		}
		if src.Proxy.Enabled && src.Proxy.RESTURL == "" {
			return fmt.Errorf("market source %s has proxy enabled but no rest_url", src.Name)
		}
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if activeName == "" || name == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled market.active_source=%s not found", m.ActiveSource)
	}
	return nil
}

func validateAssets(assets []AssetConfig) error {
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if strings.TrimSpace(a.Key) == "" {
			return fmt.Errorf("assets 条目缺少 key (symbol=%s)", a.Symbol)
		}
		if strings.TrimSpace(a.Symbol) == "" {
			return fmt.Errorf("assets.%s 缺少 symbol", a.Key)
		}
		if _, dup := seen[a.Key]; dup {
			return fmt.Errorf("assets key 重复: %s", a.Key)
		}
		seen[a.Key] = struct{}{}
	}
	return nil
}

func validatePosture(c *Config) error {
	p := c.Posture
	if p.BullishMaRatio < p.BearishMaRatio {
		return fmt.Errorf("posture.bullish_ma_ratio must be >= posture.bearish_ma_ratio")
	}
	if p.Lookback <= 0 {
		return fmt.Errorf("posture.lookback must be > 0")
	}
	if p.RSIBullish <= p.RSIBearish {
		return fmt.Errorf("posture.rsi_bullish must be > posture.rsi_bearish")
	}
	return nil
}

func validateAutomation(c *Config) error {
	a := c.Automation
	if !a.Enabled {
		return nil
	}
	if !IsValidInterval(a.Timeframe) {
		return fmt.Errorf("automation.timeframe 格式非法: %s", a.Timeframe)
	}
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		return fmt.Errorf("automation.min_confidence must be in [0, 1]")
	}
	if a.PositionPct <= 0 || a.PositionPct > 1 {
		return fmt.Errorf("automation.position_pct must be in (0, 1]")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("automation enabled but no assets configured")
	}
	return nil
}

func validateGrowth(c *Config) error {
	g := c.Growth
	if !g.Enabled {
		return nil
	}
	if g.InitialCapital <= 0 {
		return fmt.Errorf("growth.initial_capital must be > 0")
	}
	if g.TargetCapital > 0 && g.TargetCapital < g.InitialCapital {
		return fmt.Errorf("growth.target_capital must be >= growth.initial_capital")
	}
	if g.Simulation.HistoryDays < 2 {
		return fmt.Errorf("growth.simulation.history_days must be >= 2")
	}
	if g.Rebalance.TolerancePct < 0 || g.Rebalance.TolerancePct > 1 {
		return fmt.Errorf("growth.rebalance.tolerance_pct must be in [0, 1]")
	}
	if g.Simulation.SlippagePct < 0 || g.Simulation.SlippagePct >= 1 {
		return fmt.Errorf("growth.simulation.slippage_pct must be in [0, 1)")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("growth enabled but no assets configured")
	}
	if strings.TrimSpace(c.Strategies.Active) == "" {
		return fmt.Errorf("growth enabled but strategies.active is empty")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
