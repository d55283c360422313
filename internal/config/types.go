package config

import (
	"strings"

	"kestrel/internal/growth"
	"kestrel/internal/posture"
	"kestrel/internal/risk"
	"kestrel/internal/trader"
)

// Config 是 Kestrel 的主配置载体。Load 返回后不再修改，
// 热重载产生新的 *Config 实例。
type Config struct {
	App        AppConfig               `toml:"app"`
	Market     MarketConfig            `toml:"market"`
	Assets     []AssetConfig           `toml:"assets"`
	Posture    posture.Config          `toml:"posture"`
	Automation trader.AutomationConfig `toml:"automation"`
	Risk       risk.Policy             `toml:"risk"`
	Growth     growth.Config           `toml:"growth"`
	Strategies StrategiesConfig        `toml:"strategies"`
	Notify     NotifyConfig            `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	DBPath   string `toml:"db_path"`
	ChartDir string `toml:"chart_dir"`
}

// AssetConfig 声明一个被跟踪的标的。
type AssetConfig struct {
	Key      string `toml:"key"`
	Symbol   string `toml:"symbol"`
	Exchange string `toml:"exchange"`
	// QuantityStep 是交易所的最小下单步进，下单数量向下对齐到它。
	QuantityStep float64 `toml:"quantity_step"`
}

// GrowthAsset 转为模拟器的资产描述。
func (a AssetConfig) GrowthAsset() growth.Asset {
	return growth.Asset{Key: a.Key, Symbol: a.Symbol, Exchange: a.Exchange}
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	APIKey      string      `toml:"api_key"`
	APISecret   string      `toml:"api_secret"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	p.RESTURL = strings.TrimSpace(p.RESTURL)
	if p.RESTURL == "" {
		p.Enabled = false
	}
}

// StrategiesConfig 指向策略 profile 文件与当前启用的 profile。
type StrategiesConfig struct {
	Path   string `toml:"path"`
	Active string `toml:"active"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
