package app

import (
	"context"
	"fmt"
	"strings"

	kcfg "kestrel/internal/config"
	"kestrel/internal/gateway/binance"
	"kestrel/internal/gateway/exchange"
	"kestrel/internal/gateway/notifier"
	"kestrel/internal/growth"
	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/report"
	"kestrel/internal/store/decisionlog"
	"kestrel/internal/store/gormstore"
	"kestrel/internal/strategyreg"
	apihttp "kestrel/internal/transport/http/api"
)

// AppBuilder 按配置装配全部依赖。各构建步骤通过函数字段暴露，
// 测试可以替换其中任意一环。
type AppBuilder struct {
	cfg *kcfg.Config

	connectorFn  func(kcfg.MarketSource) (exchange.Connector, error)
	strategiesFn func(string) (*strategyreg.Registry, error)
	httpServerFn func(string, ...apihttp.Registrar) (*apihttp.Server, error)

	runStoreOverride     *gormstore.GormStore
	decisionLogOverride  *decisionlog.Store
	textNotifierOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *kcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		connectorFn:  buildConnector,
		strategiesFn: strategyreg.NewRegistry,
		httpServerFn: apihttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func WithConnectorBuilder(fn func(kcfg.MarketSource) (exchange.Connector, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.connectorFn = fn
		}
	}
}

func WithStorageOverrides(runs *gormstore.GormStore, decisions *decisionlog.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		if runs != nil {
			b.runStoreOverride = runs
		}
		if decisions != nil {
			b.decisionLogOverride = decisions
		}
	}
}

func WithTextNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if n != nil {
			b.textNotifierOverride = n
		}
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	registry, err := b.buildExchangeRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 已注册交易所: %v", registry.Names())

	stores, err := b.resolveStores(cfg)
	if err != nil {
		return nil, err
	}

	strategies, err := b.strategiesFn(cfg.Strategies.Path)
	if err != nil {
		return nil, fmt.Errorf("加载策略配置失败: %w", err)
	}
	logger.Infof("✓ 策略档案: %v（启用 %s）", strategies.Names(), cfg.Strategies.Active)
	strategies.Subscribe(func(snap strategyreg.Snapshot) {
		logger.Infof("策略档案已重载: %d 个 profile（version %d）", len(snap.Profiles), snap.Version)
	})

	text := b.buildTextNotifier(cfg)
	reporter := notifier.NewTradeReporter(text)

	simOpts := []growth.SimulatorOption{
		growth.WithRunStore(stores.runs),
		growth.WithChartRenderer(report.NewRenderer(cfg.App.ChartDir)),
	}
	if text != nil {
		simOpts = append(simOpts, growth.WithNotifier(text))
	}
	simulator := growth.NewSimulator(&registryFetcher{registry: registry}, simOpts...)

	app := &App{
		stores: stores,
	}
	app.cfg.Store(cfg)

	growthSvc := &GrowthService{
		cfg:        app.Config,
		strategies: strategies,
		sim:        simulator,
	}
	automation := &AutomationService{
		cfg:       app.Config,
		registry:  registry,
		decisions: stores.decisions,
		reporter:  reporter,
	}

	router, err := apihttp.NewRouter(stores.runs, stores.decisions, growthSvc)
	if err != nil {
		return nil, err
	}
	router.WithStatus(func() map[string]any {
		current := app.Config()
		return map[string]any{
			"enabled":        current.Automation.Enabled,
			"timeframe":      current.Automation.Timeframe,
			"min_confidence": current.Automation.MinConfidence,
			"assets":         len(current.Assets),
		}
	})
	server, err := b.httpServerFn(cfg.App.HTTPAddr, router)
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	app.httpServer = server
	app.automation = automation
	app.growth = growthSvc
	return app, nil
}

func (b *AppBuilder) buildExchangeRegistry(cfg *kcfg.Config) (*exchange.Registry, error) {
	registry := exchange.NewRegistry()
	registered := 0
	for _, src := range cfg.Market.Sources {
		if !src.Enabled {
			continue
		}
		conn, err := b.connectorFn(src)
		if err != nil {
			return nil, fmt.Errorf("初始化交易所 %s 失败: %w", src.Name, err)
		}
		if err := registry.Register(conn); err != nil {
			return nil, err
		}
		registered++
	}
	if registered == 0 {
		return nil, fmt.Errorf("market.sources 没有可用的交易所")
	}
	return registry, nil
}

type storeSetup struct {
	runs      *gormstore.GormStore
	decisions *decisionlog.Store
	ownsRuns  bool
}

func (s *storeSetup) Close() {
	if s == nil {
		return
	}
	if s.decisions != nil {
		_ = s.decisions.Close()
	}
	if s.ownsRuns && s.runs != nil {
		_ = s.runs.Close()
	}
}

// resolveStores 打开共享的 SQLite 库：GORM 负责模拟运行，决策日志
// 复用同一个连接池，避免 WAL 下的多连接锁竞争。
func (b *AppBuilder) resolveStores(cfg *kcfg.Config) (*storeSetup, error) {
	out := &storeSetup{
		runs:      b.runStoreOverride,
		decisions: b.decisionLogOverride,
	}
	if out.runs != nil && out.decisions != nil {
		return out, nil
	}

	path := strings.TrimSpace(cfg.App.DBPath)
	if path == "" {
		return nil, fmt.Errorf("app.db_path 未配置，无法初始化存储")
	}
	if out.runs == nil {
		runs, err := gormstore.NewGormStore(path)
		if err != nil {
			return nil, fmt.Errorf("初始化 gorm 存储失败: %w", err)
		}
		out.runs = runs
		out.ownsRuns = true
	}
	if out.decisions == nil {
		decisions, err := decisionlog.NewStore(path)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("初始化决策日志失败: %w", err)
		}
		if sqlDB, err := out.runs.SQLDB(); err == nil {
			if err := decisions.UseExternalDB(sqlDB); err != nil {
				_ = decisions.Close()
				out.Close()
				return nil, fmt.Errorf("绑定决策日志存储失败: %w", err)
			}
		}
		out.decisions = decisions
	}
	return out, nil
}

func (b *AppBuilder) buildTextNotifier(cfg *kcfg.Config) notifier.TextNotifier {
	if b.textNotifierOverride != nil {
		return b.textNotifierOverride
	}
	tg := cfg.Notify.Telegram
	if !tg.Enabled || strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return nil
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID)
}

func buildConnector(src kcfg.MarketSource) (exchange.Connector, error) {
	switch strings.ToLower(strings.TrimSpace(src.Name)) {
	case "binance":
		return binance.New(binance.Config{
			APIKey:       src.APIKey,
			APISecret:    src.APISecret,
			RESTBaseURL:  src.RESTBaseURL,
			ProxyEnabled: src.Proxy.Enabled,
			RESTProxyURL: src.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("不支持的交易所: %s", src.Name)
	}
}

// registryFetcher 按资产声明的交易所解析连接器并拉取日线。
type registryFetcher struct {
	registry *exchange.Registry
}

var _ growth.CloseFetcher = (*registryFetcher)(nil)

func (f *registryFetcher) FetchDailyCloses(ctx context.Context, asset growth.Asset, days int) ([]market.DailyClose, error) {
	conn, err := f.registry.Resolve(asset.Exchange)
	if err != nil {
		return nil, err
	}
	return conn.FetchDailyCloses(ctx, asset.Symbol, days)
}
