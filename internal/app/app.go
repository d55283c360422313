// Package app wires configuration, gateways, stores and services into a
// runnable process.
package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	kcfg "kestrel/internal/config"
	"kestrel/internal/logger"
	apihttp "kestrel/internal/transport/http/api"
)

// App 负责应用级编排：装配依赖、启动 HTTP 与自动化服务、
// 承接配置热更新。
type App struct {
	cfg atomic.Pointer[kcfg.Config]

	httpServer *apihttp.Server
	automation *AutomationService
	growth     *GrowthService
	stores     *storeSetup
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *kcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Config 返回当前生效的配置快照。
func (a *App) Config() *kcfg.Config {
	return a.cfg.Load()
}

// ApplyConfig 原子替换配置快照，供热重载回调使用。
// 监听地址、数据库路径等启动期参数不受影响。
func (a *App) ApplyConfig(cfg *kcfg.Config) {
	if a == nil || cfg == nil {
		return
	}
	a.cfg.Store(cfg)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("配置已热更新（环境=%s）", cfg.App.Env)
}

// Run 启动 HTTP 服务、自动化循环与定时模拟，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.stores.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		group.Go(func() error {
			logger.Infof("HTTP 服务监听 %s", a.httpServer.Addr())
			if err := a.httpServer.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	if a.automation != nil {
		group.Go(func() error {
			return a.automation.Run(ctx)
		})
	}
	if a.growth != nil {
		group.Go(func() error {
			return a.growth.RunLoop(ctx)
		})
	}
	return group.Wait()
}
