package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"kestrel/internal/logger"
)

// Watch 监听配置主文件，变更时完整重新 Load 并回调新配置。
// 重载失败只记日志，旧配置继续生效。返回的函数用于停止监听。
func Watch(path string, onChange func(*Config)) (func(), error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var stopped atomic.Bool
	v.OnConfigChange(func(evt fsnotify.Event) {
		if stopped.Load() {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("config reload failed: %v", err)
			return
		}
		logger.Infof("config reloaded from %s", evt.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return func() { stopped.Store(true) }, nil
}
