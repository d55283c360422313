// Package config loads the Kestrel configuration from YAML with include
// support, applies defaults only for keys the files left unset, and
// validates the result before anything else starts.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	merged := viper.New()
	merged.SetConfigType("yaml")
	if err := mergeFileTree(merged, abs, map[string]bool{}, map[string]bool{}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	// 只对文件里没出现过的键补默认值。
	set := make(keySet)
	for _, key := range merged.AllKeys() {
		set.mark(key)
	}
	cfg.applyDefaults(set)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFileTree 深度优先合并 include 链：先并入被包含文件，再并入
// 当前文件，后并入的键覆盖先并入的。stack 检测 include 环。
func mergeFileTree(dst *viper.Viper, path string, seen, stack map[string]bool) error {
	path = filepath.Clean(path)
	if stack[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if seen[path] {
		return nil
	}
	stack[path] = true
	defer delete(stack, path)

	src := viper.New()
	src.SetConfigFile(path)
	if err := src.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	includes, err := includeList(src.Get("include"))
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		if err := mergeFileTree(dst, inc, seen, stack); err != nil {
			return err
		}
	}
	seen[path] = true
	return dst.MergeConfigMap(src.AllSettings())
}

func includeList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}
