// Package strategyreg manages allocation strategy profiles loaded from a
// YAML file, with hot reload and schema validation. A profile names the
// target weights the growth simulator rebalances toward.
package strategyreg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kestrel/internal/growth"
	"kestrel/internal/logger"
)

// profileSchema 约束单个策略条目：权重必须是 [0,1] 的数字。
const profileSchema = `{
	"type": "object",
	"properties": {
		"description": {"type": "string"},
		"allocation": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"min_allocation_pct": {"type": "number", "minimum": 0, "maximum": 1},
		"max_allocation_pct": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["allocation"]
}`

// Profile 描述一个可选用的配置策略。
type Profile struct {
	ID               string             `yaml:"id"`
	Description      string             `yaml:"description"`
	Allocation       map[string]float64 `yaml:"allocation"`
	MinAllocationPct float64            `yaml:"min_allocation_pct"`
	MaxAllocationPct float64            `yaml:"max_allocation_pct"`
}

// StrategyConfig 把 profile 转成模拟器的策略配置。
func (p Profile) StrategyConfig() growth.StrategyConfig {
	allocation := make(map[string]float64, len(p.Allocation))
	for k, v := range p.Allocation {
		allocation[k] = v
	}
	return growth.StrategyConfig{
		Allocation:       allocation,
		MinAllocationPct: p.MinAllocationPct,
		MaxAllocationPct: p.MaxAllocationPct,
	}
}

// FileConfig 映射 strategies 文件的顶层结构。
type FileConfig struct {
	Strategies map[string]Profile `yaml:"strategies"`
}

// Snapshot 是某一时刻全部 profile 的不可变视图。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener 在 registry 重载成功后触发。
type ChangeListener func(Snapshot)

// Registry 管理策略 profile，文件变更时自动重载。
// 重载失败保留旧快照，不把坏配置推给使用方。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取策略文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("profile.json", strings.NewReader(profileSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("profile.json")
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy config failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy registry reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前 profile 集合的拷贝。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Profile 返回指定 ID 的策略。
func (r *Registry) Profile(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[strings.TrimSpace(id)]
	return p, ok
}

// Names 返回排序后的全部 profile ID。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.snapshot.Profiles))
	for id := range r.snapshot.Profiles {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// Subscribe 注册重载回调，回调拿到的是快照拷贝。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	raw, generic, err := readStrategyFile(r.path)
	if err != nil {
		return err
	}
	profiles := make(map[string]Profile, len(raw.Strategies))
	for name, profile := range raw.Strategies {
		doc, err := jsonRoundTrip(generic[name])
		if err != nil {
			return fmt.Errorf("strategy %s 序列化失败: %w", name, err)
		}
		if err := r.schema.Validate(doc); err != nil {
			return fmt.Errorf("strategy %s 不符合约束: %w", name, err)
		}
		norm := normalizeProfile(name, profile)
		if _, dup := profiles[norm.ID]; dup {
			return fmt.Errorf("strategy ID 重复: %s", norm.ID)
		}
		profiles[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("Strategy registry loaded %d profiles from %s", len(profiles), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("strategy listener")
			cb(snap)
		}(fn)
	}
}

func normalizeProfile(name string, p Profile) Profile {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	p.Description = strings.TrimSpace(p.Description)
	if p.MaxAllocationPct <= 0 {
		p.MaxAllocationPct = 1
	}
	return p
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
	}
	for id, p := range src.Profiles {
		dst.Profiles[id] = p
	}
	return dst
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

// jsonRoundTrip 把 YAML 解出的值规整成 json.Unmarshal 的形状，
// 以满足 jsonschema 校验器对输入类型的要求。
func jsonRoundTrip(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// readStrategyFile 解析两遍：强类型用于使用，泛型 map 用于 schema 校验。
func readStrategyFile(path string) (FileConfig, map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, nil, fmt.Errorf("read strategy config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, nil, fmt.Errorf("parse strategy config failed: %w", err)
	}
	var generic struct {
		Strategies map[string]any `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, nil, fmt.Errorf("parse strategy config failed: %w", err)
	}
	return cfg, generic.Strategies, nil
}
