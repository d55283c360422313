package exchange

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownExchangeError 表示资产引用了未注册的交易所。
// 解析失败必须是显式错误，不允许退化为 nil Connector。
type UnknownExchangeError struct {
	Name string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("exchange %q is not registered", e.Name)
}

// Registry 在启动时装配，之后只读，可安全并发访问。
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register 以小写名称登记连接器，重名时覆盖并返回错误提示调用方。
func (r *Registry) Register(c Connector) error {
	if c == nil {
		return fmt.Errorf("registry: nil connector")
	}
	name := strings.ToLower(strings.TrimSpace(c.Name()))
	if name == "" {
		return fmt.Errorf("registry: connector name 不能为空")
	}
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("registry: connector %q already registered", name)
	}
	r.connectors[name] = c
	return nil
}

// Resolve 按名称查找连接器；未注册返回 *UnknownExchangeError。
func (r *Registry) Resolve(name string) (Connector, error) {
	c, ok := r.connectors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnknownExchangeError{Name: name}
	}
	return c, nil
}

// Names 返回已注册的交易所名称（排序后，便于日志与测试）。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
