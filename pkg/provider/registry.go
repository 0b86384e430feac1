package provider

import (
	"fmt"
	"strings"
)

// Registry 按运营商解析渠道，每个运营商只有一个渠道
type Registry struct {
	adapters  map[string]Adapter
	operators map[string]string
	fallback  string
}

// NewRegistry operators 为 运营商 -> 渠道名，未配置的运营商使用 fallback
func NewRegistry(fallback string, operators map[string]string, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters:  make(map[string]Adapter, len(adapters)),
		operators: make(map[string]string, len(operators)),
		fallback:  fallback,
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	for op, name := range operators {
		r.operators[strings.ToLower(op)] = name
	}
	return r
}

// Resolve 返回运营商对应的渠道
func (r *Registry) Resolve(operator string) (Adapter, error) {
	name, ok := r.operators[strings.ToLower(operator)]
	if !ok {
		name = r.fallback
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no provider %q for operator %q", name, operator)
	}
	return a, nil
}
