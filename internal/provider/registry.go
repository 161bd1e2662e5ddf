package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 是 provider 的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Provider
}

func NewRegistry(providers ...Provider) (Registry, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return Registry{}, fmt.Errorf("provider 不能为空")
		}
		name := normName(p.Name())
		if name == "" {
			return Registry{}, fmt.Errorf("provider.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 provider：%q", name)
		}
		byName[name] = p
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Provider, bool) {
	if r.byName == nil {
		return nil, false
	}
	p, ok := r.byName[normName(name)]
	return p, ok
}

// Names 返回已注册的 provider 名称（字典序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Order 返回回退顺序：requested 在前，其余按名称字典序。
func (r Registry) Order(requested string) ([]string, error) {
	requested = normName(requested)
	if _, ok := r.Get(requested); !ok {
		return nil, fmt.Errorf("未知 provider：%q", requested)
	}
	order := []string{requested}
	for _, n := range r.Names() {
		if n != requested {
			order = append(order, n)
		}
	}
	return order, nil
}

func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
