package provider

import (
	"context"
	"encoding/json"
	"sync"
)

// Script 返回第 n 次调用（从 1 开始）的结果
type Script func(n int, req *Request) (*Outcome, error)

// MockAdapter 本地联调与测试用渠道，记录每次调用
type MockAdapter struct {
	name   string
	script Script

	mu    sync.Mutex
	calls []Request
}

// NewMockAdapter script 为 nil 时总是返回 accepted
func NewMockAdapter(name string, script Script) *MockAdapter {
	if script == nil {
		script = Always(&Outcome{Status: StatusAccepted})
	}
	return &MockAdapter{name: name, script: script}
}

// Always 固定结果
func Always(o *Outcome) Script {
	return func(int, *Request) (*Outcome, error) {
		cp := *o
		return &cp, nil
	}
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) AttemptDelivery(ctx context.Context, req *Request) (*Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	n := len(m.calls)
	m.mu.Unlock()

	out, err := m.script(n, req)
	if err != nil {
		return nil, err
	}
	if out.RawRequest == nil {
		out.RawRequest, _ = json.Marshal(req)
	}
	return out, nil
}

// Calls 已发生的调用
func (m *MockAdapter) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
