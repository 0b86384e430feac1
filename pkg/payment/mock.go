package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockAdapter 内存支付渠道
type MockAdapter struct {
	mu sync.Mutex
	// AuthorizeStatus 新授权的状态，默认 capturable
	AuthorizeStatus Status
	// OffSessionStatus 离线授权的状态，默认与 AuthorizeStatus 相同
	OffSessionStatus Status
	CaptureErr       error

	intents  map[string]*Authorization
	captures int
	cancels  int
}

// NewMockAdapter 创建内存支付渠道
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{intents: make(map[string]*Authorization)}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Authorize(ctx context.Context, req *AuthorizeRequest) (*Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.AuthorizeStatus
	if req.OffSession && m.OffSessionStatus != "" {
		status = m.OffSessionStatus
	}
	if status == "" {
		status = StatusCapturable
	}
	auth := &Authorization{
		ProviderRef:   "pi_" + uuid.NewString(),
		Status:        status,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethodRef,
	}
	auth.ClientSecret = auth.ProviderRef + "_secret"
	if status != StatusCapturable {
		auth.ErrorCode = "card_declined"
		auth.ErrorMessage = "mock authorization ended in " + string(status)
	}
	m.intents[auth.ProviderRef] = auth
	cp := *auth
	return &cp, nil
}

func (m *MockAdapter) Capture(ctx context.Context, ref string) (*Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CaptureErr != nil {
		return nil, m.CaptureErr
	}
	auth, ok := m.intents[ref]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", ref)
	}
	if auth.Status != StatusCapturable {
		return nil, fmt.Errorf("payment intent %s is %s", ref, auth.Status)
	}
	m.captures++
	auth.Status = StatusSucceeded
	cp := *auth
	return &cp, nil
}

func (m *MockAdapter) Cancel(ctx context.Context, ref string) (*Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auth, ok := m.intents[ref]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", ref)
	}
	if auth.Status == StatusSucceeded {
		return nil, fmt.Errorf("payment intent %s already captured", ref)
	}
	m.cancels++
	auth.Status = StatusCanceled
	cp := *auth
	return &cp, nil
}

func (m *MockAdapter) Retrieve(ctx context.Context, ref string) (*Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auth, ok := m.intents[ref]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", ref)
	}
	cp := *auth
	return &cp, nil
}

// Captures 扣款次数
func (m *MockAdapter) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// Cancels 撤销次数
func (m *MockAdapter) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
