package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeAdapter PaymentIntents，capture_method=manual
type StripeAdapter struct {
	sc *client.API
}

// NewStripeAdapter backends 为 nil 时使用默认 API 地址
func NewStripeAdapter(secretKey string, backends *stripe.Backends) *StripeAdapter {
	return &StripeAdapter{sc: client.New(secretKey, backends)}
}

func (s *StripeAdapter) Name() string { return "stripe" }

// Authorize 卡被拒等业务错误以失败状态返回，其余错误原样返回
func (s *StripeAdapter) Authorize(ctx context.Context, req *AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.PaymentMethodRef != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodRef)
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
		params.Confirm = stripe.Bool(true)
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("order_id", req.OrderID)

	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		if auth, ok := declined(err); ok {
			auth.AmountMinor = req.AmountMinor
			auth.Currency = req.Currency
			return auth, nil
		}
		return nil, err
	}
	return fromIntent(pi), nil
}

func (s *StripeAdapter) Capture(ctx context.Context, providerRef string) (*Authorization, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + providerRef)
	pi, err := s.sc.PaymentIntents.Capture(providerRef, params)
	if err != nil {
		return nil, err
	}
	return fromIntent(pi), nil
}

func (s *StripeAdapter) Cancel(ctx context.Context, providerRef string) (*Authorization, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey("cancel-" + providerRef)
	pi, err := s.sc.PaymentIntents.Cancel(providerRef, params)
	if err != nil {
		return nil, err
	}
	return fromIntent(pi), nil
}

func (s *StripeAdapter) Retrieve(ctx context.Context, providerRef string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.sc.PaymentIntents.Get(providerRef, params)
	if err != nil {
		return nil, err
	}
	return fromIntent(pi), nil
}

func fromIntent(pi *stripe.PaymentIntent) *Authorization {
	auth := &Authorization{
		ProviderRef:  pi.ID,
		Status:       mapStatus(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
	}
	if pi.PaymentMethod != nil {
		auth.PaymentMethod = pi.PaymentMethod.ID
	}
	if pi.LastPaymentError != nil {
		auth.ErrorCode = string(pi.LastPaymentError.Code)
		auth.ErrorMessage = pi.LastPaymentError.Msg
	}
	return auth
}

func mapStatus(st stripe.PaymentIntentStatus) Status {
	switch st {
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusCapturable
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return StatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusRequiresPaymentMethod
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	}
	return StatusFailed
}

// declined 卡类错误（含离线确认失败）转为失败授权
func declined(err error) (*Authorization, bool) {
	var se *stripe.Error
	if !errors.As(err, &se) || se.Type != stripe.ErrorTypeCard {
		return nil, false
	}
	auth := &Authorization{
		Status:       StatusFailed,
		ErrorCode:    string(se.Code),
		ErrorMessage: se.Msg,
	}
	if se.PaymentIntent != nil {
		auth.ProviderRef = se.PaymentIntent.ID
		if st := mapStatus(se.PaymentIntent.Status); st == StatusRequiresAction {
			auth.Status = st
		}
	}
	if auth.ErrorCode == "" {
		auth.ErrorCode = string(se.DeclineCode)
	}
	return auth, true
}
