package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTAdapter JSON over HTTP 渠道
type RESTAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRESTAdapter timeout 为单次调用上限
func NewRESTAdapter(name, baseURL, apiKey string, timeout time.Duration) *RESTAdapter {
	return &RESTAdapter{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *RESTAdapter) Name() string { return a.name }

type topupRequest struct {
	Reference   string `json:"reference"`
	Operator    string `json:"operator"`
	Product     string `json:"product"`
	Msisdn      string `json:"msisdn"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type topupResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
}

// AttemptDelivery 传输层错误直接返回，由调用方折算为失败结果
func (a *RESTAdapter) AttemptDelivery(ctx context.Context, req *Request) (*Outcome, error) {
	payload, err := json.Marshal(&topupRequest{
		Reference:   req.ExternalAttemptID,
		Operator:    req.Operator,
		Product:     req.VariantID,
		Msisdn:      req.Destination,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/topups", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ExternalAttemptID)
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	out := &Outcome{RawRequest: payload, RawResponse: rawJSON(body)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		out.Status = StatusFailed
		out.ErrorCode = CodeAuth
		out.ErrorMessage = fmt.Sprintf("provider rejected credentials: status=%d", resp.StatusCode)
		return out, nil
	case resp.StatusCode == http.StatusNotFound:
		out.Status = StatusFailed
		out.ErrorCode = CodeConfig
		out.ErrorMessage = "provider endpoint not found"
		return out, nil
	case resp.StatusCode >= 500:
		out.Status = StatusFailed
		out.ErrorCode = CodeUpstream
		out.ErrorMessage = fmt.Sprintf("provider error: status=%d", resp.StatusCode)
		return out, nil
	}

	var tr topupResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		out.Status = StatusFailed
		out.ErrorCode = CodeDecode
		out.ErrorMessage = err.Error()
		return out, nil
	}
	out.ProviderTxnID = tr.TransactionID
	out.ErrorMessage = tr.Message

	if resp.StatusCode >= 400 {
		out.Status = StatusFailed
		out.ErrorCode = firstNonEmpty(tr.ErrorCode, CodeRejected)
		return out, nil
	}

	switch Status(strings.ToLower(tr.Status)) {
	case StatusAccepted:
		out.Status = StatusAccepted
	case StatusDelivered:
		out.Status = StatusDelivered
	case StatusSent:
		out.Status = StatusSent
	default:
		out.Status = StatusFailed
		out.ErrorCode = firstNonEmpty(tr.ErrorCode, CodeRejected)
	}
	return out, nil
}

// FailureFromError 将传输层错误折算为失败结果
func FailureFromError(err error) *Outcome {
	code := CodeNetwork
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		code = CodeTimeout
	}
	return &Outcome{Status: StatusFailed, ErrorCode: code, ErrorMessage: err.Error()}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func rawJSON(body []byte) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
