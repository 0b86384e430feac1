package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *Request {
	return &Request{
		OrderID: "o1", OrderLineID: "l1", ExternalAttemptID: "o1-l1",
		Operator: "roshan", VariantID: "v100", Destination: "+93700000000",
		AmountMinor: 10000, Currency: "AFN",
	}
}

func TestRESTAdapterSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody topupRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"status":"accepted","transaction_id":"tx-1"}`))
	}))
	defer srv.Close()

	a := NewRESTAdapter("rest", srv.URL+"/", "secret", time.Second)
	out, err := a.AttemptDelivery(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "o1-l1", gotKey)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "o1-l1", gotBody.Reference)
	assert.Equal(t, StatusAccepted, out.Status)
	assert.Equal(t, "tx-1", out.ProviderTxnID)
	assert.True(t, out.Succeeded())
	assert.JSONEq(t, `{"status":"accepted","transaction_id":"tx-1"}`, string(out.RawResponse))
}

func TestRESTAdapterClassifiesFailures(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		code     string
		terminal bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, CodeAuth, true},
		{"forbidden", http.StatusForbidden, `denied`, CodeAuth, true},
		{"not found", http.StatusNotFound, `{}`, CodeConfig, true},
		{"server error", http.StatusBadGateway, `oops`, CodeUpstream, false},
		{"rejected", http.StatusUnprocessableEntity, `{"error_code":"INVALID_MSISDN","message":"bad number"}`, "INVALID_MSISDN", false},
		{"business failure", http.StatusOK, `{"status":"failed","message":"no stock"}`, CodeRejected, false},
		{"garbage", http.StatusOK, `not json`, CodeDecode, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			out, err := NewRESTAdapter("rest", srv.URL, "", time.Second).AttemptDelivery(context.Background(), testRequest())
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, tc.code, out.ErrorCode)
			assert.Equal(t, tc.terminal, out.Terminal())
			assert.True(t, json.Valid(out.RawResponse))
		})
	}
}

func TestRESTAdapterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewRESTAdapter("rest", srv.URL, "", 20*time.Millisecond).AttemptDelivery(context.Background(), testRequest())
	require.Error(t, err)

	out := FailureFromError(err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, CodeTimeout, out.ErrorCode)
	assert.False(t, out.Terminal())
}

func TestRegistryResolve(t *testing.T) {
	def := NewMockAdapter("default", nil)
	alt := NewMockAdapter("alt", nil)
	r := NewRegistry("default", map[string]string{"Etisalat": "alt", "mtn": "missing"}, def, alt)

	got, err := r.Resolve("roshan")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name())

	got, err = r.Resolve("etisalat")
	require.NoError(t, err)
	assert.Equal(t, "alt", got.Name())

	_, err = r.Resolve("MTN")
	assert.Error(t, err)
}
