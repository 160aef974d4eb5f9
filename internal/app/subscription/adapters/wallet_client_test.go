package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

func TestHTTPWalletClient_GetBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/wallets/emp-1/balance", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("currency"))
		_, _ = w.Write([]byte(`{"amount":"250.75","currency":"USD"}`))
	}))
	defer server.Close()

	client := NewHTTPWalletClient(server.Client(), server.URL)

	balance, err := client.GetBalance(context.Background(), "emp-1", "USD")

	require.NoError(t, err)
	assert.True(t, balance.Equals(domain.MustMoney(250.75, "USD")), balance.String())
}

func TestHTTPWalletClient_GetBalanceErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		err    error
	}{
		{name: "unknown wallet", status: http.StatusNotFound, err: domain.ErrWalletNotFound},
		{name: "wrong currency", status: http.StatusOK, body: `{"amount":"10.00","currency":"EUR"}`, err: domain.ErrCurrencyMismatch},
		{name: "negative balance", status: http.StatusOK, body: `{"amount":"-1.00","currency":"USD"}`, err: domain.ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewHTTPWalletClient(server.Client(), server.URL).GetBalance(context.Background(), "emp-1", "USD")

			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestHTTPWalletClient_GetBalanceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	_, err := NewHTTPWalletClient(server.Client(), server.URL).GetBalance(context.Background(), "emp-1", "USD")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestHTTPWalletClient_Debit(t *testing.T) {
	var received struct {
		TransactionID string       `json:"transaction_id"`
		Amount        domain.Money `json:"amount"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallets/emp-1/debits", r.URL.Path)
		assert.Equal(t, "hybrid_123", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewHTTPWalletClient(server.Client(), server.URL)

	err := client.Debit(context.Background(), "emp-1", domain.MustMoney(30, "USD"), "hybrid_123")

	require.NoError(t, err)
	assert.Equal(t, "hybrid_123", received.TransactionID)
	assert.True(t, received.Amount.Equals(domain.MustMoney(30, "USD")))
}

func TestHTTPWalletClient_DebitStatuses(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		err     error
		wantErr bool
	}{
		{name: "replayed debit", status: http.StatusConflict},
		{name: "ok", status: http.StatusOK},
		{name: "insufficient funds", status: http.StatusPaymentRequired, err: domain.ErrInsufficientFunds, wantErr: true},
		{name: "unknown wallet", status: http.StatusNotFound, err: domain.ErrWalletNotFound, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			err := NewHTTPWalletClient(server.Client(), server.URL).
				Debit(context.Background(), "emp-1", domain.MustMoney(10, "USD"), "wallet_1")

			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestHTTPWalletClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPWalletClient(server.Client(), server.URL, WithBreakerConfig(BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}))

	for i := 0; i < 2; i++ {
		_, err := client.GetBalance(context.Background(), "emp-1", "USD")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrWalletUnavailable)
	}

	err := client.Debit(context.Background(), "emp-1", domain.MustMoney(10, "USD"), "wallet_1")

	assert.ErrorIs(t, err, ErrWalletUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPWalletClient_WalletAnswersDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPWalletClient(server.Client(), server.URL, WithBreakerConfig(BreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}))

	for i := 0; i < 3; i++ {
		_, err := client.GetBalance(context.Background(), "ghost", "USD")
		assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	}
	assert.Equal(t, int32(3), hits.Load())
}
