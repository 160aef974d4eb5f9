package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

var _ contracts.WalletClient = (*HTTPWalletClient)(nil)

// ErrWalletUnavailable is returned while the circuit breaker is open.
var ErrWalletUnavailable = errors.New("wallet service unavailable")

// BreakerConfig tunes the circuit breaker guarding the wallet service.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// WalletOption configures an HTTPWalletClient.
type WalletOption func(*walletOptions)

type walletOptions struct {
	breaker BreakerConfig
	logger  *slog.Logger
}

func WithBreakerConfig(cfg BreakerConfig) WalletOption {
	return func(o *walletOptions) {
		o.breaker = cfg
	}
}

func WithLogger(logger *slog.Logger) WalletOption {
	return func(o *walletOptions) {
		o.logger = logger
	}
}

// HTTPWalletClient implements the wallet client interface using HTTP
type HTTPWalletClient struct {
	client  *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker[any]
}

// NewHTTPWalletClient creates a new HTTP wallet client. Both calls share one
// circuit breaker; answers about the wallet itself (unknown wallet, short
// balance, wrong currency) do not count as failures.
func NewHTTPWalletClient(client *http.Client, baseURL string, opts ...WalletOption) *HTTPWalletClient {
	o := walletOptions{breaker: DefaultBreakerConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	settings := gobreaker.Settings{
		Name:        "wallet",
		MaxRequests: o.breaker.HalfOpenRequests,
		Timeout:     o.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.breaker.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrWalletNotFound) ||
				errors.Is(err, domain.ErrInsufficientFunds) ||
				errors.Is(err, domain.ErrCurrencyMismatch) ||
				errors.Is(err, domain.ErrInvalidAmount)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &HTTPWalletClient{
		client:  client,
		baseURL: baseURL,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// GetBalance fetches the employee's wallet balance in the given currency
func (c *HTTPWalletClient) GetBalance(ctx context.Context, employeeID, currency string) (domain.Money, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.getBalance(ctx, employeeID, currency)
	})
	if err != nil {
		return domain.Money{}, breakerError(err)
	}
	return result.(domain.Money), nil
}

func (c *HTTPWalletClient) getBalance(ctx context.Context, employeeID, currency string) (domain.Money, error) {
	endpoint := fmt.Sprintf("%s/wallets/%s/balance?currency=%s",
		c.baseURL, url.PathEscape(employeeID), url.QueryEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to fetch wallet balance: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Money{}, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, employeeID)
	default:
		return domain.Money{}, statusError("wallet balance", resp)
	}

	var balance domain.Money
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return domain.Money{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if balance.Currency() != currency {
		return domain.Money{}, fmt.Errorf("%w: wallet returned %s, requested %s",
			domain.ErrCurrencyMismatch, balance.Currency(), currency)
	}

	return balance, nil
}

// Debit charges the employee's wallet. The transaction id doubles as the
// idempotency key, so a replayed debit reported as a conflict counts as done.
func (c *HTTPWalletClient) Debit(ctx context.Context, employeeID string, amount domain.Money, transactionID string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.debit(ctx, employeeID, amount, transactionID)
	})
	if err != nil {
		return breakerError(err)
	}
	return nil
}

func (c *HTTPWalletClient) debit(ctx context.Context, employeeID string, amount domain.Money, transactionID string) error {
	endpoint := fmt.Sprintf("%s/wallets/%s/debits", c.baseURL, url.PathEscape(employeeID))

	payload := struct {
		TransactionID string       `json:"transaction_id"`
		Amount        domain.Money `json:"amount"`
	}{
		TransactionID: transactionID,
		Amount:        amount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", transactionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, employeeID)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: debit of %s for %s", domain.ErrInsufficientFunds, amount, employeeID)
	default:
		return statusError("wallet debit", resp)
	}
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
	}
	return err
}

func statusError(op string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, string(bodyBytes))
}
