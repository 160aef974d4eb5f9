package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(amount float64) Money {
	return MustMoney(amount, "USD")
}

func assertMoney(t *testing.T, expected, actual Money) {
	t.Helper()
	assert.True(t, expected.Equals(actual), "expected %s, got %s", expected, actual)
}

func TestNewMoney_RoundsAndNormalizes(t *testing.T) {
	m, err := MoneyFromFloat(10.005, " usd ")

	require.NoError(t, err)
	assert.Equal(t, "USD", m.Currency())
	assert.Equal(t, "10.01", m.Amount().StringFixed(2))
	assert.Equal(t, "10.01 USD", m.String())
}

func TestNewMoney_Invalid(t *testing.T) {
	testCases := []struct {
		name     string
		amount   float64
		currency string
		err      error
	}{
		{name: "negative amount", amount: -0.01, currency: "USD", err: ErrInvalidAmount},
		{name: "two letters", amount: 1, currency: "US", err: ErrInvalidCurrency},
		{name: "four letters", amount: 1, currency: "USDT", err: ErrInvalidCurrency},
		{name: "digits", amount: 1, currency: "U5D", err: ErrInvalidCurrency},
		{name: "empty", amount: 1, currency: "", err: ErrInvalidCurrency},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MoneyFromFloat(tc.amount, tc.currency)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	sum, err := usd(100.10).Add(usd(0.25))
	require.NoError(t, err)
	assertMoney(t, usd(100.35), sum)

	diff, err := usd(100).Subtract(usd(40.5))
	require.NoError(t, err)
	assertMoney(t, usd(59.5), diff)

	product, err := usd(100).Multiply(decimal.NewFromFloat(0.3333))
	require.NoError(t, err)
	assertMoney(t, usd(33.33), product)

	ok, err := usd(50).IsGreaterThanOrEqualTo(usd(50))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = usd(49.99).IsGreaterThanOrEqualTo(usd(50))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoney_ArithmeticIsImmutable(t *testing.T) {
	base := usd(10)

	_, err := base.Add(usd(5))
	require.NoError(t, err)

	assertMoney(t, usd(10), base)
}

func TestMoney_Failures(t *testing.T) {
	eur := MustMoney(10, "EUR")

	_, err := usd(10).Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd(10).Subtract(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd(10).IsGreaterThanOrEqualTo(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd(50).Subtract(usd(100))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = usd(50).Multiply(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	amounts := []float64{0, 0.01, 19.99, 100, 1234567.89}
	for _, amount := range amounts {
		original := MustMoney(amount, "eur")

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Money
		require.NoError(t, json.Unmarshal(data, &decoded))

		assertMoney(t, original, decoded)
	}

	data, err := json.Marshal(usd(19.9))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"19.90","currency":"USD"}`, string(data))
}

func TestMoney_UnmarshalRejectsInvalid(t *testing.T) {
	var m Money

	err := json.Unmarshal([]byte(`{"amount":"-5","currency":"USD"}`), &m)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = json.Unmarshal([]byte(`{"amount":"5","currency":"DOLLAR"}`), &m)
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	err = json.Unmarshal([]byte(`{"amount":"abc","currency":"USD"}`), &m)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoney_Cents(t *testing.T) {
	m := usd(19.99)
	assert.Equal(t, int64(1999), m.Cents())

	back, err := MoneyFromCents(1999, "USD")
	require.NoError(t, err)
	assertMoney(t, m, back)
}

func TestSubscriptionPeriod(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	period, err := NewSubscriptionPeriod(start, end)
	require.NoError(t, err)

	assert.True(t, period.IsPending(start.Add(-time.Second)))
	assert.True(t, period.IsActive(start))
	assert.True(t, period.IsActive(end.Add(-time.Second)))
	assert.False(t, period.IsActive(end))
	assert.True(t, period.IsExpired(end))
	assert.Equal(t, start, period.Start())
	assert.Equal(t, end, period.End())

	_, err = NewSubscriptionPeriod(end, start)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = NewSubscriptionPeriod(start, start)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
