package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const moneyScale = 2

var hundred = decimal.NewFromInt(100)

// Money is an immutable, currency-tagged, non-negative amount rounded to cents.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney validates and rounds an amount. Rounding happens only here, so
// arithmetic on already-built values stays stable.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	code, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount.Round(moneyScale), currency: code}, nil
}

// MoneyFromFloat is a convenience constructor for literal amounts.
func MoneyFromFloat(amount float64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// MoneyFromCents rebuilds a value stored as an integer number of cents.
func MoneyFromCents(cents int64, currency string) (Money, error) {
	return NewMoney(decimal.New(cents, -moneyScale), currency)
}

// MustMoney panics on invalid input. Intended for fixtures and constants.
func MustMoney(amount float64, currency string) Money {
	m, err := MoneyFromFloat(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) (Money, error) {
	return NewMoney(decimal.Zero, currency)
}

func normalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
		}
	}
	return code, nil
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() string {
	return m.currency
}

// Cents returns the amount as an integer number of minor units.
func (m Money) Cents() int64 {
	return m.amount.Shift(moneyScale).IntPart()
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.amount.Add(other.amount), m.currency)
}

func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrInsufficientFunds, other, m)
	}
	return NewMoney(result, m.currency)
}

func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, fmt.Errorf("%w: factor %s", ErrInvalidAmount, factor.String())
	}
	return NewMoney(m.amount.Mul(factor), m.currency)
}

func (m Money) IsGreaterThanOrEqualTo(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.GreaterThanOrEqual(other.amount), nil
}

// Equals compares amount and currency by value.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(moneyScale), m.currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount.StringFixed(moneyScale),
		Currency: m.currency,
	})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw.Amount)
	}
	parsed, err := NewMoney(amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
