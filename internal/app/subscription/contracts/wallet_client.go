package contracts

import (
	"context"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

// WalletClient defines the interface for the external employee wallet service
type WalletClient interface {
	GetBalance(ctx context.Context, employeeID, currency string) (domain.Money, error)
	// Debit is idempotent per transactionID.
	Debit(ctx context.Context, employeeID string, amount domain.Money, transactionID string) error
}
