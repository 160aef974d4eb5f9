package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocationSource classifies who pays for an allocation.
type AllocationSource string

const (
	SourceCompany        AllocationSource = "COMPANY"
	SourceEmployeeWallet AllocationSource = "EMPLOYEE_WALLET"
	SourceHybrid         AllocationSource = "HYBRID"
)

func (s AllocationSource) String() string {
	return string(s)
}

func (s AllocationSource) IsValid() bool {
	switch s {
	case SourceCompany, SourceEmployeeWallet, SourceHybrid:
		return true
	}
	return false
}

// PaymentAllocation splits an amount between the company and the employee's wallet.
type PaymentAllocation struct {
	companyContribution  Money
	employeeContribution Money
}

func NewPaymentAllocation(company, employee Money) (PaymentAllocation, error) {
	if company.Currency() != employee.Currency() {
		return PaymentAllocation{}, fmt.Errorf("%w: company %s, employee %s",
			ErrCurrencyMismatch, company.Currency(), employee.Currency())
	}
	return PaymentAllocation{companyContribution: company, employeeContribution: employee}, nil
}

// CompanyPaid allocates the whole amount to the company.
func CompanyPaid(amount Money) PaymentAllocation {
	return PaymentAllocation{
		companyContribution:  amount,
		employeeContribution: Money{amount: decimal.Zero, currency: amount.Currency()},
	}
}

// EmployeePaid allocates the whole amount to the employee's wallet.
func EmployeePaid(amount Money) PaymentAllocation {
	return PaymentAllocation{
		companyContribution:  Money{amount: decimal.Zero, currency: amount.Currency()},
		employeeContribution: amount,
	}
}

// FromPercentage derives a split from the company's share of total. The
// employee share is the exact complement so the two always add back to total.
func FromPercentage(total Money, companyPercentage float64) (PaymentAllocation, error) {
	if companyPercentage < 0 || companyPercentage > 100 {
		return PaymentAllocation{}, fmt.Errorf("%w: %v", ErrInvalidPercentage, companyPercentage)
	}
	factor := decimal.NewFromFloat(companyPercentage).Div(hundred)
	company, err := total.Multiply(factor)
	if err != nil {
		return PaymentAllocation{}, err
	}
	employee, err := total.Subtract(company)
	if err != nil {
		return PaymentAllocation{}, err
	}
	return NewPaymentAllocation(company, employee)
}

func (a PaymentAllocation) CompanyContribution() Money {
	return a.companyContribution
}

func (a PaymentAllocation) EmployeeContribution() Money {
	return a.employeeContribution
}

func (a PaymentAllocation) Currency() string {
	return a.companyContribution.Currency()
}

// TotalAmount is company + employee. Both sides share a currency by construction.
func (a PaymentAllocation) TotalAmount() Money {
	return Money{
		amount:   a.companyContribution.amount.Add(a.employeeContribution.amount),
		currency: a.companyContribution.currency,
	}
}

// Source derives the payer classification. A zero/zero allocation reports
// COMPANY; use IsZero to tell an unfunded allocation apart from a company one.
func (a PaymentAllocation) Source() AllocationSource {
	company := a.companyContribution.IsPositive()
	employee := a.employeeContribution.IsPositive()
	switch {
	case company && employee:
		return SourceHybrid
	case employee:
		return SourceEmployeeWallet
	default:
		return SourceCompany
	}
}

func (a PaymentAllocation) IsZero() bool {
	return a.companyContribution.IsZero() && a.employeeContribution.IsZero()
}

// Combine sums both sides of two allocations.
func (a PaymentAllocation) Combine(other PaymentAllocation) (PaymentAllocation, error) {
	company, err := a.companyContribution.Add(other.companyContribution)
	if err != nil {
		return PaymentAllocation{}, err
	}
	employee, err := a.employeeContribution.Add(other.employeeContribution)
	if err != nil {
		return PaymentAllocation{}, err
	}
	return NewPaymentAllocation(company, employee)
}

// CanBeProcessed reports whether walletBalance covers the employee share.
// Allocations with no employee share always pass.
func (a PaymentAllocation) CanBeProcessed(walletBalance Money) bool {
	if !a.employeeContribution.IsPositive() {
		return true
	}
	ok, err := walletBalance.IsGreaterThanOrEqualTo(a.employeeContribution)
	return err == nil && ok
}

// CompanyPercentage is the company share of the total, rounded to 2 places.
func (a PaymentAllocation) CompanyPercentage() decimal.Decimal {
	total := a.TotalAmount().amount
	if total.IsZero() {
		return decimal.Zero
	}
	return a.companyContribution.amount.Div(total).Mul(hundred).Round(moneyScale)
}

// EmployeePercentage is the complement of CompanyPercentage.
func (a PaymentAllocation) EmployeePercentage() decimal.Decimal {
	if a.TotalAmount().IsZero() {
		return decimal.Zero
	}
	return hundred.Sub(a.CompanyPercentage())
}

func (a PaymentAllocation) Equals(other PaymentAllocation) bool {
	return a.companyContribution.Equals(other.companyContribution) &&
		a.employeeContribution.Equals(other.employeeContribution)
}

func (a PaymentAllocation) String() string {
	return fmt.Sprintf("%s (company %s, employee %s)", a.Source(), a.companyContribution, a.employeeContribution)
}
