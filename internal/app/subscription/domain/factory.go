package domain

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BusinessRules are the configurable checks applied by the factory.
type BusinessRules struct {
	RequiresSpouseForChildren     bool
	MaxChildren                   int
	AllowedPaymentSources         []AllocationSource
	CompanyContributionPercentage float64
}

// DefaultBusinessRules allows every payment source and has the company cover
// the full premium when a member carries no explicit allocation.
func DefaultBusinessRules() BusinessRules {
	return BusinessRules{
		RequiresSpouseForChildren:     false,
		MaxChildren:                   MaxChildrenPerSubscription,
		AllowedPaymentSources:         []AllocationSource{SourceCompany, SourceEmployeeWallet, SourceHybrid},
		CompanyContributionPercentage: 100,
	}
}

// MemberConfig declares one covered member. A nil PaymentAllocation is derived
// from the company contribution percentage of the business rules.
type MemberConfig struct {
	MemberType        MemberType
	MemberID          string
	MonthlyPrice      Money
	PaymentAllocation *PaymentAllocation
}

// SubscriptionConfig is the declarative input of the factory. An empty ID is
// replaced with a generated one.
type SubscriptionConfig struct {
	ID          string
	CompanyID   string
	EmployeeID  string
	PlanID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Currency    string
	Members     []MemberConfig
}

// PlanTemplate prices a plan per member type.
type PlanTemplate struct {
	PlanID        string
	EmployeePrice Money
	SpousePrice   Money
	ChildPrice    Money
}

// FamilyComposition lists the dependants covered alongside the employee.
type FamilyComposition struct {
	SpouseID string
	ChildIDs []string
}

// HealthcareSubscriptionFactory builds fully validated subscriptions.
type HealthcareSubscriptionFactory struct {
	clock   Clock
	rules   BusinessRules
	newID   func() string
	subOpts []SubscriptionOption
}

// FactoryOption configures a HealthcareSubscriptionFactory.
type FactoryOption func(*HealthcareSubscriptionFactory)

func WithSubscriptionIDGenerator(gen func() string) FactoryOption {
	return func(f *HealthcareSubscriptionFactory) {
		f.newID = gen
	}
}

// WithSubscriptionOptions forwards options to every subscription the factory builds.
func WithSubscriptionOptions(opts ...SubscriptionOption) FactoryOption {
	return func(f *HealthcareSubscriptionFactory) {
		f.subOpts = append(f.subOpts, opts...)
	}
}

func NewHealthcareSubscriptionFactory(clock Clock, rules BusinessRules, opts ...FactoryOption) *HealthcareSubscriptionFactory {
	f := &HealthcareSubscriptionFactory{
		clock: clockOrDefault(clock),
		rules: rules,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HealthcareSubscriptionFactory) Rules() BusinessRules {
	rules := f.rules
	rules.AllowedPaymentSources = slices.Clone(f.rules.AllowedPaymentSources)
	return rules
}

// CreateSubscription validates cfg as a whole and, only if it is valid, builds
// the subscription and adds its members employee first, then spouse, then children.
func (f *HealthcareSubscriptionFactory) CreateSubscription(cfg SubscriptionConfig) (*Subscription, *SubscriptionCreatedEvent, error) {
	allocations, violations := f.validate(cfg)
	if len(violations) > 0 {
		return nil, nil, &InvalidConfigurationError{Violations: violations}
	}

	period, err := NewSubscriptionPeriod(cfg.PeriodStart, cfg.PeriodEnd)
	if err != nil {
		return nil, nil, err
	}

	id := cfg.ID
	if id == "" {
		id = f.newID()
	}

	opts := slices.Clone(f.subOpts)
	if cfg.Currency != "" {
		opts = append(opts, WithCurrency(cfg.Currency))
	}
	sub, event, err := NewSubscription(id, cfg.CompanyID, cfg.EmployeeID, cfg.PlanID, period, f.clock, opts...)
	if err != nil {
		return nil, nil, err
	}

	order := make([]int, len(cfg.Members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cfg.Members[order[a]].MemberType.priority() < cfg.Members[order[b]].MemberType.priority()
	})

	for _, idx := range order {
		m := cfg.Members[idx]
		if _, err := sub.AddSubscriptionItem(m.MemberType, m.MemberID, m.MonthlyPrice, allocations[idx]); err != nil {
			return nil, nil, fmt.Errorf("add member %s: %w", m.MemberID, err)
		}
	}

	return sub, event, nil
}

// CreateFromTemplate expands a plan template and family composition into
// members and builds the subscription. The employee is covered under base.EmployeeID.
func (f *HealthcareSubscriptionFactory) CreateFromTemplate(base SubscriptionConfig, tpl PlanTemplate, family FamilyComposition) (*Subscription, *SubscriptionCreatedEvent, error) {
	cfg := base
	if tpl.PlanID != "" {
		cfg.PlanID = tpl.PlanID
	}
	cfg.Members = []MemberConfig{{MemberType: MemberEmployee, MemberID: base.EmployeeID, MonthlyPrice: tpl.EmployeePrice}}
	if family.SpouseID != "" {
		cfg.Members = append(cfg.Members, MemberConfig{MemberType: MemberSpouse, MemberID: family.SpouseID, MonthlyPrice: tpl.SpousePrice})
	}
	for _, childID := range family.ChildIDs {
		cfg.Members = append(cfg.Members, MemberConfig{MemberType: MemberChild, MemberID: childID, MonthlyPrice: tpl.ChildPrice})
	}
	return f.CreateSubscription(cfg)
}

// ValidateConfiguration returns every rule violation in cfg.
func (f *HealthcareSubscriptionFactory) ValidateConfiguration(cfg SubscriptionConfig) []string {
	_, violations := f.validate(cfg)
	return violations
}

func (f *HealthcareSubscriptionFactory) validate(cfg SubscriptionConfig) ([]PaymentAllocation, []string) {
	var violations []string
	addf := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if cfg.CompanyID == "" {
		addf("companyId is required")
	}
	if cfg.EmployeeID == "" {
		addf("employeeId is required")
	}
	if cfg.PlanID == "" {
		addf("planId is required")
	}
	if cfg.PeriodStart.IsZero() || cfg.PeriodEnd.IsZero() {
		addf("period start and end are required")
	} else if !cfg.PeriodStart.Before(cfg.PeriodEnd) {
		addf("period start must be before period end")
	}
	var currency string
	if cfg.Currency != "" {
		code, err := normalizeCurrency(cfg.Currency)
		if err != nil {
			addf("currency %q is not a 3-letter code", cfg.Currency)
		}
		currency = code
	}

	pct := f.rules.CompanyContributionPercentage
	pctValid := pct >= 0 && pct <= 100
	if !pctValid {
		addf("companyContributionPercentage must be between 0 and 100, got %v", pct)
	}
	if f.rules.MaxChildren < 0 || f.rules.MaxChildren > MaxChildrenPerSubscription {
		addf("maxChildren must be between 0 and %d, got %d", MaxChildrenPerSubscription, f.rules.MaxChildren)
	}

	var employees, spouses, children int
	seen := make(map[string]bool, len(cfg.Members))
	allocations := make([]PaymentAllocation, len(cfg.Members))

	for i, m := range cfg.Members {
		field := fmt.Sprintf("members[%d]", i)
		switch m.MemberType {
		case MemberEmployee:
			employees++
		case MemberSpouse:
			spouses++
		case MemberChild:
			children++
		default:
			addf("%s: unknown member type %q", field, m.MemberType)
		}

		if m.MemberID == "" {
			addf("%s: memberId is required", field)
		} else if seen[m.MemberID] {
			addf("%s: duplicate memberId %s", field, m.MemberID)
		}
		seen[m.MemberID] = true

		if !m.MonthlyPrice.IsPositive() {
			addf("%s: monthlyPrice must be positive", field)
			continue
		}
		// Without an explicit currency the first priced member sets it.
		if currency == "" {
			currency = m.MonthlyPrice.Currency()
		} else if m.MonthlyPrice.Currency() != currency {
			addf("%s: monthlyPrice currency %s does not match %s", field, m.MonthlyPrice.Currency(), currency)
		}

		var allocation PaymentAllocation
		switch {
		case m.PaymentAllocation != nil:
			allocation = *m.PaymentAllocation
			if allocation.Currency() != m.MonthlyPrice.Currency() {
				addf("%s: paymentAllocation currency %s does not match price currency %s",
					field, allocation.Currency(), m.MonthlyPrice.Currency())
				continue
			}
		case pctValid:
			derived, err := FromPercentage(m.MonthlyPrice, pct)
			if err != nil {
				addf("%s: %v", field, err)
				continue
			}
			allocation = derived
		default:
			continue
		}
		if !slices.Contains(f.rules.AllowedPaymentSources, allocation.Source()) {
			addf("%s: payment source %s is not allowed", field, allocation.Source())
		}
		allocations[i] = allocation
	}

	if len(cfg.Members) > 0 {
		if employees == 0 {
			addf("members must include the employee")
		} else if employees > 1 {
			addf("members may include only one employee, got %d", employees)
		}
	}
	if spouses > 1 {
		addf("members may include at most one spouse, got %d", spouses)
	}
	if children > f.rules.MaxChildren {
		addf("members may include at most %d children, got %d", f.rules.MaxChildren, children)
	}
	if f.rules.RequiresSpouseForChildren && children > 0 && spouses == 0 {
		addf("children require a covered spouse")
	}

	return allocations, violations
}
