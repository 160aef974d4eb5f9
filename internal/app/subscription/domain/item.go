package domain

import "time"

// MemberType is the relationship of a covered member to the employee.
type MemberType string

const (
	MemberEmployee MemberType = "EMPLOYEE"
	MemberSpouse   MemberType = "SPOUSE"
	MemberChild    MemberType = "CHILD"
)

func (t MemberType) IsValid() bool {
	switch t {
	case MemberEmployee, MemberSpouse, MemberChild:
		return true
	}
	return false
}

// priority orders members so the employee is always added first.
func (t MemberType) priority() int {
	switch t {
	case MemberEmployee:
		return 0
	case MemberSpouse:
		return 1
	case MemberChild:
		return 2
	}
	return 3
}

// SubscriptionItem is one covered member. Items are only created through
// Subscription.AddSubscriptionItem and never change afterwards.
type SubscriptionItem struct {
	id                string
	subscriptionID    string
	memberType        MemberType
	memberID          string
	monthlyPrice      Money
	paymentAllocation PaymentAllocation
	createdAt         time.Time
}

// SubscriptionItemSnapshot is the persisted form of an item.
type SubscriptionItemSnapshot struct {
	ID                string
	SubscriptionID    string
	MemberType        MemberType
	MemberID          string
	MonthlyPrice      Money
	PaymentAllocation PaymentAllocation
	CreatedAt         time.Time
}

func (i SubscriptionItem) ID() string {
	return i.id
}

func (i SubscriptionItem) SubscriptionID() string {
	return i.subscriptionID
}

func (i SubscriptionItem) MemberType() MemberType {
	return i.memberType
}

func (i SubscriptionItem) MemberID() string {
	return i.memberID
}

func (i SubscriptionItem) MonthlyPrice() Money {
	return i.monthlyPrice
}

func (i SubscriptionItem) PaymentAllocation() PaymentAllocation {
	return i.paymentAllocation
}

func (i SubscriptionItem) CreatedAt() time.Time {
	return i.createdAt
}

func (i SubscriptionItem) Snapshot() SubscriptionItemSnapshot {
	return SubscriptionItemSnapshot{
		ID:                i.id,
		SubscriptionID:    i.subscriptionID,
		MemberType:        i.memberType,
		MemberID:          i.memberID,
		MonthlyPrice:      i.monthlyPrice,
		PaymentAllocation: i.paymentAllocation,
		CreatedAt:         i.createdAt,
	}
}

func itemFromSnapshot(s SubscriptionItemSnapshot) SubscriptionItem {
	return SubscriptionItem{
		id:                s.ID,
		subscriptionID:    s.SubscriptionID,
		memberType:        s.MemberType,
		memberID:          s.MemberID,
		monthlyPrice:      s.MonthlyPrice,
		paymentAllocation: s.PaymentAllocation,
		createdAt:         s.CreatedAt,
	}
}
