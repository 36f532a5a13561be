package domain

import "time"

// SubscriptionStatus is the host's recurring order status id
type SubscriptionStatus int

const (
	SubscriptionStatusActive    SubscriptionStatus = 1
	SubscriptionStatusExpired   SubscriptionStatus = 2
	SubscriptionStatusSuspended SubscriptionStatus = 3
	SubscriptionStatusFailed    SubscriptionStatus = 4
)

// Frequency is the billing period unit of a recurring plan
type Frequency string

const (
	FrequencyDay       Frequency = "day"
	FrequencyWeek      Frequency = "week"
	FrequencySemiMonth Frequency = "semi_month"
	FrequencyMonth     Frequency = "month"
	FrequencyYear      Frequency = "year"
)

// SubscriptionPlan is one phase (trial or regular) of a recurring plan.
// Duration 0 means unlimited cycles.
type SubscriptionPlan struct {
	Frequency Frequency `json:"frequency"`
	Price     string    `json:"price"`
	Cycle     int       `json:"cycle"`
	Duration  int       `json:"duration"`
	Remaining int       `json:"remaining"`
}

// Subscription is a host recurring order charged against a card on file
type Subscription struct {
	DateNext      time.Time          `json:"date_next"`
	Trial         SubscriptionPlan   `json:"trial"`
	Regular       SubscriptionPlan   `json:"regular"`
	Currency      string             `json:"currency"`
	CustomerID    string             `json:"customer_id"`
	CardID        string             `json:"card_id"`
	Description   string             `json:"description"`
	CustomerEmail string             `json:"customer_email"`
	ID            int64              `json:"id"`
	OrderID       int64              `json:"order_id"`
	Status        SubscriptionStatus `json:"status"`
	TrialEnabled  bool               `json:"trial_enabled"`
}

// InTrial reports whether the next charge belongs to the trial phase
func (s *Subscription) InTrial() bool {
	return s.TrialEnabled && s.Trial.Remaining > 0
}

// CurrentPlan returns the plan the next charge is billed on
func (s *Subscription) CurrentPlan() SubscriptionPlan {
	if s.InTrial() {
		return s.Trial
	}
	return s.Regular
}

// NextChargeDate advances from by one billing period of plan
func NextChargeDate(from time.Time, plan SubscriptionPlan) time.Time {
	cycle := plan.Cycle
	if cycle < 1 {
		cycle = 1
	}

	switch plan.Frequency {
	case FrequencyDay:
		return from.AddDate(0, 0, cycle)
	case FrequencyWeek:
		return from.AddDate(0, 0, 7*cycle)
	case FrequencySemiMonth:
		return from.AddDate(0, 0, 14*cycle)
	case FrequencyYear:
		return from.AddDate(cycle, 0, 0)
	default:
		return from.AddDate(0, cycle, 0)
	}
}
