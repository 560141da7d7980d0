package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProvider identifies the gateway.
const (
	PaymentProviderStripe = "stripe"
)

// PaymentStatus values. Transitions are forward-only; see CanTransitionTo.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// PaymentType distinguishes one-time purchases from subscriptions.
const (
	PaymentTypeOneTime      = "one_time"
	PaymentTypeSubscription = "subscription"
)

// Payment is a charge attempt for a course.
type Payment struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	CourseID           uuid.UUID  `json:"course_id"`
	Provider           string     `json:"provider"`
	ProviderPaymentID  string     `json:"provider_payment_id,omitempty"`
	ProviderCustomerID string     `json:"-"`
	AmountCents        int64      `json:"amount_cents"`
	DiscountCents      int64      `json:"discount_cents"`
	CouponID           *uuid.UUID `json:"coupon_id,omitempty"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	PaymentType        string     `json:"payment_type"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
	Metadata           []byte     `json:"metadata,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// paymentStatusRank orders statuses so transitions only move forward.
// pending -> completed/failed/cancelled -> refunded (from completed only).
var paymentStatusRank = map[string]int{
	PaymentStatusPending:   0,
	PaymentStatusCompleted: 1,
	PaymentStatusFailed:    1,
	PaymentStatusCancelled: 1,
	PaymentStatusRefunded:  2,
}

// CanTransitionTo reports whether the status change is allowed.
func (p *Payment) CanTransitionTo(next string) bool {
	cur, ok := paymentStatusRank[p.Status]
	if !ok {
		return false
	}
	nr, ok := paymentStatusRank[next]
	if !ok {
		return false
	}
	if next == PaymentStatusRefunded {
		return p.Status == PaymentStatusCompleted
	}
	return nr > cur
}

// SavedCard is a tokenized payment method kept at the gateway.
type SavedCard struct {
	ID                      uuid.UUID `json:"id"`
	UserID                  uuid.UUID `json:"user_id"`
	ProviderPaymentMethodID string    `json:"provider_payment_method_id"`
	Brand                   string    `json:"brand"`
	Last4                   string    `json:"last4"`
	ExpMonth                int       `json:"exp_month"`
	ExpYear                 int       `json:"exp_year"`
	IsDefault               bool      `json:"is_default"`
	CreatedAt               time.Time `json:"created_at"`
}
