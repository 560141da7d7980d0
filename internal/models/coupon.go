package models

import (
	"time"

	"github.com/google/uuid"
)

// Coupon discount types.
const (
	CouponDiscountPercent = "percent"
	CouponDiscountFixed   = "fixed" // discount_value is cents
)

// Coupon is a discount code, either course-scoped or marketplace-wide
// (CourseID nil). Usage accounting lives in used_count; the repository
// increments it with a conditional UPDATE so concurrent redemptions
// cannot exceed max_uses.
type Coupon struct {
	ID            uuid.UUID  `json:"id"`
	CourseID      *uuid.UUID `json:"course_id,omitempty"` // nil = valid for any course
	Code          string     `json:"code"`
	DiscountType  string     `json:"discount_type"`
	DiscountValue int64      `json:"discount_value"`
	MaxUses       *int       `json:"max_uses,omitempty"` // nil = unlimited
	UsedCount     int        `json:"used_count"`
	ValidFrom     time.Time  `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsValid reports whether the coupon can be redeemed at the given time:
// active, inside its validity window, and not exhausted.
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return false
	}
	return true
}

// AppliesTo reports whether the coupon may be used on the given course.
func (c *Coupon) AppliesTo(courseID uuid.UUID) bool {
	return c.CourseID == nil || *c.CourseID == courseID
}

// Discount returns the discount in cents for an original amount in cents.
// Returns 0 when the coupon is not valid at now. A fixed discount never
// exceeds the amount; a percent discount is rounded to the nearest cent.
func (c *Coupon) Discount(amountCents int64, now time.Time) int64 {
	if !c.IsValid(now) || amountCents <= 0 {
		return 0
	}
	switch c.DiscountType {
	case CouponDiscountPercent:
		return (amountCents*c.DiscountValue + 50) / 100
	case CouponDiscountFixed:
		if c.DiscountValue > amountCents {
			return amountCents
		}
		return c.DiscountValue
	default:
		return 0
	}
}

// WithUsageIncremented returns a copy with used_count+1. The receiver is
// never mutated. Persisted redemption goes through the repository's
// conditional UPDATE, which is atomic under concurrency; this helper is the
// in-memory equivalent for code that already holds the coupon.
func (c Coupon) WithUsageIncremented() Coupon {
	c.UsedCount++
	return c
}

// CouponUsage records one successful redemption.
type CouponUsage struct {
	ID            uuid.UUID `json:"id"`
	CouponID      uuid.UUID `json:"coupon_id"`
	UserID        uuid.UUID `json:"user_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	DiscountCents int64     `json:"discount_cents"`
	UsedAt        time.Time `json:"used_at"`
}
