package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }

func TestCouponIsValid(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	base := Coupon{
		Code:          "SAVE10",
		DiscountType:  CouponDiscountPercent,
		DiscountValue: 10,
		ValidFrom:     now.Add(-time.Hour),
		IsActive:      true,
	}

	t.Run("active coupon inside window", func(t *testing.T) {
		assert.True(t, base.IsValid(now))
	})

	t.Run("inactive", func(t *testing.T) {
		c := base
		c.IsActive = false
		assert.False(t, c.IsValid(now))
	})

	t.Run("before valid_from", func(t *testing.T) {
		c := base
		c.ValidFrom = now.Add(time.Minute)
		assert.False(t, c.IsValid(now))
	})

	t.Run("after valid_until", func(t *testing.T) {
		c := base
		c.ValidUntil = timePtr(now.Add(-time.Minute))
		assert.False(t, c.IsValid(now))
	})

	t.Run("at usage limit", func(t *testing.T) {
		c := base
		c.MaxUses = intPtr(5)
		c.UsedCount = 5
		assert.False(t, c.IsValid(now))
	})

	t.Run("one use left", func(t *testing.T) {
		c := base
		c.MaxUses = intPtr(5)
		c.UsedCount = 4
		assert.True(t, c.IsValid(now))
	})
}

func TestCouponAppliesTo(t *testing.T) {
	courseID := uuid.New()
	other := uuid.New()

	global := Coupon{}
	assert.True(t, global.AppliesTo(courseID))

	scoped := Coupon{CourseID: &courseID}
	assert.True(t, scoped.AppliesTo(courseID))
	assert.False(t, scoped.AppliesTo(other))
}

func TestCouponDiscount(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		coupon      Coupon
		amountCents int64
		want        int64
	}{
		{
			name: "ten percent of 49.99",
			coupon: Coupon{
				DiscountType: CouponDiscountPercent, DiscountValue: 10,
				ValidFrom: now.Add(-time.Hour), IsActive: true,
			},
			amountCents: 4999,
			want:        500, // rounded to nearest cent
		},
		{
			name: "hundred percent",
			coupon: Coupon{
				DiscountType: CouponDiscountPercent, DiscountValue: 100,
				ValidFrom: now.Add(-time.Hour), IsActive: true,
			},
			amountCents: 4999,
			want:        4999,
		},
		{
			name: "fixed below amount",
			coupon: Coupon{
				DiscountType: CouponDiscountFixed, DiscountValue: 1500,
				ValidFrom: now.Add(-time.Hour), IsActive: true,
			},
			amountCents: 4999,
			want:        1500,
		},
		{
			name: "fixed capped at amount",
			coupon: Coupon{
				DiscountType: CouponDiscountFixed, DiscountValue: 9999,
				ValidFrom: now.Add(-time.Hour), IsActive: true,
			},
			amountCents: 4999,
			want:        4999,
		},
		{
			name: "invalid coupon discounts nothing",
			coupon: Coupon{
				DiscountType: CouponDiscountPercent, DiscountValue: 10,
				ValidFrom: now.Add(-time.Hour), IsActive: false,
			},
			amountCents: 4999,
			want:        0,
		},
		{
			name: "zero amount",
			coupon: Coupon{
				DiscountType: CouponDiscountPercent, DiscountValue: 10,
				ValidFrom: now.Add(-time.Hour), IsActive: true,
			},
			amountCents: 0,
			want:        0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.Discount(tt.amountCents, now))
		})
	}
}

func TestCouponWithUsageIncremented(t *testing.T) {
	c := Coupon{Code: "SAVE10", UsedCount: 3}
	next := c.WithUsageIncremented()

	assert.Equal(t, 4, next.UsedCount)
	assert.Equal(t, 3, c.UsedCount, "receiver must not be mutated")
}
