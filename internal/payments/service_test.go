package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebay/backend/internal/models"
	gateway "github.com/coursebay/backend/pkg/payments"
)

// mockPaymentStore is a mock implementation of PaymentStore.
type mockPaymentStore struct {
	createFn       func(ctx context.Context, p *models.Payment) error
	hasCompletedFn func(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	updateStatusFn func(ctx context.Context, id uuid.UUID, next string) (*models.Payment, error)
}

func (m *mockPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	p.ID = uuid.New()
	return nil
}

func (m *mockPaymentStore) HasCompletedByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	if m.hasCompletedFn != nil {
		return m.hasCompletedFn(ctx, userID, courseID)
	}
	return false, nil
}

func (m *mockPaymentStore) UpdateStatus(ctx context.Context, id uuid.UUID, next string) (*models.Payment, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, next)
	}
	return &models.Payment{ID: id, Status: next}, nil
}

// mockCouponStore is a mock implementation of CouponStore.
type mockCouponStore struct {
	getByCodeFn func(ctx context.Context, code string) (*models.Coupon, error)
	redeemFn    func(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	redeemCalls int
	usages      []models.CouponUsage
}

func (m *mockCouponStore) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if m.getByCodeFn != nil {
		return m.getByCodeFn(ctx, code)
	}
	return nil, ErrNotFound
}

func (m *mockCouponStore) Redeem(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	m.redeemCalls++
	if m.redeemFn != nil {
		return m.redeemFn(ctx, id)
	}
	return &models.Coupon{ID: id, UsedCount: 1}, nil
}

func (m *mockCouponStore) CreateUsage(ctx context.Context, usage *models.CouponUsage) error {
	m.usages = append(m.usages, *usage)
	return nil
}

// mockUserStore is a mock implementation of UserStore.
type mockUserStore struct {
	user          *models.User
	setCustomerFn func(ctx context.Context, id uuid.UUID, customerID string) error
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.user != nil {
		return m.user, nil
	}
	return &models.User{ID: id, Email: "learner@example.com", FullName: "Learner"}, nil
}

func (m *mockUserStore) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	if m.setCustomerFn != nil {
		return m.setCustomerFn(ctx, id, customerID)
	}
	return nil
}

// mockCourseGetter is a mock implementation of CourseGetter.
type mockCourseGetter struct {
	course *models.Course
	err    error
}

func (m *mockCourseGetter) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.course != nil {
		return m.course, nil
	}
	return &models.Course{ID: id, IsPublished: true, PriceCents: 4999, Currency: "usd"}, nil
}

// mockGranter is a mock implementation of EnrollmentGranter.
type mockGranter struct {
	grantFn func(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
}

func (m *mockGranter) Grant(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	if m.grantFn != nil {
		return m.grantFn(ctx, userID, courseID)
	}
	return &models.Enrollment{UserID: userID, CourseID: courseID, IsActive: true}, nil
}

// mockGateway is a mock implementation of Gateway.
type mockGateway struct {
	configured           bool
	createCustomerCalls  int
	createIntentCalls    int
	createRefundCalls    int
	cancelSubCalls       int
	cancelledSubID       string
	createCustomerFn     func(ctx context.Context, email, name string, metadata map[string]string) (*gateway.Customer, error)
	createIntentFn       func(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error)
	createSubscriptionFn func(ctx context.Context, customerID, priceID string, metadata map[string]string) (*gateway.Subscription, error)
	createRefundFn       func(ctx context.Context, paymentIntentID string) (*gateway.Refund, error)
}

func (m *mockGateway) Configured() bool { return m.configured }

func (m *mockGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*gateway.Customer, error) {
	m.createCustomerCalls++
	if m.createCustomerFn != nil {
		return m.createCustomerFn(ctx, email, name, metadata)
	}
	return &gateway.Customer{ID: "cus_test"}, nil
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	m.createIntentCalls++
	if m.createIntentFn != nil {
		return m.createIntentFn(ctx, customerID, amountCents, currency, metadata)
	}
	return &gateway.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret", Amount: amountCents}, nil
}

func (m *mockGateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*gateway.Subscription, error) {
	if m.createSubscriptionFn != nil {
		return m.createSubscriptionFn(ctx, customerID, priceID, metadata)
	}
	return &gateway.Subscription{ID: "sub_test"}, nil
}

func (m *mockGateway) CancelSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	m.cancelSubCalls++
	m.cancelledSubID = subscriptionID
	return &gateway.Subscription{ID: subscriptionID, Status: "canceled"}, nil
}

func (m *mockGateway) CreateRefund(ctx context.Context, paymentIntentID string) (*gateway.Refund, error) {
	m.createRefundCalls++
	if m.createRefundFn != nil {
		return m.createRefundFn(ctx, paymentIntentID)
	}
	return &gateway.Refund{ID: "re_test", PaymentIntent: paymentIntentID}, nil
}

func newTestService(store *mockPaymentStore, coupons *mockCouponStore, courses *mockCourseGetter, gw *mockGateway) *Service {
	return NewService(store, coupons, &mockUserStore{}, courses, &mockGranter{}, gw)
}

func intPtr(i int) *int { return &i }

func TestCheckoutCreatesPendingPayment(t *testing.T) {
	store := &mockPaymentStore{}
	gw := &mockGateway{configured: true}

	svc := newTestService(store, &mockCouponStore{}, &mockCourseGetter{}, gw)
	result, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), "")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, int64(4999), result.Payment.AmountCents)
	assert.Equal(t, "pi_test", result.Payment.ProviderPaymentID)
	assert.Equal(t, "pi_test_secret", result.ClientSecret)
	assert.Equal(t, 1, gw.createIntentCalls)
}

func TestCheckoutDuplicatePurchaseNeverReachesGateway(t *testing.T) {
	store := &mockPaymentStore{
		hasCompletedFn: func(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
			return true, nil
		},
	}
	gw := &mockGateway{configured: true}

	svc := newTestService(store, &mockCouponStore{}, &mockCourseGetter{}, gw)
	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), "")

	assert.ErrorIs(t, err, ErrAlreadyPurchased)
	assert.Zero(t, gw.createCustomerCalls, "gateway must not be touched for a duplicate purchase")
	assert.Zero(t, gw.createIntentCalls)
}

func TestCheckoutInvalidCouponNeverReachesGateway(t *testing.T) {
	gw := &mockGateway{configured: true}

	svc := newTestService(&mockPaymentStore{}, &mockCouponStore{}, &mockCourseGetter{}, gw)
	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), "NOPE")

	assert.ErrorIs(t, err, ErrCouponInvalid)
	assert.Zero(t, gw.createCustomerCalls)
	assert.Zero(t, gw.createIntentCalls)
}

func TestCheckoutAppliesCouponDiscount(t *testing.T) {
	courseID := uuid.New()
	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          "SAVE10",
		DiscountType:  models.CouponDiscountPercent,
		DiscountValue: 10,
		ValidFrom:     time.Now().Add(-time.Hour),
		IsActive:      true,
	}
	coupons := &mockCouponStore{
		getByCodeFn: func(ctx context.Context, code string) (*models.Coupon, error) {
			return coupon, nil
		},
	}
	courses := &mockCourseGetter{course: &models.Course{ID: courseID, IsPublished: true, PriceCents: 4999, Currency: "usd"}}
	gw := &mockGateway{configured: true}

	svc := newTestService(&mockPaymentStore{}, coupons, courses, gw)
	result, err := svc.Checkout(context.Background(), uuid.New(), courseID, "SAVE10")

	require.NoError(t, err)
	assert.Equal(t, int64(4499), result.Payment.AmountCents)
	assert.Equal(t, int64(500), result.Payment.DiscountCents)
	require.NotNil(t, result.Payment.CouponID)
	assert.Equal(t, coupon.ID, *result.Payment.CouponID)
}

func TestCheckoutFullDiscountSkipsGateway(t *testing.T) {
	courseID := uuid.New()
	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          "FREEBIE",
		DiscountType:  models.CouponDiscountPercent,
		DiscountValue: 100,
		ValidFrom:     time.Now().Add(-time.Hour),
		IsActive:      true,
	}
	coupons := &mockCouponStore{
		getByCodeFn: func(ctx context.Context, code string) (*models.Coupon, error) {
			return coupon, nil
		},
	}
	granted := false
	granter := &mockGranter{
		grantFn: func(ctx context.Context, userID, cID uuid.UUID) (*models.Enrollment, error) {
			granted = true
			return &models.Enrollment{UserID: userID, CourseID: cID, IsActive: true}, nil
		},
	}
	gw := &mockGateway{configured: false} // gateway down must not matter

	svc := NewService(&mockPaymentStore{}, coupons, &mockUserStore{}, &mockCourseGetter{
		course: &models.Course{ID: courseID, IsPublished: true, PriceCents: 4999, Currency: "usd"},
	}, granter, gw)
	result, err := svc.Checkout(context.Background(), uuid.New(), courseID, "FREEBIE")

	require.NoError(t, err)
	assert.True(t, result.FreeCompletion)
	assert.Equal(t, models.PaymentStatusCompleted, result.Payment.Status)
	assert.True(t, granted)
	assert.Zero(t, gw.createIntentCalls)
}

func TestCheckoutFullDiscountConsumesCouponUse(t *testing.T) {
	courseID := uuid.New()
	couponID := uuid.New()
	remaining := 1
	coupons := &mockCouponStore{
		// Every resolution sees a still-valid snapshot, as a concurrent
		// checkout would; only the conditional redeem enforces the limit.
		getByCodeFn: func(ctx context.Context, code string) (*models.Coupon, error) {
			return &models.Coupon{
				ID:            couponID,
				Code:          "FREEBIE",
				DiscountType:  models.CouponDiscountPercent,
				DiscountValue: 100,
				MaxUses:       intPtr(1),
				ValidFrom:     time.Now().Add(-time.Hour),
				IsActive:      true,
			}, nil
		},
		redeemFn: func(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
			if remaining == 0 {
				return nil, errors.New("coupon usage limit reached")
			}
			remaining--
			return &models.Coupon{ID: id, UsedCount: 1}, nil
		},
	}
	courses := &mockCourseGetter{course: &models.Course{ID: courseID, IsPublished: true, PriceCents: 4999, Currency: "usd"}}

	svc := newTestService(&mockPaymentStore{}, coupons, courses, &mockGateway{})

	first, err := svc.Checkout(context.Background(), uuid.New(), courseID, "FREEBIE")
	require.NoError(t, err)
	assert.True(t, first.FreeCompletion)
	require.Len(t, coupons.usages, 1)
	assert.Equal(t, couponID, coupons.usages[0].CouponID)
	assert.Equal(t, int64(4999), coupons.usages[0].DiscountCents)

	// The single use is spent; a second learner cannot redeem it.
	_, err = svc.Checkout(context.Background(), uuid.New(), courseID, "FREEBIE")
	assert.ErrorIs(t, err, ErrCouponInvalid)
	assert.Len(t, coupons.usages, 1)
	assert.Equal(t, 2, coupons.redeemCalls)
}

func TestCheckoutFreeCourseRejected(t *testing.T) {
	courses := &mockCourseGetter{course: &models.Course{ID: uuid.New(), IsPublished: true, PriceCents: 0}}
	svc := newTestService(&mockPaymentStore{}, &mockCouponStore{}, courses, &mockGateway{configured: true})

	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrFreeCourse)
}

func TestCheckoutReusesStripeCustomer(t *testing.T) {
	users := &mockUserStore{user: &models.User{ID: uuid.New(), Email: "learner@example.com", StripeCustomerID: "cus_existing"}}
	gw := &mockGateway{configured: true}

	svc := NewService(&mockPaymentStore{}, &mockCouponStore{}, users, &mockCourseGetter{}, &mockGranter{}, gw)
	_, err := svc.Checkout(context.Background(), uuid.New(), uuid.New(), "")

	require.NoError(t, err)
	assert.Zero(t, gw.createCustomerCalls, "existing customer id must be reused")
}

func TestRefundOnlyCompletedPayments(t *testing.T) {
	gw := &mockGateway{configured: true}
	svc := newTestService(&mockPaymentStore{}, &mockCouponStore{}, &mockCourseGetter{}, gw)

	_, err := svc.Refund(context.Background(), &models.Payment{Status: models.PaymentStatusPending, AmountCents: 4999})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	refunded, err := svc.Refund(context.Background(), &models.Payment{
		ID: uuid.New(), Status: models.PaymentStatusCompleted, AmountCents: 4999, ProviderPaymentID: "pi_test",
		PaymentType: models.PaymentTypeOneTime,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 1, gw.createRefundCalls)
	assert.Zero(t, gw.cancelSubCalls)
}

func TestRefundSubscriptionCancelsInsteadOfRefunding(t *testing.T) {
	gw := &mockGateway{configured: true}
	svc := newTestService(&mockPaymentStore{}, &mockCouponStore{}, &mockCourseGetter{}, gw)

	refunded, err := svc.Refund(context.Background(), &models.Payment{
		ID: uuid.New(), Status: models.PaymentStatusCompleted, AmountCents: 1999, ProviderPaymentID: "sub_123",
		PaymentType: models.PaymentTypeSubscription,
	})

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 1, gw.cancelSubCalls)
	assert.Equal(t, "sub_123", gw.cancelledSubID)
	assert.Zero(t, gw.createRefundCalls, "a subscription id must never be sent to the refunds endpoint")
}
