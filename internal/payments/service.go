package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/payments"
)

var (
	ErrCourseNotFound     = errors.New("course not found")
	ErrCourseNotPublished = errors.New("course is not published")
	ErrAlreadyPurchased   = errors.New("course already purchased")
	ErrFreeCourse         = errors.New("course is free, enroll directly")
	ErrCouponInvalid      = errors.New("coupon is not valid for this course")
	ErrGatewayUnavailable = errors.New("payment gateway is not configured")
)

// PaymentStore is the persistence the checkout service needs.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	HasCompletedByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next string) (*models.Payment, error)
}

// CouponStore resolves and redeems coupon codes.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	Redeem(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	CreateUsage(ctx context.Context, usage *models.CouponUsage) error
}

// UserStore loads users and persists their gateway customer id.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

// CourseGetter loads courses.
type CourseGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// EnrollmentGranter creates or reactivates an enrollment after payment.
type EnrollmentGranter interface {
	Grant(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
}

// Gateway is the slice of the Stripe client checkout uses.
type Gateway interface {
	Configured() bool
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*payments.Customer, error)
	CreatePaymentIntent(ctx context.Context, customerID string, amountCents int64, currency string, metadata map[string]string) (*payments.PaymentIntent, error)
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*payments.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*payments.Subscription, error)
	CreateRefund(ctx context.Context, paymentIntentID string) (*payments.Refund, error)
}

// CheckoutResult is what the checkout endpoints return to the client.
type CheckoutResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
	// FreeCompletion is true when the discount covered the full price and
	// no gateway interaction was needed.
	FreeCompletion bool `json:"free_completion,omitempty"`
}

// Service implements checkout, subscription and refund flows.
type Service struct {
	store       PaymentStore
	coupons     CouponStore
	users       UserStore
	courses     CourseGetter
	enrollments EnrollmentGranter
	gateway     Gateway
	now         func() time.Time
}

func NewService(store PaymentStore, coupons CouponStore, users UserStore, courses CourseGetter, enrollments EnrollmentGranter, gateway Gateway) *Service {
	return &Service{
		store:       store,
		coupons:     coupons,
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		gateway:     gateway,
		now:         time.Now,
	}
}

// Checkout starts a one-time purchase. The duplicate-purchase check runs
// before any gateway call so a failing gateway can never be reached for a
// course the user already owns. Gateway calls are not retried.
func (s *Service) Checkout(ctx context.Context, userID, courseID uuid.UUID, couponCode string) (*CheckoutResult, error) {
	user, course, err := s.guards(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	// Coupon resolution happens before touching the gateway too; an invalid
	// code should not create a dangling customer.
	coupon, discount, err := s.resolveCoupon(ctx, couponCode, course)
	if err != nil {
		return nil, err
	}
	total := course.PriceCents - discount

	payment := &models.Payment{
		UserID:        userID,
		CourseID:      courseID,
		Provider:      models.PaymentProviderStripe,
		AmountCents:   total,
		DiscountCents: discount,
		Currency:      course.Currency,
		Status:        models.PaymentStatusPending,
		PaymentType:   models.PaymentTypeOneTime,
	}
	if coupon != nil {
		payment.CouponID = &coupon.ID
	}

	// A 100% discount completes without the gateway. The coupon is consumed
	// up front: a concurrent redemption losing the conditional update must
	// fail the checkout, not hand out one enrollment too many.
	if total <= 0 {
		if _, err := s.coupons.Redeem(ctx, coupon.ID); err != nil {
			return nil, ErrCouponInvalid
		}
		payment.AmountCents = 0
		if err := s.store.Create(ctx, payment); err != nil {
			return nil, err
		}
		completed, err := s.store.UpdateStatus(ctx, payment.ID, models.PaymentStatusCompleted)
		if err != nil {
			return nil, err
		}
		if err := s.coupons.CreateUsage(ctx, &models.CouponUsage{
			CouponID:      coupon.ID,
			UserID:        userID,
			PaymentID:     completed.ID,
			DiscountCents: discount,
		}); err != nil {
			return nil, err
		}
		if _, err := s.enrollments.Grant(ctx, userID, courseID); err != nil {
			return nil, err
		}
		return &CheckoutResult{Payment: completed, FreeCompletion: true}, nil
	}

	if !s.gateway.Configured() {
		return nil, ErrGatewayUnavailable
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}
	payment.ProviderCustomerID = customerID

	intent, err := s.gateway.CreatePaymentIntent(ctx, customerID, total, course.Currency, map[string]string{
		"user_id":      userID.String(),
		"course_id":    courseID.String(),
		"payment_type": models.PaymentTypeOneTime,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	payment.ProviderPaymentID = intent.ID

	if err := s.store.Create(ctx, payment); err != nil {
		return nil, err
	}
	return &CheckoutResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// Subscribe starts a recurring purchase for courses that carry a gateway
// price id in their metadata.
func (s *Service) Subscribe(ctx context.Context, userID, courseID uuid.UUID, priceID string) (*CheckoutResult, error) {
	user, course, err := s.guards(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !s.gateway.Configured() {
		return nil, ErrGatewayUnavailable
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	sub, err := s.gateway.CreateSubscription(ctx, customerID, priceID, map[string]string{
		"user_id":      userID.String(),
		"course_id":    courseID.String(),
		"payment_type": models.PaymentTypeSubscription,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	payment := &models.Payment{
		UserID:             userID,
		CourseID:           courseID,
		Provider:           models.PaymentProviderStripe,
		ProviderPaymentID:  sub.ID,
		ProviderCustomerID: customerID,
		AmountCents:        course.PriceCents,
		Currency:           course.Currency,
		Status:             models.PaymentStatusPending,
		PaymentType:        models.PaymentTypeSubscription,
	}
	if err := s.store.Create(ctx, payment); err != nil {
		return nil, err
	}
	return &CheckoutResult{Payment: payment}, nil
}

// Refund refunds a completed payment at the gateway and deactivates the
// enrollment. Subscriptions are cancelled instead of refunded: their
// provider id is a subscription, not a payment intent, and Stripe rejects
// it on the refunds endpoint.
func (s *Service) Refund(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if !payment.CanTransitionTo(models.PaymentStatusRefunded) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, payment.Status, models.PaymentStatusRefunded)
	}
	if payment.AmountCents > 0 {
		if !s.gateway.Configured() {
			return nil, ErrGatewayUnavailable
		}
		if payment.PaymentType == models.PaymentTypeSubscription {
			if _, err := s.gateway.CancelSubscription(ctx, payment.ProviderPaymentID); err != nil {
				return nil, fmt.Errorf("gateway cancel subscription: %w", err)
			}
		} else if _, err := s.gateway.CreateRefund(ctx, payment.ProviderPaymentID); err != nil {
			return nil, fmt.Errorf("gateway refund: %w", err)
		}
	}
	return s.store.UpdateStatus(ctx, payment.ID, models.PaymentStatusRefunded)
}

func (s *Service) guards(ctx context.Context, userID, courseID uuid.UUID) (*models.User, *models.Course, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, nil, ErrCourseNotFound
	}
	if !course.IsPublished {
		return nil, nil, ErrCourseNotPublished
	}
	if course.IsFree() {
		return nil, nil, ErrFreeCourse
	}
	purchased, err := s.store.HasCompletedByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, nil, err
	}
	if purchased {
		return nil, nil, ErrAlreadyPurchased
	}
	return user, course, nil
}

func (s *Service) resolveCoupon(ctx context.Context, code string, course *models.Course) (*models.Coupon, int64, error) {
	if code == "" {
		return nil, 0, nil
	}
	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, 0, ErrCouponInvalid
	}
	now := s.now()
	if !coupon.IsValid(now) || !coupon.AppliesTo(course.ID) {
		return nil, 0, ErrCouponInvalid
	}
	return coupon, coupon.Discount(course.PriceCents, now), nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customer, err := s.gateway.CreateCustomer(ctx, user.Email, user.FullName, map[string]string{
		"user_id": user.ID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}
