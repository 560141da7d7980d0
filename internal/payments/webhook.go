package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/email"
	gateway "github.com/coursebay/backend/pkg/payments"
	"github.com/coursebay/backend/pkg/queue"
	"github.com/coursebay/backend/pkg/response"
)

// maxWebhookBody bounds the request body read for webhook events.
const maxWebhookBody = 1 << 20

// CouponRedeemer consumes a coupon use and records it.
type CouponRedeemer interface {
	Redeem(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	CreateUsage(ctx context.Context, usage *models.CouponUsage) error
}

// ReceiptSource loads what the receipt email needs.
type ReceiptSource interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetCourseTitle(ctx context.Context, id uuid.UUID) (string, error)
}

// WebhookHandler processes gateway webhook events.
type WebhookHandler struct {
	gateway     *gateway.Client
	repo        *Repository
	coupons     CouponRedeemer
	enrollments EnrollmentGranter
	receipts    ReceiptSource
	jobQueue    *queue.Queue
	frontendURL string
	logger      *zap.Logger
}

func NewWebhookHandler(gw *gateway.Client, repo *Repository, coupons CouponRedeemer, enrollments EnrollmentGranter, receipts ReceiptSource, jobQueue *queue.Queue, frontendURL string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		gateway:     gw,
		repo:        repo,
		coupons:     coupons,
		enrollments: enrollments,
		receipts:    receipts,
		jobQueue:    jobQueue,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Handle processes POST /webhooks/stripe. The raw body is needed for
// signature verification, so this route bypasses JSON binding.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	event, err := h.gateway.ParseEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.logger.Warn("webhook signature verification failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		response.BadRequest(c, "invalid event payload")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = h.handleIntentResult(c.Request.Context(), event, models.PaymentStatusCompleted)
	case "payment_intent.payment_failed":
		err = h.handleIntentResult(c.Request.Context(), event, models.PaymentStatusFailed)
	case "invoice.payment_succeeded", "invoice.paid":
		err = h.handleInvoiceResult(c.Request.Context(), event, models.PaymentStatusCompleted)
	case "invoice.payment_failed":
		err = h.handleInvoiceResult(c.Request.Context(), event, models.PaymentStatusFailed)
	case "payment_method.attached":
		err = h.handlePaymentMethodAttached(c.Request.Context(), event)
	default:
		h.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
	}
	if err != nil {
		// Out-of-order or replayed events are acknowledged so the gateway
		// stops retrying them.
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			h.logger.Warn("webhook event ignored", zap.String("type", event.Type), zap.Error(err))
			response.OK(c, gin.H{"received": true})
			return
		}
		h.logger.Error("webhook processing failed", zap.String("type", event.Type), zap.Error(err))
		response.Internal(c, "failed to process event")
		return
	}
	response.OK(c, gin.H{"received": true})
}

func (h *WebhookHandler) handleIntentResult(ctx context.Context, event *gateway.Event, status string) error {
	var intent gateway.PaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return fmt.Errorf("decode payment intent: %w", err)
	}
	return h.settle(ctx, intent.ID, status)
}

// handleInvoiceResult settles subscription payments. Their rows store the
// subscription id as provider_payment_id, which is what the invoice carries.
func (h *WebhookHandler) handleInvoiceResult(ctx context.Context, event *gateway.Event, status string) error {
	var inv gateway.Invoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	if inv.Subscription == "" {
		h.logger.Debug("invoice without subscription ignored", zap.String("invoice_id", inv.ID))
		return nil
	}
	return h.settle(ctx, inv.Subscription, status)
}

func (h *WebhookHandler) settle(ctx context.Context, providerPaymentID, status string) error {
	payment, err := h.repo.GetByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	updated, err := h.repo.UpdateStatus(ctx, payment.ID, status)
	if err != nil {
		return err
	}
	if status != models.PaymentStatusCompleted {
		return nil
	}

	if updated.CouponID != nil {
		if _, err := h.coupons.Redeem(ctx, *updated.CouponID); err != nil {
			h.logger.Warn("coupon redeem on completed payment failed", zap.Error(err),
				zap.String("coupon_id", updated.CouponID.String()))
		} else if err := h.coupons.CreateUsage(ctx, &models.CouponUsage{
			CouponID:      *updated.CouponID,
			UserID:        updated.UserID,
			PaymentID:     updated.ID,
			DiscountCents: updated.DiscountCents,
		}); err != nil {
			h.logger.Warn("record coupon usage failed", zap.Error(err))
		}
	}

	if _, err := h.enrollments.Grant(ctx, updated.UserID, updated.CourseID); err != nil {
		return fmt.Errorf("grant enrollment: %w", err)
	}

	h.enqueueReceipt(ctx, updated)
	return nil
}

func (h *WebhookHandler) enqueueReceipt(ctx context.Context, payment *models.Payment) {
	if h.jobQueue == nil || h.receipts == nil {
		return
	}
	user, err := h.receipts.GetUserByID(ctx, payment.UserID)
	if err != nil {
		h.logger.Warn("receipt recipient lookup failed", zap.Error(err))
		return
	}
	title, err := h.receipts.GetCourseTitle(ctx, payment.CourseID)
	if err != nil {
		title = "your course"
	}
	courseURL := fmt.Sprintf("%s/courses/%s", h.frontendURL, payment.CourseID)
	if err := h.jobQueue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      "receipt",
		UserID:         user.ID,
		RecipientEmail: user.Email,
		Subject:        "Your purchase receipt",
		BodyHTML:       email.ReceiptBody(title, payment.AmountCents, payment.Currency, courseURL),
	}); err != nil {
		h.logger.Warn("enqueue receipt email failed", zap.Error(err))
	}
}

func (h *WebhookHandler) handlePaymentMethodAttached(ctx context.Context, event *gateway.Event) error {
	var pm gateway.PaymentMethod
	if err := json.Unmarshal(event.Data.Object, &pm); err != nil {
		return fmt.Errorf("decode payment method: %w", err)
	}
	userID, err := h.userForCustomer(ctx, pm.Customer)
	if err != nil {
		h.logger.Debug("payment method for unknown customer", zap.String("customer", pm.Customer))
		return nil
	}
	return h.repo.UpsertSavedCard(ctx, &models.SavedCard{
		UserID:                  userID,
		ProviderPaymentMethodID: pm.ID,
		Brand:                   pm.Card.Brand,
		Last4:                   pm.Card.Last4,
		ExpMonth:                pm.Card.ExpMonth,
		ExpYear:                 pm.Card.ExpYear,
	})
}

func (h *WebhookHandler) userForCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	const q = `SELECT id FROM users WHERE stripe_customer_id = $1`
	var id uuid.UUID
	if err := h.repo.pool.QueryRow(ctx, q, customerID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
