package payments

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/enrollments"
	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/pkg/payments"
	"github.com/coursebay/backend/pkg/response"
)

// CheckoutRequest is the body for POST /courses/:id/checkout.
type CheckoutRequest struct {
	CouponCode string `json:"coupon_code"`
}

// SubscribeRequest is the body for POST /courses/:id/subscribe.
type SubscribeRequest struct {
	PriceID string `json:"price_id" binding:"required"`
}

// Handler handles payment endpoints.
type Handler struct {
	service        *Service
	repo           *Repository
	enrollmentRepo *enrollments.Repository
	gateway        *payments.Client
	logger         *zap.Logger
}

func NewHandler(service *Service, repo *Repository, enrollmentRepo *enrollments.Repository, gateway *payments.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, enrollmentRepo: enrollmentRepo, gateway: gateway, logger: logger}
}

// Checkout handles POST /courses/:id/checkout.
func (h *Handler) Checkout(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	result, err := h.service.Checkout(c.Request.Context(), userID, courseID, req.CouponCode)
	if err != nil {
		h.respondCheckoutError(c, err, courseID)
		return
	}
	response.Created(c, result)
}

// Subscribe handles POST /courses/:id/subscribe.
func (h *Handler) Subscribe(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	result, err := h.service.Subscribe(c.Request.Context(), userID, courseID, req.PriceID)
	if err != nil {
		h.respondCheckoutError(c, err, courseID)
		return
	}
	response.Created(c, result)
}

func (h *Handler) respondCheckoutError(c *gin.Context, err error, courseID uuid.UUID) {
	switch {
	case errors.Is(err, ErrCourseNotFound):
		response.NotFound(c, "course not found")
	case errors.Is(err, ErrCourseNotPublished):
		response.BadRequest(c, "course is not published")
	case errors.Is(err, ErrFreeCourse):
		response.BadRequest(c, "course is free, use the enroll endpoint")
	case errors.Is(err, ErrAlreadyPurchased):
		response.Conflict(c, "course already purchased")
	case errors.Is(err, ErrCouponInvalid):
		response.BadRequest(c, "coupon is not valid for this course")
	case errors.Is(err, ErrGatewayUnavailable):
		response.ServiceUnavailable(c, "payments are temporarily unavailable")
	default:
		h.logger.Error("checkout failed", zap.Error(err), zap.String("course_id", courseID.String()))
		response.Internal(c, "checkout failed")
	}
}

// ListMine handles GET /me/payments.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list payments")
		return
	}
	response.OK(c, list)
}

// Refund handles POST /payments/:id/refund. Admin only (route-level).
func (h *Handler) Refund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment id")
		return
	}
	payment, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "payment not found")
		return
	}

	refunded, err := h.service.Refund(c.Request.Context(), payment)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			response.BadRequest(c, "only completed payments can be refunded")
			return
		}
		h.logger.Error("refund failed", zap.Error(err), zap.String("payment_id", id.String()))
		response.Internal(c, "refund failed")
		return
	}

	// Refunding revokes access.
	if enrollment, err := h.enrollmentRepo.GetByUserAndCourse(c.Request.Context(), payment.UserID, payment.CourseID); err == nil {
		if err := h.enrollmentRepo.Deactivate(c.Request.Context(), enrollment.ID); err != nil {
			h.logger.Error("deactivate enrollment after refund failed", zap.Error(err),
				zap.String("enrollment_id", enrollment.ID.String()))
		}
	}
	response.OK(c, refunded)
}

// ListCards handles GET /me/cards.
func (h *Handler) ListCards(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	local, err := h.repo.ListSavedCards(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list cards")
		return
	}
	response.OK(c, local)
}

// DeleteCard handles DELETE /me/cards/:id. Detaches at the gateway first.
func (h *Handler) DeleteCard(c *gin.Context) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid card id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	card, err := h.repo.GetSavedCard(c.Request.Context(), userID, cardID)
	if err != nil {
		response.NotFound(c, "card not found")
		return
	}
	if h.gateway != nil && h.gateway.Configured() {
		if err := h.gateway.DetachPaymentMethod(c.Request.Context(), card.ProviderPaymentMethodID); err != nil {
			h.logger.Warn("detach payment method failed", zap.Error(err), zap.String("card_id", cardID.String()))
		}
	}
	if err := h.repo.DeleteSavedCard(c.Request.Context(), userID, cardID); err != nil {
		response.Internal(c, "failed to delete card")
		return
	}
	response.NoContent(c)
}
