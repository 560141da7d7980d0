package coupons

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/courses"
	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/response"
)

// CreateCouponRequest is the body for POST /instructor/coupons.
type CreateCouponRequest struct {
	Code          string     `json:"code" binding:"required,min=3,max=32"`
	DiscountType  string     `json:"discount_type" binding:"required,oneof=percent fixed"`
	DiscountValue int64      `json:"discount_value" binding:"required,min=1"`
	CourseID      *uuid.UUID `json:"course_id"`
	MaxUses       *int       `json:"max_uses" binding:"omitempty,min=1"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
}

// ValidateCouponRequest is the body for POST /coupons/validate.
type ValidateCouponRequest struct {
	Code     string    `json:"code" binding:"required"`
	CourseID uuid.UUID `json:"course_id" binding:"required"`
}

// Handler handles coupon endpoints.
type Handler struct {
	repo       *Repository
	courseRepo *courses.Repository
	logger     *zap.Logger
}

func NewHandler(repo *Repository, courseRepo *courses.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, courseRepo: courseRepo, logger: logger}
}

// Create handles POST /instructor/coupons. A course-scoped coupon must point
// at a course the caller owns; a nil course means platform-wide (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.DiscountType == models.CouponDiscountPercent && req.DiscountValue > 100 {
		response.BadRequest(c, "percent discount cannot exceed 100")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	if req.CourseID == nil {
		if role != string(models.RoleAdmin) {
			response.Forbidden(c, "platform-wide coupons require admin")
			return
		}
	} else if role != string(models.RoleAdmin) {
		owns, err := h.courseRepo.IsInstructorOf(c.Request.Context(), *req.CourseID, userID)
		if err != nil || !owns {
			response.Forbidden(c, "you can only create coupons for your own courses")
			return
		}
	}

	coupon := &models.Coupon{
		CourseID:      req.CourseID,
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		ValidUntil:    req.ValidUntil,
		IsActive:      true,
		CreatedBy:     userID,
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if err := h.repo.Create(c.Request.Context(), coupon); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			response.Conflict(c, "coupon code already exists")
			return
		}
		h.logger.Error("create coupon failed", zap.Error(err), zap.String("code", req.Code))
		response.Internal(c, "failed to create coupon")
		return
	}
	response.Created(c, coupon)
}

// ListMine handles GET /instructor/coupons.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list coupons")
		return
	}
	response.OK(c, list)
}

// SetActive handles PATCH /instructor/coupons/:id.
func (h *Handler) SetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return
	}
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.repo.SetActive(c.Request.Context(), id, userID, *req.IsActive); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "coupon not found")
			return
		}
		response.Internal(c, "failed to update coupon")
		return
	}
	response.OK(c, gin.H{"id": id, "is_active": *req.IsActive})
}

// Delete handles DELETE /instructor/coupons/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.repo.Delete(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "coupon not found")
			return
		}
		response.Internal(c, "failed to delete coupon")
		return
	}
	response.NoContent(c)
}

// Usages handles GET /instructor/coupons/:id/usages.
func (h *Handler) Usages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return
	}
	coupon, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "coupon not found")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	if coupon.CreatedBy != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not your coupon")
		return
	}
	list, err := h.repo.ListUsages(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list usages")
		return
	}
	response.OK(c, list)
}

// Validate handles POST /coupons/validate. It previews the discount without
// consuming a use.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	coupon, err := h.repo.GetByCode(c.Request.Context(), req.Code)
	if err != nil {
		response.NotFound(c, "coupon not found")
		return
	}
	course, err := h.courseRepo.GetByID(c.Request.Context(), req.CourseID)
	if err != nil {
		response.NotFound(c, "course not found")
		return
	}

	now := time.Now()
	if !coupon.IsValid(now) || !coupon.AppliesTo(course.ID) {
		response.BadRequest(c, "coupon is not valid for this course")
		return
	}
	discount := coupon.Discount(course.PriceCents, now)
	response.OK(c, gin.H{
		"code":           coupon.Code,
		"discount_type":  coupon.DiscountType,
		"discount_cents": discount,
		"total_cents":    course.PriceCents - discount,
	})
}
