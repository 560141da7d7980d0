package enrollments

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/pkg/response"
)

// Handler handles enrollment HTTP endpoints.
type Handler struct {
	svc    *Service
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an enrollments handler.
func NewHandler(svc *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, repo: repo, logger: logger}
}

// Enroll handles POST /courses/:id/enroll (free courses only).
func (h *Handler) Enroll(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	e, err := h.svc.Enroll(c.Request.Context(), userID, courseID)
	if err != nil {
		switch {
		case errors.Is(err, ErrCourseNotFound):
			response.NotFound(c, "course not found")
		case errors.Is(err, ErrCourseNotPublished):
			response.BadRequest(c, "course is not published")
		case errors.Is(err, ErrPaymentRequired):
			response.BadRequest(c, "course requires purchase")
		case errors.Is(err, ErrAlreadyEnrolled):
			response.Conflict(c, "already enrolled")
		default:
			h.logger.Error("enroll failed", zap.Error(err), zap.String("course_id", courseID.String()))
			response.Internal(c, "failed to enroll")
		}
		return
	}
	response.Created(c, e)
}

// ListMine handles GET /me/enrollments.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list enrollments")
		return
	}
	response.OK(c, list)
}
