package reviews

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/enrollments"
	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/response"
)

// CreateReviewRequest is the body for POST /courses/:id/reviews.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

// UpdateReviewRequest is the body for PUT /reviews/:id.
type UpdateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

// Handler handles course review endpoints.
type Handler struct {
	repo           *Repository
	enrollmentRepo *enrollments.Repository
	logger         *zap.Logger
}

func NewHandler(repo *Repository, enrollmentRepo *enrollments.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, enrollmentRepo: enrollmentRepo, logger: logger}
}

// Create handles POST /courses/:id/reviews. Only active enrollees may review.
func (h *Handler) Create(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	active, err := h.enrollmentRepo.HasActive(c.Request.Context(), userID, courseID)
	if err != nil {
		response.Internal(c, "failed to check enrollment")
		return
	}
	if !active {
		response.Forbidden(c, "enroll in the course before reviewing it")
		return
	}

	review, err := models.NewReview(userID, courseID, req.Rating, req.Comment)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.repo.Create(c.Request.Context(), review); err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "you already reviewed this course")
			return
		}
		h.logger.Error("create review failed", zap.Error(err), zap.String("course_id", courseID.String()))
		response.Internal(c, "failed to create review")
		return
	}
	response.Created(c, review)
}

// List handles GET /courses/:id/reviews. Public.
func (h *Handler) List(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	list, err := h.repo.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to list reviews")
		return
	}
	summary, err := h.repo.SummaryByCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to summarize reviews")
		return
	}
	response.OK(c, gin.H{"summary": summary, "reviews": list})
}

// Update handles PUT /reviews/:id. Authors may edit their own review.
func (h *Handler) Update(c *gin.Context) {
	review, ok := h.ownedReview(c)
	if !ok {
		return
	}
	var req UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	updated, err := h.repo.Update(c.Request.Context(), review.ID, req.Rating, req.Comment)
	if err != nil {
		response.Internal(c, "failed to update review")
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /reviews/:id. Authors or admins may delete.
func (h *Handler) Delete(c *gin.Context) {
	review, ok := h.ownedReview(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), review.ID); err != nil {
		response.Internal(c, "failed to delete review")
		return
	}
	response.NoContent(c)
}

func (h *Handler) ownedReview(c *gin.Context) (*models.Review, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid review id")
		return nil, false
	}
	review, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "review not found")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	if review.UserID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "you can only modify your own review")
		return nil, false
	}
	return review, true
}
