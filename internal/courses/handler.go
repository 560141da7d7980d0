package courses

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/response"
)

// CreateRequest is the body for POST /instructor/courses.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents" binding:"min=0"`
	Currency    string `json:"currency"`
}

// ModuleRequest is the body for POST /instructor/courses/:id/modules.
type ModuleRequest struct {
	Title    string `json:"title" binding:"required"`
	Position int    `json:"position"`
}

// LessonRequest is the body for POST /instructor/modules/:id/lessons.
type LessonRequest struct {
	Title           string `json:"title" binding:"required"`
	DurationSeconds int    `json:"duration_seconds" binding:"min=0"`
	Position        int    `json:"position"`
	IsPreview       bool   `json:"is_preview"`
	PassingScore    *int   `json:"passing_score" binding:"omitempty,min=0,max=100"`
}

// QuestionRequest is the body for POST /instructor/lessons/:id/questions.
type QuestionRequest struct {
	Prompt        string `json:"prompt" binding:"required"`
	OptionA       string `json:"option_a" binding:"required"`
	OptionB       string `json:"option_b" binding:"required"`
	OptionC       string `json:"option_c" binding:"required"`
	OptionD       string `json:"option_d" binding:"required"`
	CorrectOption string `json:"correct_option" binding:"required,oneof=A B C D"`
	Position      int    `json:"position"`
}

// Handler handles course catalog and authoring endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a courses handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /courses (public catalog, published only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListPublished(c.Request.Context(), c.Query("category"))
	if err != nil {
		h.logger.Error("list courses failed", zap.Error(err))
		response.Internal(c, "failed to list courses")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /courses/:id with modules and lessons.
func (h *Handler) GetByID(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	co, err := h.repo.GetByID(c.Request.Context(), courseID)
	if err != nil {
		response.NotFound(c, "course not found")
		return
	}

	mods, err := h.repo.ListModules(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to load course content")
		return
	}
	type moduleOut struct {
		models.CourseModule
		Lessons []models.Lesson `json:"lessons"`
	}
	out := make([]moduleOut, 0, len(mods))
	for _, m := range mods {
		lessons, err := h.repo.ListLessonsByModule(c.Request.Context(), m.ID)
		if err != nil {
			response.Internal(c, "failed to load course content")
			return
		}
		out = append(out, moduleOut{CourseModule: m, Lessons: lessons})
	}
	response.OK(c, gin.H{"course": co, "modules": out})
}

// Create handles POST /instructor/courses.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	co := &models.Course{
		InstructorID: userID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		PriceCents:   req.PriceCents,
		Currency:     currency,
	}
	if err := h.repo.Create(c.Request.Context(), co); err != nil {
		h.logger.Error("create course failed", zap.Error(err))
		response.Internal(c, "failed to create course")
		return
	}
	response.Created(c, co)
}

// ListMine handles GET /instructor/courses.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByInstructor(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list courses")
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /instructor/courses/:id.
func (h *Handler) Update(c *gin.Context) {
	co, ok := h.ownedCourse(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	co.Title = req.Title
	co.Description = req.Description
	co.Category = req.Category
	co.PriceCents = req.PriceCents
	if req.Currency != "" {
		co.Currency = req.Currency
	}
	if err := h.repo.Update(c.Request.Context(), co); err != nil {
		h.logger.Error("update course failed", zap.Error(err))
		response.Internal(c, "failed to update course")
		return
	}
	response.OK(c, co)
}

// Publish handles POST /instructor/courses/:id/publish and /unpublish.
func (h *Handler) Publish(published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		co, ok := h.ownedCourse(c)
		if !ok {
			return
		}
		if err := h.repo.SetPublished(c.Request.Context(), co.ID, published); err != nil {
			response.Internal(c, "failed to update course")
			return
		}
		response.OK(c, gin.H{"id": co.ID, "is_published": published})
	}
}

// Delete handles DELETE /instructor/courses/:id.
func (h *Handler) Delete(c *gin.Context) {
	co, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), co.ID); err != nil {
		response.Internal(c, "failed to delete course")
		return
	}
	response.NoContent(c)
}

// CreateModule handles POST /instructor/courses/:id/modules.
func (h *Handler) CreateModule(c *gin.Context) {
	co, ok := h.ownedCourse(c)
	if !ok {
		return
	}
	var req ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m := &models.CourseModule{CourseID: co.ID, Title: req.Title, Position: req.Position}
	if err := h.repo.CreateModule(c.Request.Context(), m); err != nil {
		response.Internal(c, "failed to create module")
		return
	}
	response.Created(c, m)
}

// CreateLesson handles POST /instructor/modules/:id/lessons.
func (h *Handler) CreateLesson(c *gin.Context) {
	moduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid module id")
		return
	}
	courseID, err := h.repo.GetModuleCourseID(c.Request.Context(), moduleID)
	if err != nil {
		response.NotFound(c, "module not found")
		return
	}
	if !h.requireCourseOwner(c, courseID) {
		return
	}
	var req LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	l := &models.Lesson{
		ModuleID:        moduleID,
		Title:           req.Title,
		DurationSeconds: req.DurationSeconds,
		Position:        req.Position,
		IsPreview:       req.IsPreview,
		PassingScore:    req.PassingScore,
	}
	if err := h.repo.CreateLesson(c.Request.Context(), l); err != nil {
		h.logger.Error("create lesson failed", zap.Error(err))
		response.Internal(c, "failed to create lesson")
		return
	}
	response.Created(c, l)
}

// CreateQuestion handles POST /instructor/lessons/:id/questions.
func (h *Handler) CreateQuestion(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	if !h.requireLessonOwner(c, lessonID) {
		return
	}
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q := &models.QuizQuestion{
		LessonID:      lessonID,
		Prompt:        req.Prompt,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectOption: req.CorrectOption,
		Position:      req.Position,
	}
	if err := h.repo.CreateQuizQuestion(c.Request.Context(), q); err != nil {
		response.Internal(c, "failed to create question")
		return
	}
	response.Created(c, q)
}

// ownedCourse parses :id, loads the course and verifies the caller owns it
// (admins bypass the ownership check).
func (h *Handler) ownedCourse(c *gin.Context) (*models.Course, bool) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return nil, false
	}
	co, err := h.repo.GetByID(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "course not found")
		} else {
			response.Internal(c, "failed to load course")
		}
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	if co.InstructorID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not the course instructor")
		return nil, false
	}
	return co, true
}

func (h *Handler) requireLessonOwner(c *gin.Context, lessonID uuid.UUID) bool {
	courseID, err := h.repo.GetLessonCourseID(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return false
	}
	return h.requireCourseOwner(c, courseID)
}

func (h *Handler) requireCourseOwner(c *gin.Context, courseID uuid.UUID) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	if role == string(models.RoleAdmin) {
		return true
	}
	ok, err := h.repo.IsInstructorOf(c.Request.Context(), courseID, userID)
	if err != nil || !ok {
		response.Forbidden(c, "not the course instructor")
		return false
	}
	return true
}
