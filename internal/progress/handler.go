package progress

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/courses"
	"github.com/coursebay/backend/internal/enrollments"
	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/internal/realtime"
	"github.com/coursebay/backend/pkg/response"
)

// WatchRequest is the body for POST /lessons/:id/progress.
type WatchRequest struct {
	WatchTimeSeconds int `json:"watch_time_seconds" binding:"min=0"`
}

// QuizSubmitRequest is the body for POST /lessons/:id/quiz/submit.
type QuizSubmitRequest struct {
	Answers map[string]string `json:"answers" binding:"required"` // question id -> selected option
}

// watchCompletionRatio marks a lesson completed once this share of its
// duration has been watched.
const watchCompletionRatio = 0.9

// Handler handles lesson progress and quiz endpoints.
type Handler struct {
	repo           *Repository
	courseRepo     *courses.Repository
	enrollmentRepo *enrollments.Repository
	hub            *realtime.Hub
	logger         *zap.Logger
}

// NewHandler creates a progress handler.
func NewHandler(repo *Repository, courseRepo *courses.Repository, enrollmentRepo *enrollments.Repository, hub *realtime.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, courseRepo: courseRepo, enrollmentRepo: enrollmentRepo, hub: hub, logger: logger}
}

// enrollmentForLesson resolves the caller's active enrollment in the course
// that owns the lesson. Progress is always scoped to that course's
// enrollment, never to whatever enrollment happens to exist first.
func (h *Handler) enrollmentForLesson(c *gin.Context, lessonID uuid.UUID) (*models.Enrollment, *models.Lesson, bool) {
	lesson, err := h.courseRepo.GetLesson(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return nil, nil, false
	}
	courseID, err := h.courseRepo.GetLessonCourseID(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return nil, nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	enrollment, err := h.enrollmentRepo.GetByUserAndCourse(c.Request.Context(), userID, courseID)
	if err != nil || !enrollment.IsActive {
		response.Forbidden(c, "not enrolled in this course")
		return nil, nil, false
	}
	return enrollment, lesson, true
}

// RecordWatchTime handles POST /lessons/:id/progress.
func (h *Handler) RecordWatchTime(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	enrollment, lesson, ok := h.enrollmentForLesson(c, lessonID)
	if !ok {
		return
	}

	p, err := h.repo.UpsertWatchTime(c.Request.Context(), enrollment.ID, lessonID, req.WatchTimeSeconds)
	if err != nil {
		h.logger.Error("upsert watch time failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
		response.Internal(c, "failed to record progress")
		return
	}

	h.hub.BroadcastToLessonAndPublish(lessonID, realtime.EventVideoProgress, gin.H{
		"user_id":            enrollment.UserID,
		"lesson_id":          lessonID,
		"watch_time_seconds": p.WatchTimeSeconds,
	})

	// Watching near the full duration counts as completing the lesson.
	if !p.IsCompleted && lesson.DurationSeconds > 0 &&
		float64(p.WatchTimeSeconds) >= float64(lesson.DurationSeconds)*watchCompletionRatio {
		h.completeAndBroadcast(c, enrollment, lessonID)
		return
	}
	response.OK(c, p)
}

// Complete handles POST /lessons/:id/complete.
func (h *Handler) Complete(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	enrollment, _, ok := h.enrollmentForLesson(c, lessonID)
	if !ok {
		return
	}
	h.completeAndBroadcast(c, enrollment, lessonID)
}

func (h *Handler) completeAndBroadcast(c *gin.Context, enrollment *models.Enrollment, lessonID uuid.UUID) {
	total, err := h.courseRepo.CountLessons(c.Request.Context(), enrollment.CourseID)
	if err != nil {
		response.Internal(c, "failed to compute progress")
		return
	}
	percent, err := h.repo.CompleteLesson(c.Request.Context(), enrollment.ID, lessonID, total)
	if err != nil {
		h.logger.Error("complete lesson failed", zap.Error(err),
			zap.String("lesson_id", lessonID.String()), zap.String("enrollment_id", enrollment.ID.String()))
		response.Internal(c, "failed to complete lesson")
		return
	}

	h.hub.BroadcastToLessonAndPublish(lessonID, realtime.EventLessonCompleted, gin.H{
		"user_id":   enrollment.UserID,
		"lesson_id": lessonID,
	})
	h.hub.BroadcastToLessonAndPublish(lessonID, realtime.EventCourseProgress, gin.H{
		"user_id":          enrollment.UserID,
		"course_id":        enrollment.CourseID,
		"progress_percent": percent,
	})
	response.OK(c, gin.H{"lesson_id": lessonID, "progress_percent": percent})
}

// GetQuiz handles GET /lessons/:id/quiz. Correct options never serialize.
func (h *Handler) GetQuiz(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	if _, _, ok := h.enrollmentForLesson(c, lessonID); !ok {
		return
	}
	questions, err := h.courseRepo.ListQuizQuestions(c.Request.Context(), lessonID)
	if err != nil {
		response.Internal(c, "failed to load quiz")
		return
	}
	response.OK(c, questions)
}

// SubmitQuiz handles POST /lessons/:id/quiz/submit.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	var req QuizSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	enrollment, lesson, ok := h.enrollmentForLesson(c, lessonID)
	if !ok {
		return
	}

	questions, err := h.courseRepo.ListQuizQuestions(c.Request.Context(), lessonID)
	if err != nil {
		response.Internal(c, "failed to load quiz")
		return
	}
	if len(questions) == 0 {
		response.BadRequest(c, "lesson has no quiz")
		return
	}

	selected := make(map[uuid.UUID]string, len(req.Answers))
	for idStr, opt := range req.Answers {
		qid, err := uuid.Parse(idStr)
		if err != nil {
			response.BadRequest(c, "invalid question id: "+idStr)
			return
		}
		selected[qid] = opt
	}

	attempt, answers := models.GradeQuiz(questions, selected, lesson.PassingScore)
	attempt.EnrollmentID = enrollment.ID
	attempt.LessonID = lessonID
	if err := h.repo.CreateQuizAttempt(c.Request.Context(), &attempt, answers); err != nil {
		h.logger.Error("save quiz attempt failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
		response.Internal(c, "failed to save attempt")
		return
	}

	progressPercent := enrollment.ProgressPercent
	if attempt.IsPassing {
		total, err := h.courseRepo.CountLessons(c.Request.Context(), enrollment.CourseID)
		if err == nil {
			if p, err := h.repo.CompleteLesson(c.Request.Context(), enrollment.ID, lessonID, total); err == nil {
				progressPercent = p
			} else {
				h.logger.Error("complete lesson after quiz failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
			}
		}
	}

	h.hub.BroadcastToLessonAndPublish(lessonID, realtime.EventQuizResult, gin.H{
		"user_id":       enrollment.UserID,
		"lesson_id":     lessonID,
		"score_percent": attempt.ScorePercent,
		"is_passing":    attempt.IsPassing,
	})

	response.OK(c, gin.H{"attempt": attempt, "progress_percent": progressPercent})
}

// CourseProgress handles GET /courses/:id/progress for the caller's
// enrollment.
func (h *Handler) CourseProgress(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	enrollment, err := h.enrollmentRepo.GetByUserAndCourse(c.Request.Context(), userID, courseID)
	if err != nil {
		response.NotFound(c, "enrollment not found")
		return
	}
	lessons, err := h.repo.ListByEnrollment(c.Request.Context(), enrollment.ID)
	if err != nil {
		response.Internal(c, "failed to load progress")
		return
	}
	response.OK(c, gin.H{
		"enrollment": enrollment,
		"lessons":    lessons,
	})
}

// ListAttempts handles GET /lessons/:id/quiz/attempts.
func (h *Handler) ListAttempts(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	enrollment, _, ok := h.enrollmentForLesson(c, lessonID)
	if !ok {
		return
	}
	list, err := h.repo.ListAttempts(c.Request.Context(), enrollment.ID, lessonID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		response.Internal(c, "failed to list attempts")
		return
	}
	response.OK(c, list)
}
