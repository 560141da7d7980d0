package courses

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/middleware"
	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/queue"
	"github.com/coursebay/backend/pkg/response"
	"github.com/coursebay/backend/pkg/storage"
)

// EnrollmentChecker reports whether a user has active access to a course.
type EnrollmentChecker interface {
	HasActive(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// UploadURLRequest is the body for POST /instructor/lessons/:id/video/generate-upload-url.
type UploadURLRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// ConfirmUploadRequest is the body for POST /instructor/lessons/:id/video/confirm.
type ConfirmUploadRequest struct {
	DurationSeconds int `json:"duration_seconds" binding:"min=0"`
}

// MediaHandler handles lesson video upload endpoints (S3 presigned flow).
type MediaHandler struct {
	repo        *Repository
	enrollments EnrollmentChecker
	s3          *storage.S3
	jobQueue    *queue.Queue
	logger      *zap.Logger
}

// NewMediaHandler creates a media handler. s3 may be nil when storage is not configured.
func NewMediaHandler(repo *Repository, enrollments EnrollmentChecker, s3 *storage.S3, jobQueue *queue.Queue, logger *zap.Logger) *MediaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaHandler{repo: repo, enrollments: enrollments, s3: s3, jobQueue: jobQueue, logger: logger}
}

// GenerateUploadURL handles POST /instructor/lessons/:id/video/generate-upload-url.
// Returns a presigned PUT URL so the client uploads directly to S3.
func (h *MediaHandler) GenerateUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidateVideoType(req.ContentType) {
		response.BadRequest(c, "unsupported video content type")
		return
	}

	courseID, err := h.repo.GetLessonCourseID(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return
	}
	if !h.requireCourseOwner(c, courseID) {
		return
	}

	key := storage.VideoKey(courseID.String(), lessonID.String())
	uploadURL, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), h.s3.VideosBucket(), key, req.ContentType, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
		response.Internal(c, "failed to generate upload url")
		return
	}
	response.OK(c, gin.H{"upload_url": uploadURL, "key": key, "expires_in_minutes": int(h.s3.PresignExpire().Minutes())})
}

// ConfirmUpload handles POST /instructor/lessons/:id/video/confirm.
// Verifies the object exists, records the key and enqueues processing.
func (h *MediaHandler) ConfirmUpload(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	var req ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	courseID, err := h.repo.GetLessonCourseID(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return
	}
	if !h.requireCourseOwner(c, courseID) {
		return
	}

	key := storage.VideoKey(courseID.String(), lessonID.String())
	if _, err := h.s3.HeadObject(c.Request.Context(), h.s3.VideosBucket(), key); err != nil {
		response.BadRequest(c, "video not found in storage; upload first")
		return
	}

	if err := h.repo.SetLessonVideoKey(c.Request.Context(), lessonID, key, req.DurationSeconds); err != nil {
		h.logger.Error("record video key failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
		response.Internal(c, "failed to record video")
		return
	}

	if err := h.jobQueue.EnqueueVideoProcess(c.Request.Context(), queue.VideoProcessPayload{
		LessonID: lessonID,
		CourseID: courseID,
		VideoKey: key,
	}); err != nil {
		h.logger.Error("enqueue video job failed", zap.Error(err))
	}

	response.OK(c, gin.H{"lesson_id": lessonID, "video_key": key})
}

// PlaybackURL handles GET /lessons/:id/playback-url. Preview lessons are
// open to any authenticated user; everything else requires an active
// enrollment, instructor ownership or the admin role.
func (h *MediaHandler) PlaybackURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return
	}
	lesson, err := h.repo.GetLesson(c.Request.Context(), lessonID)
	if err != nil {
		response.NotFound(c, "lesson not found")
		return
	}
	if lesson.VideoKey == "" {
		response.NotFound(c, "lesson has no video")
		return
	}
	if !lesson.IsPreview && !h.canWatch(c, lesson) {
		response.Forbidden(c, "enroll in the course to watch this lesson")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.VideosBucket(), lesson.VideoKey, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign playback failed", zap.Error(err), zap.String("lesson_id", lessonID.String()))
		response.Internal(c, "failed to generate playback url")
		return
	}
	response.OK(c, gin.H{"playback_url": url, "expires_in_minutes": int(h.s3.PresignExpire().Minutes())})
}

// UploadThumbnail handles POST /instructor/courses/:id/thumbnail. Server-side
// multipart upload to the public thumbnails bucket; the stored key replaces
// any previous thumbnail for the course.
func (h *MediaHandler) UploadThumbnail(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), courseID); err != nil {
		response.NotFound(c, "course not found")
		return
	}
	if !h.requireCourseOwner(c, courseID) {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxThumbnailSize {
		response.BadRequest(c, "file size exceeds 5MB limit")
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateThumbnailType(contentType) {
		response.BadRequest(c, "invalid file type: only jpeg, png and webp allowed")
		return
	}

	key := storage.ThumbnailKey(courseID.String(), contentType)
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	if _, err := h.s3.Upload(c.Request.Context(), h.s3.ThumbnailsBucket(), key, contentType, rc, file.Size, true); err != nil {
		h.logger.Error("thumbnail upload failed", zap.Error(err), zap.String("course_id", courseID.String()), zap.String("key", key))
		response.Internal(c, "failed to upload thumbnail")
		return
	}
	if err := h.repo.SetThumbnailKey(c.Request.Context(), courseID, key); err != nil {
		h.logger.Error("record thumbnail key failed", zap.Error(err), zap.String("course_id", courseID.String()))
		response.Internal(c, "failed to record thumbnail")
		return
	}

	response.OK(c, gin.H{
		"course_id":     courseID,
		"thumbnail_key": key,
		"thumbnail_url": h.s3.PublicObjectURL(h.s3.ThumbnailsBucket(), key),
	})
}

func (h *MediaHandler) requireCourseOwner(c *gin.Context, courseID uuid.UUID) bool {
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

func (h *MediaHandler) canWatch(c *gin.Context, lesson *models.Lesson) bool {
	userID, ok := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if !ok {
		return false
	}
	role, _ := c.MustGet(middleware.ContextUserRole).(string)
	if role == string(models.RoleAdmin) {
		return true
	}
	courseID, err := h.repo.GetLessonCourseID(c.Request.Context(), lesson.ID)
	if err != nil {
		return false
	}
	if owner, err := h.repo.IsInstructorOf(c.Request.Context(), courseID, userID); err == nil && owner {
		return true
	}
	active, err := h.enrollments.HasActive(c.Request.Context(), userID, courseID)
	return err == nil && active
}
