package enrollments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/coursebay/backend/internal/models"
)

var (
	ErrAlreadyEnrolled    = errors.New("already enrolled")
	ErrCourseNotFound     = errors.New("course not found")
	ErrCourseNotPublished = errors.New("course is not published")
	ErrPaymentRequired    = errors.New("course requires purchase")
)

// Store is the enrollment persistence the service needs.
type Store interface {
	Create(ctx context.Context, e *models.Enrollment) error
	GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
	Reactivate(ctx context.Context, id uuid.UUID) error
}

// CourseGetter resolves courses for enrollment checks.
type CourseGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// Service implements the enroll use-case.
type Service struct {
	store   Store
	courses CourseGetter
}

// NewService creates an enrollment service.
func NewService(store Store, courses CourseGetter) *Service {
	return &Service{store: store, courses: courses}
}

// Enroll enrolls a user in a free course. An active enrollment is a
// conflict; a paused one is reactivated instead of duplicated. Paid courses
// go through checkout — their enrollment is granted by the payment webhook.
func (s *Service) Enroll(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil || course == nil {
		return nil, ErrCourseNotFound
	}
	if !course.IsPublished {
		return nil, ErrCourseNotPublished
	}
	if !course.IsFree() {
		return nil, ErrPaymentRequired
	}
	return s.grant(ctx, userID, courseID)
}

// Grant creates or reactivates an enrollment without payment checks.
// Called after a completed purchase. Idempotent for active enrollments.
func (s *Service) Grant(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	e, err := s.store.GetByUserAndCourse(ctx, userID, courseID)
	if err == nil && e != nil {
		if !e.IsActive {
			if err := s.store.Reactivate(ctx, e.ID); err != nil {
				return nil, err
			}
			e.IsActive = true
		}
		return e, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	fresh := &models.Enrollment{UserID: userID, CourseID: courseID}
	if err := s.store.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Service) grant(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	e, err := s.store.GetByUserAndCourse(ctx, userID, courseID)
	if err == nil && e != nil {
		if e.IsActive {
			return nil, ErrAlreadyEnrolled
		}
		if err := s.store.Reactivate(ctx, e.ID); err != nil {
			return nil, err
		}
		e.IsActive = true
		return e, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	fresh := &models.Enrollment{UserID: userID, CourseID: courseID}
	if err := s.store.Create(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}
