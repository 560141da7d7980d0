package enrollments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebay/backend/internal/models"
)

// mockStore is a mock implementation of Store.
type mockStore struct {
	createFn             func(ctx context.Context, e *models.Enrollment) error
	getByUserAndCourseFn func(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error)
	reactivateFn         func(ctx context.Context, id uuid.UUID) error
}

func (m *mockStore) Create(ctx context.Context, e *models.Enrollment) error {
	if m.createFn != nil {
		return m.createFn(ctx, e)
	}
	return nil
}

func (m *mockStore) GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	if m.getByUserAndCourseFn != nil {
		return m.getByUserAndCourseFn(ctx, userID, courseID)
	}
	return nil, ErrNotFound
}

func (m *mockStore) Reactivate(ctx context.Context, id uuid.UUID) error {
	if m.reactivateFn != nil {
		return m.reactivateFn(ctx, id)
	}
	return nil
}

// mockCourses is a mock implementation of CourseGetter.
type mockCourses struct {
	getByIDFn func(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

func (m *mockCourses) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, ErrNotFound
}

func freeCourse(id uuid.UUID) *models.Course {
	return &models.Course{ID: id, IsPublished: true, PriceCents: 0}
}

func TestEnrollFreeCourse(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()

	var created *models.Enrollment
	store := &mockStore{
		createFn: func(ctx context.Context, e *models.Enrollment) error {
			e.ID = uuid.New()
			created = e
			return nil
		},
	}
	courses := &mockCourses{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Course, error) {
			return freeCourse(id), nil
		},
	}

	svc := NewService(store, courses)
	e, err := svc.Enroll(context.Background(), userID, courseID)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, userID, e.UserID)
	assert.Equal(t, courseID, e.CourseID)
}

func TestEnrollCourseNotFound(t *testing.T) {
	svc := NewService(&mockStore{}, &mockCourses{})
	_, err := svc.Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestEnrollUnpublishedCourse(t *testing.T) {
	courses := &mockCourses{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Course, error) {
			return &models.Course{ID: id, IsPublished: false}, nil
		},
	}
	svc := NewService(&mockStore{}, courses)
	_, err := svc.Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrCourseNotPublished)
}

func TestEnrollPaidCourseRequiresPayment(t *testing.T) {
	courses := &mockCourses{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Course, error) {
			return &models.Course{ID: id, IsPublished: true, PriceCents: 4999}, nil
		},
	}
	svc := NewService(&mockStore{}, courses)
	_, err := svc.Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrPaymentRequired)
}

func TestEnrollActiveEnrollmentConflicts(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()

	store := &mockStore{
		getByUserAndCourseFn: func(ctx context.Context, u, c uuid.UUID) (*models.Enrollment, error) {
			return &models.Enrollment{ID: uuid.New(), UserID: u, CourseID: c, IsActive: true}, nil
		},
	}
	courses := &mockCourses{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Course, error) {
			return freeCourse(id), nil
		},
	}

	svc := NewService(store, courses)
	_, err := svc.Enroll(context.Background(), userID, courseID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnrollReactivatesPausedEnrollment(t *testing.T) {
	enrollmentID := uuid.New()
	reactivated := false

	store := &mockStore{
		getByUserAndCourseFn: func(ctx context.Context, u, c uuid.UUID) (*models.Enrollment, error) {
			return &models.Enrollment{ID: enrollmentID, UserID: u, CourseID: c, IsActive: false}, nil
		},
		reactivateFn: func(ctx context.Context, id uuid.UUID) error {
			assert.Equal(t, enrollmentID, id)
			reactivated = true
			return nil
		},
		createFn: func(ctx context.Context, e *models.Enrollment) error {
			t.Fatal("create must not be called for an existing enrollment")
			return nil
		},
	}
	courses := &mockCourses{
		getByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Course, error) {
			return freeCourse(id), nil
		},
	}

	svc := NewService(store, courses)
	e, err := svc.Enroll(context.Background(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.True(t, reactivated)
	assert.True(t, e.IsActive)
}

func TestGrantIsIdempotentForActiveEnrollment(t *testing.T) {
	store := &mockStore{
		getByUserAndCourseFn: func(ctx context.Context, u, c uuid.UUID) (*models.Enrollment, error) {
			return &models.Enrollment{ID: uuid.New(), UserID: u, CourseID: c, IsActive: true}, nil
		},
		createFn: func(ctx context.Context, e *models.Enrollment) error {
			t.Fatal("create must not be called")
			return nil
		},
	}
	svc := NewService(store, &mockCourses{})

	e, err := svc.Grant(context.Background(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.True(t, e.IsActive)
}
