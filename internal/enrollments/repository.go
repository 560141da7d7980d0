package enrollments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

// ErrNotFound is returned when no enrollment exists.
var ErrNotFound = errors.New("enrollment not found")

const columns = `id, user_id, course_id, is_active, progress_percent, completed_at, created_at, updated_at`

// Repository handles enrollment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an enrollments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a fresh enrollment at 0% progress. The UNIQUE(user_id,
// course_id) constraint makes a concurrent duplicate insert fail instead of
// producing a second row.
func (r *Repository) Create(ctx context.Context, e *models.Enrollment) error {
	const q = `INSERT INTO enrollments (id, user_id, course_id)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, is_active, progress_percent, completed_at, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.UserID, e.CourseID).
		Scan(&e.ID, &e.IsActive, &e.ProgressPercent, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
}

// GetByUserAndCourse returns the enrollment for a user+course pair.
func (r *Repository) GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT ` + columns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var e models.Enrollment
	err := r.pool.QueryRow(ctx, q, userID, courseID).
		Scan(&e.ID, &e.UserID, &e.CourseID, &e.IsActive, &e.ProgressPercent, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// GetByID returns an enrollment by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT ` + columns + ` FROM enrollments WHERE id = $1`
	var e models.Enrollment
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&e.ID, &e.UserID, &e.CourseID, &e.IsActive, &e.ProgressPercent, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListByUser returns a user's enrollments, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM enrollments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.IsActive, &e.ProgressPercent, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Reactivate sets is_active true on a paused enrollment, keeping progress.
func (r *Repository) Reactivate(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE enrollments SET is_active = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// Deactivate pauses an enrollment (e.g. after a refund).
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE enrollments SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// HasActive reports whether the user has an active enrollment in the course.
func (r *Repository) HasActive(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND is_active)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&ok)
	return ok, err
}
