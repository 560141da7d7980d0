package reviews

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

var (
	ErrNotFound  = errors.New("review not found")
	ErrDuplicate = errors.New("user already reviewed this course")
)

const reviewColumns = `id, user_id, course_id, rating, comment, created_at, updated_at`

// Repository provides review persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a review. One review per user per course; a second insert
// returns ErrDuplicate.
func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	const q = `
		INSERT INTO reviews (user_id, course_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, review.UserID, review.CourseID, review.Rating, review.Comment).
		Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	const q = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`
	var rev models.Review
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&rev.ID, &rev.UserID, &rev.CourseID, &rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &rev, nil
}

func (r *Repository) GetByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*models.Review, error) {
	const q = `SELECT ` + reviewColumns + ` FROM reviews WHERE user_id = $1 AND course_id = $2`
	var rev models.Review
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(
		&rev.ID, &rev.UserID, &rev.CourseID, &rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &rev, nil
}

// ListByCourse returns a course's reviews, newest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Review, error) {
	const q = `SELECT ` + reviewColumns + ` FROM reviews WHERE course_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var list []models.Review
	for rows.Next() {
		var rev models.Review
		if err := rows.Scan(&rev.ID, &rev.UserID, &rev.CourseID, &rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		list = append(list, rev)
	}
	return list, rows.Err()
}

// Summary aggregates a course's rating.
type Summary struct {
	CourseID      uuid.UUID `json:"course_id"`
	ReviewCount   int       `json:"review_count"`
	AverageRating float64   `json:"average_rating"`
}

func (r *Repository) SummaryByCourse(ctx context.Context, courseID uuid.UUID) (*Summary, error) {
	const q = `
		SELECT COUNT(*), COALESCE(AVG(rating), 0)
		FROM reviews WHERE course_id = $1`
	s := Summary{CourseID: courseID}
	if err := r.pool.QueryRow(ctx, q, courseID).Scan(&s.ReviewCount, &s.AverageRating); err != nil {
		return nil, fmt.Errorf("review summary: %w", err)
	}
	return &s, nil
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, rating int, comment string) (*models.Review, error) {
	const q = `
		UPDATE reviews SET rating = $2, comment = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + reviewColumns
	var rev models.Review
	err := r.pool.QueryRow(ctx, q, id, rating, comment).Scan(
		&rev.ID, &rev.UserID, &rev.CourseID, &rev.Rating, &rev.Comment, &rev.CreatedAt, &rev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	return &rev, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
