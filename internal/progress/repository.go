package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

// ErrNotFound is returned when no progress row exists.
var ErrNotFound = errors.New("progress not found")

// Repository handles lesson progress and quiz attempt persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a progress repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertWatchTime records watch time for a lesson, keeping the maximum seen.
// Completion is never un-set here.
func (r *Repository) UpsertWatchTime(ctx context.Context, enrollmentID, lessonID uuid.UUID, watchTimeSeconds int) (*models.LessonProgress, error) {
	const q = `INSERT INTO lesson_progress (id, enrollment_id, lesson_id, watch_time_seconds)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (enrollment_id, lesson_id)
		DO UPDATE SET watch_time_seconds = GREATEST(lesson_progress.watch_time_seconds, EXCLUDED.watch_time_seconds), updated_at = NOW()
		RETURNING id, enrollment_id, lesson_id, watch_time_seconds, is_completed, completed_at, created_at, updated_at`
	var p models.LessonProgress
	err := r.pool.QueryRow(ctx, q, enrollmentID, lessonID, watchTimeSeconds).
		Scan(&p.ID, &p.EnrollmentID, &p.LessonID, &p.WatchTimeSeconds, &p.IsCompleted, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns a lesson progress row.
func (r *Repository) Get(ctx context.Context, enrollmentID, lessonID uuid.UUID) (*models.LessonProgress, error) {
	const q = `SELECT id, enrollment_id, lesson_id, watch_time_seconds, is_completed, completed_at, created_at, updated_at
		FROM lesson_progress WHERE enrollment_id = $1 AND lesson_id = $2`
	var p models.LessonProgress
	err := r.pool.QueryRow(ctx, q, enrollmentID, lessonID).
		Scan(&p.ID, &p.EnrollmentID, &p.LessonID, &p.WatchTimeSeconds, &p.IsCompleted, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByEnrollment returns all lesson progress rows for an enrollment.
func (r *Repository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]models.LessonProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, enrollment_id, lesson_id, watch_time_seconds, is_completed, completed_at, created_at, updated_at
		 FROM lesson_progress WHERE enrollment_id = $1 ORDER BY created_at`, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LessonProgress
	for rows.Next() {
		var p models.LessonProgress
		if err := rows.Scan(&p.ID, &p.EnrollmentID, &p.LessonID, &p.WatchTimeSeconds, &p.IsCompleted, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CompleteLesson marks a lesson completed and recomputes the enrollment's
// course progress in a single transaction: lesson update, completed count,
// enrollment percentage (and completed_at at 100%) commit or roll back
// together.
func (r *Repository) CompleteLesson(ctx context.Context, enrollmentID, lessonID uuid.UUID, totalLessons int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `INSERT INTO lesson_progress (id, enrollment_id, lesson_id, is_completed, completed_at)
		VALUES (gen_random_uuid(), $1, $2, TRUE, NOW())
		ON CONFLICT (enrollment_id, lesson_id)
		DO UPDATE SET is_completed = TRUE, completed_at = COALESCE(lesson_progress.completed_at, NOW()), updated_at = NOW()`
	if _, err := tx.Exec(ctx, upsert, enrollmentID, lessonID); err != nil {
		return 0, fmt.Errorf("mark lesson completed: %w", err)
	}

	var completed int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1 AND is_completed`, enrollmentID).
		Scan(&completed); err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}

	percent := 0
	if totalLessons > 0 {
		percent = completed * 100 / totalLessons
	}
	if percent > 100 {
		percent = 100
	}

	const updateEnrollment = `UPDATE enrollments SET progress_percent = GREATEST(progress_percent, $2),
		completed_at = CASE WHEN $2 >= 100 THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
		updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, updateEnrollment, enrollmentID, percent); err != nil {
		return 0, fmt.Errorf("update enrollment progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return percent, nil
}

// CreateQuizAttempt persists a graded attempt with its answers.
func (r *Repository) CreateQuizAttempt(ctx context.Context, attempt *models.QuizAttempt, answers []models.QuizAnswer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertAttempt = `INSERT INTO quiz_attempts (id, enrollment_id, lesson_id, score_percent, correct_answers, total_questions, is_passing)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertAttempt,
		attempt.EnrollmentID, attempt.LessonID, attempt.ScorePercent, attempt.CorrectAnswers, attempt.TotalQuestions, attempt.IsPassing).
		Scan(&attempt.ID, &attempt.CreatedAt); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	const insertAnswer = `INSERT INTO quiz_answers (id, attempt_id, question_id, selected_option, is_correct)
		VALUES (gen_random_uuid(), $1, $2, $3, $4) RETURNING id`
	for i := range answers {
		answers[i].AttemptID = attempt.ID
		if err := tx.QueryRow(ctx, insertAnswer, attempt.ID, answers[i].QuestionID, answers[i].SelectedOption, answers[i].IsCorrect).
			Scan(&answers[i].ID); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	attempt.Answers = answers
	return nil
}

// ListAttempts returns a learner's attempts for a lesson, newest first.
func (r *Repository) ListAttempts(ctx context.Context, enrollmentID, lessonID uuid.UUID) ([]models.QuizAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, enrollment_id, lesson_id, score_percent, correct_answers, total_questions, is_passing, created_at
		 FROM quiz_attempts WHERE enrollment_id = $1 AND lesson_id = $2 ORDER BY created_at DESC`, enrollmentID, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.QuizAttempt
	for rows.Next() {
		var a models.QuizAttempt
		if err := rows.Scan(&a.ID, &a.EnrollmentID, &a.LessonID, &a.ScorePercent, &a.CorrectAnswers, &a.TotalQuestions, &a.IsPassing, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
