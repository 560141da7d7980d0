package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebay/backend/internal/models"
)

// ErrNotFound is returned when a course, module or lesson does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles course, module, lesson and quiz question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a courses repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const courseColumns = `id, instructor_id, title, description, category, price_cents, currency, COALESCE(thumbnail_key,''), is_published, created_at, updated_at`

func scanCourse(row pgx.Row) (*models.Course, error) {
	var co models.Course
	err := row.Scan(&co.ID, &co.InstructorID, &co.Title, &co.Description, &co.Category,
		&co.PriceCents, &co.Currency, &co.ThumbnailKey, &co.IsPublished, &co.CreatedAt, &co.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &co, nil
}

// Create inserts a course.
func (r *Repository) Create(ctx context.Context, co *models.Course) error {
	const q = `INSERT INTO courses (id, instructor_id, title, description, category, price_cents, currency)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, is_published, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, co.InstructorID, co.Title, co.Description, co.Category, co.PriceCents, co.Currency).
		Scan(&co.ID, &co.IsPublished, &co.CreatedAt, &co.UpdatedAt)
}

// GetByID returns a course by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	return scanCourse(r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
}

// ListPublished returns the public catalog, optionally filtered by category.
func (r *Repository) ListPublished(ctx context.Context, category string) ([]models.Course, error) {
	q := `SELECT ` + courseColumns + ` FROM courses WHERE is_published ORDER BY created_at DESC`
	args := []interface{}{}
	if category != "" {
		q = `SELECT ` + courseColumns + ` FROM courses WHERE is_published AND category = $1 ORDER BY created_at DESC`
		args = append(args, category)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

// ListByInstructor returns all courses (including drafts) owned by an instructor.
func (r *Repository) ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE instructor_id = $1 ORDER BY created_at DESC`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCourses(rows)
}

func collectCourses(rows pgx.Rows) ([]models.Course, error) {
	var list []models.Course
	for rows.Next() {
		var co models.Course
		if err := rows.Scan(&co.ID, &co.InstructorID, &co.Title, &co.Description, &co.Category,
			&co.PriceCents, &co.Currency, &co.ThumbnailKey, &co.IsPublished, &co.CreatedAt, &co.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, co)
	}
	return list, rows.Err()
}

// Update patches mutable course fields.
func (r *Repository) Update(ctx context.Context, co *models.Course) error {
	const q = `UPDATE courses SET title = $2, description = $3, category = $4, price_cents = $5, currency = $6, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, co.ID, co.Title, co.Description, co.Category, co.PriceCents, co.Currency).Scan(&co.UpdatedAt)
}

// SetPublished toggles course visibility.
func (r *Repository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE courses SET is_published = $2, updated_at = NOW() WHERE id = $1`, id, published)
	return err
}

// SetThumbnailKey records the S3 key of the uploaded thumbnail.
func (r *Repository) SetThumbnailKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE courses SET thumbnail_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	return err
}

// Delete removes a course and cascades to its content.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return err
}

// CreateModule inserts a course module.
func (r *Repository) CreateModule(ctx context.Context, m *models.CourseModule) error {
	const q = `INSERT INTO course_modules (id, course_id, title, position)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, m.CourseID, m.Title, m.Position).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// ListModules returns a course's modules in order.
func (r *Repository) ListModules(ctx context.Context, courseID uuid.UUID) ([]models.CourseModule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, course_id, title, position, created_at, updated_at FROM course_modules WHERE course_id = $1 ORDER BY position, created_at`,
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CourseModule
	for rows.Next() {
		var m models.CourseModule
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Position, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetModuleCourseID resolves the owning course of a module.
func (r *Repository) GetModuleCourseID(ctx context.Context, moduleID uuid.UUID) (uuid.UUID, error) {
	var courseID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT course_id FROM course_modules WHERE id = $1`, moduleID).Scan(&courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return courseID, nil
}

const lessonColumns = `id, module_id, title, COALESCE(video_key,''), duration_seconds, position, is_preview, passing_score, created_at, updated_at`

// CreateLesson inserts a lesson.
func (r *Repository) CreateLesson(ctx context.Context, l *models.Lesson) error {
	const q = `INSERT INTO lessons (id, module_id, title, duration_seconds, position, is_preview, passing_score)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, l.ModuleID, l.Title, l.DurationSeconds, l.Position, l.IsPreview, l.PassingScore).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// GetLesson returns a lesson by ID.
func (r *Repository) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	var l models.Lesson
	err := r.pool.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id).
		Scan(&l.ID, &l.ModuleID, &l.Title, &l.VideoKey, &l.DurationSeconds, &l.Position, &l.IsPreview, &l.PassingScore, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// GetLessonCourseID resolves the owning course of a lesson.
func (r *Repository) GetLessonCourseID(ctx context.Context, lessonID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT m.course_id FROM lessons l JOIN course_modules m ON m.id = l.module_id WHERE l.id = $1`
	var courseID uuid.UUID
	err := r.pool.QueryRow(ctx, q, lessonID).Scan(&courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return courseID, nil
}

// ListLessonsByModule returns a module's lessons in order.
func (r *Repository) ListLessonsByModule(ctx context.Context, moduleID uuid.UUID) ([]models.Lesson, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE module_id = $1 ORDER BY position, created_at`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Lesson
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.ModuleID, &l.Title, &l.VideoKey, &l.DurationSeconds, &l.Position, &l.IsPreview, &l.PassingScore, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// CountLessons returns the total number of lessons in a course.
func (r *Repository) CountLessons(ctx context.Context, courseID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM lessons l JOIN course_modules m ON m.id = l.module_id WHERE m.course_id = $1`
	var n int
	err := r.pool.QueryRow(ctx, q, courseID).Scan(&n)
	return n, err
}

// SetLessonVideoKey records the S3 key after an upload is confirmed.
func (r *Repository) SetLessonVideoKey(ctx context.Context, lessonID uuid.UUID, key string, durationSeconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE lessons SET video_key = $2, duration_seconds = $3, updated_at = NOW() WHERE id = $1`,
		lessonID, key, durationSeconds)
	return err
}

// IsInstructorOf reports whether the user owns the course.
func (r *Repository) IsInstructorOf(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1 AND instructor_id = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, courseID, userID).Scan(&ok)
	return ok, err
}

// CreateQuizQuestion inserts a question for a quiz lesson.
func (r *Repository) CreateQuizQuestion(ctx context.Context, q *models.QuizQuestion) error {
	const sql = `INSERT INTO quiz_questions (id, lesson_id, prompt, option_a, option_b, option_c, option_d, correct_option, position)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, sql, q.LessonID, q.Prompt, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, q.Position).
		Scan(&q.ID, &q.CreatedAt)
}

// ListQuizQuestions returns a lesson's quiz questions in order, including
// the correct option (callers decide what to expose).
func (r *Repository) ListQuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]models.QuizQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lesson_id, prompt, option_a, option_b, option_c, option_d, correct_option, position, created_at
		 FROM quiz_questions WHERE lesson_id = $1 ORDER BY position, created_at`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.QuizQuestion
	for rows.Next() {
		var q models.QuizQuestion
		if err := rows.Scan(&q.ID, &q.LessonID, &q.Prompt, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectOption, &q.Position, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}
