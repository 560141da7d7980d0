package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is a published or draft course in the marketplace.
type Course struct {
	ID           uuid.UUID `json:"id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	IsPublished  bool      `json:"is_published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsFree reports whether the course costs nothing.
func (c *Course) IsFree() bool { return c.PriceCents == 0 }

// CourseModule is an ordered section of a course.
type CourseModule struct {
	ID        uuid.UUID `json:"id"`
	CourseID  uuid.UUID `json:"course_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lesson is a video or quiz lesson within a module.
type Lesson struct {
	ID              uuid.UUID `json:"id"`
	ModuleID        uuid.UUID `json:"module_id"`
	Title           string    `json:"title"`
	VideoKey        string    `json:"video_key,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	Position        int       `json:"position"`
	IsPreview       bool      `json:"is_preview"`
	PassingScore    *int      `json:"passing_score,omitempty"` // nil = not a quiz lesson
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultPassingScore applies when a quiz lesson has no explicit threshold.
const DefaultPassingScore = 70

// QuizQuestion is a multiple-choice question attached to a lesson.
type QuizQuestion struct {
	ID            uuid.UUID `json:"id"`
	LessonID      uuid.UUID `json:"lesson_id"`
	Prompt        string    `json:"prompt"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectOption string    `json:"-"` // never exposed to learners
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
}
