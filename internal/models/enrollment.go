package models

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment links a user to a course. One row per (user, course);
// pausing sets is_active false and re-enrolling reactivates the row.
type Enrollment struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	CourseID        uuid.UUID  `json:"course_id"`
	IsActive        bool       `json:"is_active"`
	ProgressPercent int        `json:"progress_percent"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsCompleted reports whether the learner finished the course.
func (e *Enrollment) IsCompleted() bool { return e.CompletedAt != nil }
