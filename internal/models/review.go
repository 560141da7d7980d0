package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// MinRating and MaxRating bound the review rating.
	MinRating = 1
	MaxRating = 5
	// MaxCommentLength bounds the review comment.
	MaxCommentLength = 500
)

var (
	ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong   = errors.New("comment must be at most 500 characters")
)

// Review is a learner's rating of a course. One per (user, course).
type Review struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CourseID  uuid.UUID `json:"course_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReview validates rating and comment bounds. The same limits are also
// enforced by request binding tags; the model is the last line.
func NewReview(userID, courseID uuid.UUID, rating int, comment string) (*Review, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ErrRatingOutOfRange
	}
	if len([]rune(comment)) > MaxCommentLength {
		return nil, ErrCommentTooLong
	}
	return &Review{
		UserID:   userID,
		CourseID: courseID,
		Rating:   rating,
		Comment:  comment,
	}, nil
}
