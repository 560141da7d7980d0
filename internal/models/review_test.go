package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReview(t *testing.T) {
	userID := uuid.New()
	courseID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		r, err := NewReview(userID, courseID, 5, "great course")
		require.NoError(t, err)
		assert.Equal(t, 5, r.Rating)
		assert.Equal(t, userID, r.UserID)
	})

	t.Run("rating too low", func(t *testing.T) {
		_, err := NewReview(userID, courseID, 0, "")
		assert.ErrorIs(t, err, ErrRatingOutOfRange)
	})

	t.Run("rating too high", func(t *testing.T) {
		_, err := NewReview(userID, courseID, 6, "")
		assert.ErrorIs(t, err, ErrRatingOutOfRange)
	})

	t.Run("comment at limit", func(t *testing.T) {
		_, err := NewReview(userID, courseID, 3, strings.Repeat("x", MaxCommentLength))
		assert.NoError(t, err)
	})

	t.Run("comment over limit", func(t *testing.T) {
		_, err := NewReview(userID, courseID, 3, strings.Repeat("x", MaxCommentLength+1))
		assert.ErrorIs(t, err, ErrCommentTooLong)
	})
}
