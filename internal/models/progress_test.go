package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizQuestions(correct ...string) []QuizQuestion {
	qs := make([]QuizQuestion, len(correct))
	for i, c := range correct {
		qs[i] = QuizQuestion{ID: uuid.New(), CorrectOption: c}
	}
	return qs
}

func TestGradeQuizAllCorrect(t *testing.T) {
	questions := quizQuestions("A", "B", "C")
	selected := map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[1].ID: "B",
		questions[2].ID: "C",
	}

	attempt, answers := GradeQuiz(questions, selected, nil)

	assert.Equal(t, 100, attempt.ScorePercent)
	assert.Equal(t, 3, attempt.CorrectAnswers)
	assert.Equal(t, 3, attempt.TotalQuestions)
	assert.True(t, attempt.IsPassing)
	require.Len(t, answers, 3)
	for _, a := range answers {
		assert.True(t, a.IsCorrect)
	}
}

func TestGradeQuizRounding(t *testing.T) {
	// 2 of 3 correct = 66.67%, rounds to 67.
	questions := quizQuestions("A", "B", "C")
	selected := map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[1].ID: "B",
		questions[2].ID: "D",
	}

	attempt, _ := GradeQuiz(questions, selected, nil)

	assert.Equal(t, 67, attempt.ScorePercent)
	assert.False(t, attempt.IsPassing, "67 is below the default threshold of 70")
}

func TestGradeQuizCustomThreshold(t *testing.T) {
	questions := quizQuestions("A", "B")
	selected := map[uuid.UUID]string{
		questions[0].ID: "A",
		questions[1].ID: "C",
	}

	attempt, _ := GradeQuiz(questions, selected, intPtr(50))

	assert.Equal(t, 50, attempt.ScorePercent)
	assert.True(t, attempt.IsPassing, "score equal to the threshold passes")
}

func TestGradeQuizMissingAnswers(t *testing.T) {
	questions := quizQuestions("A", "B")

	attempt, answers := GradeQuiz(questions, map[uuid.UUID]string{}, nil)

	assert.Equal(t, 0, attempt.ScorePercent)
	assert.False(t, attempt.IsPassing)
	require.Len(t, answers, 2)
	for _, a := range answers {
		assert.False(t, a.IsCorrect)
		assert.Empty(t, a.SelectedOption)
	}
}
