package models

import (
	"time"

	"github.com/google/uuid"
)

// LessonProgress tracks a learner's watch time and completion for one lesson.
type LessonProgress struct {
	ID               uuid.UUID  `json:"id"`
	EnrollmentID     uuid.UUID  `json:"enrollment_id"`
	LessonID         uuid.UUID  `json:"lesson_id"`
	WatchTimeSeconds int        `json:"watch_time_seconds"`
	IsCompleted      bool       `json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// QuizAttempt is one graded submission for a quiz lesson.
type QuizAttempt struct {
	ID             uuid.UUID `json:"id"`
	EnrollmentID   uuid.UUID `json:"enrollment_id"`
	LessonID       uuid.UUID `json:"lesson_id"`
	ScorePercent   int       `json:"score_percent"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	IsPassing      bool      `json:"is_passing"`
	CreatedAt      time.Time `json:"created_at"`
	Answers        []QuizAnswer `json:"answers,omitempty"`
}

// QuizAnswer is a single answer within an attempt.
type QuizAnswer struct {
	ID             uuid.UUID `json:"id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// GradeQuiz scores selected answers against the lesson's questions.
// Score is rounded to the nearest percent; passing compares against
// passingScore (DefaultPassingScore when the lesson sets none).
func GradeQuiz(questions []QuizQuestion, selected map[uuid.UUID]string, passingScore *int) (attempt QuizAttempt, answers []QuizAnswer) {
	threshold := DefaultPassingScore
	if passingScore != nil {
		threshold = *passingScore
	}
	correct := 0
	for _, q := range questions {
		sel := selected[q.ID]
		ok := sel != "" && sel == q.CorrectOption
		if ok {
			correct++
		}
		answers = append(answers, QuizAnswer{
			QuestionID:     q.ID,
			SelectedOption: sel,
			IsCorrect:      ok,
		})
	}
	score := 0
	if len(questions) > 0 {
		score = int(float64(correct)/float64(len(questions))*100 + 0.5)
	}
	attempt = QuizAttempt{
		ScorePercent:   score,
		CorrectAnswers: correct,
		TotalQuestions: len(questions),
		IsPassing:      score >= threshold,
	}
	return attempt, answers
}
