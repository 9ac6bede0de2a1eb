package dto

import (
	"time"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

// EvaluateRequest asks for one student's answer sheet to be graded against a
// test's question paper and answer key.
type EvaluateRequest struct {
	TestID           uint `json:"test_id" validate:"required"`
	StudentID        uint `json:"student_id" validate:"required"`
	AnswerSheetDocID uint `json:"answer_sheet_document_id" validate:"required"`
}

// EvaluationResponse is the public shape of a grading record.
type EvaluationResponse struct {
	ID           uint                     `json:"id"`
	StudentID    uint                     `json:"student_id"`
	StudentName  string                   `json:"student_name,omitempty"`
	TestID       uint                     `json:"test_id"`
	Status       models.EvaluationStatus  `json:"status"`
	Score        *float64                 `json:"score"`
	Feedback     string                   `json:"feedback"`
	UserFeedback string                   `json:"user_feedback,omitempty"`
	Result       *models.EvaluationResult `json:"result,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// FeedbackOverrideRequest lets a teacher replace the generated feedback.
type FeedbackOverrideRequest struct {
	UserFeedback string `json:"user_feedback" validate:"required,max=4000"`
}
