package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationStatus tracks the lifecycle of one grading attempt.
type EvaluationStatus string

const (
	EvaluationStatusPending    EvaluationStatus = "pending"
	EvaluationStatusProcessing EvaluationStatus = "processing"
	EvaluationStatusCompleted  EvaluationStatus = "completed"
	EvaluationStatusFailed     EvaluationStatus = "failed"
)

// Evaluation is the durable grading record for one (student, test) pair.
// Rows are created lazily on the first attempt and upserted on every
// subsequent attempt; the composite unique index is the conflict target.
type Evaluation struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	StudentID        uint             `gorm:"not null;uniqueIndex:idx_evaluations_student_test" json:"student_id"`
	TestID           uint             `gorm:"not null;uniqueIndex:idx_evaluations_student_test" json:"test_id"`
	Status           EvaluationStatus `gorm:"size:32;not null;default:pending" json:"status"`
	AnswerSheetDocID *uint            `gorm:"index" json:"answer_sheet_document_id"`
	Score            *float64         `json:"score"`
	Feedback         string           `gorm:"type:text" json:"feedback"`
	Result           datatypes.JSON   `json:"result,omitempty"`
	UserFeedback     string           `gorm:"type:text" json:"user_feedback"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Student          Student          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	Test             Test             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// ScorePair is an [awarded, possible] mark pair.
type ScorePair [2]float64

// Awarded returns the marks granted.
func (s ScorePair) Awarded() float64 { return s[0] }

// Possible returns the maximum marks available.
func (s ScorePair) Possible() float64 { return s[1] }

// AnswerRecord is the per-question outcome of an evaluation. Records are
// mutated only during validation immediately after generation.
type AnswerRecord struct {
	QuestionNo           int       `json:"question_no"`
	Section              string    `json:"section"`
	QuestionText         string    `json:"question_text"`
	ExpectedAnswer       string    `json:"expected_answer"`
	StudentAnswer        string    `json:"student_answer"`
	RawExtractedText     string    `json:"raw_extracted_text"`
	Score                ScorePair `json:"score"`
	Remarks              string    `json:"remarks"`
	Confidence           float64   `json:"confidence"`
	Concepts             []string  `json:"concepts,omitempty"`
	MissingElements      []string  `json:"missing_elements,omitempty"`
	AnswerMatches        bool      `json:"answer_matches"`
	PersonalizedFeedback string    `json:"personalized_feedback"`
	AlignmentNotes       string    `json:"alignment_notes"`
}

// OverallPerformance summarizes a student's result across the whole paper.
type OverallPerformance struct {
	Strengths            []string `json:"strengths"`
	ImprovementAreas     []string `json:"improvement_areas"`
	StudyRecommendations []string `json:"study_recommendations"`
	PersonalizedSummary  string   `json:"personalized_summary"`
}

// EvaluationResult is the structured outcome produced by the evaluation
// orchestrator and persisted into the Evaluation row.
type EvaluationResult struct {
	StudentName            string             `json:"student_name"`
	RollNo                 string             `json:"roll_no"`
	TotalQuestionsDetected int                `json:"total_questions_detected"`
	QuestionsBySection     map[string]int     `json:"questions_by_section"`
	Answers                []AnswerRecord     `json:"answers"`
	OverallPerformance     OverallPerformance `json:"overall_performance"`
}

// TotalScore sums awarded and possible marks across all answers.
func (r EvaluationResult) TotalScore() (awarded, possible float64) {
	for _, a := range r.Answers {
		awarded += a.Score.Awarded()
		possible += a.Score.Possible()
	}
	return awarded, possible
}
