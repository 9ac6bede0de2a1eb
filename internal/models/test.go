package models

import "time"

// Test represents an examination: a question paper plus its answer key,
// administered to a class.
type Test struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Title               string    `gorm:"size:255;not null" json:"title"`
	Subject             string    `gorm:"size:128" json:"subject"`
	Class               string    `gorm:"size:64" json:"class"`
	MaxMarks            float64   `json:"max_marks"`
	QuestionPaperDocID  *uint     `gorm:"index" json:"question_paper_document_id"`
	AnswerKeyDocID      *uint     `gorm:"index" json:"answer_key_document_id"`
	QuestionPaperDoc    *Document `gorm:"foreignKey:QuestionPaperDocID" json:"question_paper_document,omitempty"`
	AnswerKeyDoc        *Document `gorm:"foreignKey:AnswerKeyDocID" json:"answer_key_document,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
