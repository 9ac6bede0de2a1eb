package dto

// StudentCreateRequest registers a learner.
type StudentCreateRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Email  string `json:"email" validate:"required,email"`
	RollNo string `json:"roll_no" validate:"max=64"`
	Class  string `json:"class" validate:"max=64"`
}

// TestCreateRequest registers an examination.
type TestCreateRequest struct {
	Title              string  `json:"title" validate:"required,max=255"`
	Subject            string  `json:"subject" validate:"max=128"`
	Class              string  `json:"class" validate:"max=64"`
	MaxMarks           float64 `json:"max_marks" validate:"gte=0"`
	QuestionPaperDocID *uint   `json:"question_paper_document_id"`
	AnswerKeyDocID     *uint   `json:"answer_key_document_id"`
}
