package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExtractionStatus tracks the lifecycle of text extraction for a document.
type ExtractionStatus string

const (
	ExtractionStatusPending    ExtractionStatus = "pending"
	ExtractionStatusProcessing ExtractionStatus = "processing"
	ExtractionStatusCompleted  ExtractionStatus = "completed"
	ExtractionStatusFailed     ExtractionStatus = "failed"
)

// DocumentType identifies what role an uploaded document plays in grading.
type DocumentType string

const (
	DocumentTypeQuestionPaper   DocumentType = "question"
	DocumentTypeAnswerKey       DocumentType = "answer"
	DocumentTypeStudentSheet    DocumentType = "student-sheet"
	DocumentTypeChapterMaterial DocumentType = "chapter-material"
)

// Document is a user-uploaded PDF whose extraction fields are mutated only by
// the extraction pipeline and by explicit delete.
type Document struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	PublicID         string           `gorm:"size:64;uniqueIndex;not null" json:"public_id"`
	Title            string           `gorm:"size:255;not null" json:"title"`
	Type             DocumentType     `gorm:"size:32;not null" json:"type"`
	FileURL          string           `gorm:"size:512;not null" json:"file_url"`
	StorageID        string           `gorm:"size:255" json:"-"`
	Checksum         string           `gorm:"size:64" json:"checksum,omitempty"`
	OwnerID          *uint            `gorm:"index" json:"owner_id"`
	ExtractionStatus ExtractionStatus `gorm:"size:32;not null;default:pending" json:"extraction_status"`
	ExtractedText    *string          `gorm:"type:text" json:"extracted_text,omitempty"`
	HasExtractedText bool             `gorm:"not null;default:false" json:"has_extracted_text"`
	Metadata         datatypes.JSON   `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ExtractionMetadata records the parameters an extraction run used, stored in
// the document's metadata column.
type ExtractionMetadata struct {
	PageCount        int    `json:"page_count"`
	BatchSize        int    `json:"batch_size"`
	GroupConcurrency int    `json:"group_concurrency,omitempty"`
	FailedBatches    []int  `json:"failed_batches,omitempty"`
	CompletedAt      string `json:"completed_at,omitempty"`
}
