package dto

import (
	"time"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

// DocumentResponse is the public shape of a document.
type DocumentResponse struct {
	ID               uint                    `json:"id"`
	PublicID         string                  `json:"public_id"`
	Title            string                  `json:"title"`
	Type             models.DocumentType     `json:"type"`
	FileURL          string                  `json:"file_url"`
	ExtractionStatus models.ExtractionStatus `json:"extraction_status"`
	HasExtractedText bool                    `json:"has_extracted_text"`
	ExtractedText    *string                 `json:"extracted_text,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewDocumentResponse maps a model to its response shape.
func NewDocumentResponse(d models.Document, includeText bool) DocumentResponse {
	resp := DocumentResponse{
		ID:               d.ID,
		PublicID:         d.PublicID,
		Title:            d.Title,
		Type:             d.Type,
		FileURL:          d.FileURL,
		ExtractionStatus: d.ExtractionStatus,
		HasExtractedText: d.HasExtractedText,
		CreatedAt:        d.CreatedAt,
	}
	if includeText {
		resp.ExtractedText = d.ExtractedText
	}
	return resp
}

// DocumentUploadRequest carries the metadata fields of a multipart upload.
type DocumentUploadRequest struct {
	Title string              `json:"title" validate:"required,max=255"`
	Type  models.DocumentType `json:"type" validate:"required,oneof=question answer student-sheet chapter-material"`
}

// ExtractRequest tunes one extraction run.
type ExtractRequest struct {
	BatchSize        int  `json:"batch_size" validate:"omitempty,min=1,max=10"`
	GroupConcurrency int  `json:"group_concurrency" validate:"omitempty,min=1,max=8"`
	Grayscale        *bool `json:"grayscale"`
}

// ExtractResponse reports the outcome of an extraction run.
type ExtractResponse struct {
	DocumentID uint                    `json:"document_id"`
	Status     models.ExtractionStatus `json:"status"`
	Text       string                  `json:"text"`
	PageCount  int                     `json:"page_count"`
}
