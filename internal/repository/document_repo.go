package repository

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/models"
)

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	OwnerID *uint
	Type    *models.DocumentType
	Status  *models.ExtractionStatus
}

// ExtractionUpdate is one progressive write of extraction state. Nil fields
// are left untouched.
type ExtractionUpdate struct {
	Status   models.ExtractionStatus
	Text     *string
	HasText  *bool
	Metadata *models.ExtractionMetadata
}

// DocumentRepository defines data operations for documents.
type DocumentRepository interface {
	Create(ctx context.Context, document *models.Document) error
	GetByID(ctx context.Context, id uint) (models.Document, error)
	GetByPublicID(ctx context.Context, publicID string) (models.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]models.Document, error)
	Delete(ctx context.Context, id uint) error
	UpdateExtraction(ctx context.Context, id uint, update ExtractionUpdate) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository instantiates the repository.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, document *models.Document) error {
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *documentRepository) GetByID(ctx context.Context, id uint) (models.Document, error) {
	var document models.Document
	if err := r.db.WithContext(ctx).First(&document, id).Error; err != nil {
		return models.Document{}, err
	}

	return document, nil
}

func (r *documentRepository) GetByPublicID(ctx context.Context, publicID string) (models.Document, error) {
	var document models.Document
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&document).Error; err != nil {
		return models.Document{}, err
	}

	return document, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentFilter) ([]models.Document, error) {
	query := r.db.WithContext(ctx).Model(&models.Document{})

	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	if filter.Status != nil {
		query = query.Where("extraction_status = ?", *filter.Status)
	}

	var documents []models.Document
	if err := query.Order("created_at DESC").Find(&documents).Error; err != nil {
		return nil, err
	}

	return documents, nil
}

func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Document{}, id).Error
}

func (r *documentRepository) UpdateExtraction(ctx context.Context, id uint, update ExtractionUpdate) error {
	fields := map[string]interface{}{
		"extraction_status": update.Status,
	}

	if update.Text != nil {
		fields["extracted_text"] = *update.Text
	}

	if update.HasText != nil {
		fields["has_extracted_text"] = *update.HasText
	}

	if update.Metadata != nil {
		payload, err := json.Marshal(update.Metadata)
		if err != nil {
			return err
		}
		fields["metadata"] = datatypes.JSON(payload)
	}

	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Updates(fields).Error
}
