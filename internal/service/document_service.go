package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/observability"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
	"github.com/vidya-labs/vidya-go-api/pkg/cloudinary"
)

// ErrNotPDF indicates the uploaded bytes are not a PDF document.
var ErrNotPDF = errors.New("uploaded file is not a PDF")

// ErrFileTooLarge indicates the upload exceeds the configured size cap.
var ErrFileTooLarge = errors.New("uploaded file exceeds size limit")

// BlobStore persists uploaded files in external storage.
type BlobStore interface {
	Upload(ctx context.Context, name string, reader io.Reader) (cloudinary.UploadResult, error)
	Destroy(ctx context.Context, storageID string) error
}

// DocumentService manages upload, listing and deletion of documents.
type DocumentService interface {
	Upload(ctx context.Context, req dto.DocumentUploadRequest, filename string, data []byte, ownerID *uint) (models.Document, error)
	Get(ctx context.Context, id uint) (models.Document, error)
	GetByPublicID(ctx context.Context, publicID string) (models.Document, error)
	List(ctx context.Context, filter repository.DocumentFilter) ([]models.Document, error)
	Delete(ctx context.Context, id uint) error
}

type documentService struct {
	docs       repository.DocumentRepository
	store      BlobStore
	logger     zerolog.Logger
	maxUploadB int64
}

// NewDocumentService constructs the document service.
func NewDocumentService(docs repository.DocumentRepository, store BlobStore, maxUploadMB int, logger zerolog.Logger) DocumentService {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &documentService{
		docs:       docs,
		store:      store,
		logger:     logger.With().Str("component", "document_service").Logger(),
		maxUploadB: int64(maxUploadMB) << 20,
	}
}

// Upload validates the bytes as a PDF, stores them and creates the document
// row in pending extraction state.
func (s *documentService) Upload(ctx context.Context, req dto.DocumentUploadRequest, filename string, data []byte, ownerID *uint) (models.Document, error) {
	if int64(len(data)) > s.maxUploadB {
		observability.UploadRejected().WithLabelValues("too_large").Inc()
		return models.Document{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), s.maxUploadB)
	}

	detected := mimetype.Detect(data)
	if !detected.Is("application/pdf") {
		observability.UploadRejected().WithLabelValues("not_pdf").Inc()
		return models.Document{}, fmt.Errorf("%w: detected %s", ErrNotPDF, detected.String())
	}

	stored, err := s.store.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		return models.Document{}, fmt.Errorf("store upload: %w", err)
	}

	checksum := sha256.Sum256(data)
	document := models.Document{
		PublicID:         uuid.NewString(),
		Title:            req.Title,
		Type:             req.Type,
		FileURL:          stored.URL,
		StorageID:        stored.StorageID,
		Checksum:         hex.EncodeToString(checksum[:]),
		OwnerID:          ownerID,
		ExtractionStatus: models.ExtractionStatusPending,
	}

	if err := s.docs.Create(ctx, &document); err != nil {
		// The blob is already stored; reap it rather than leak it.
		if destroyErr := s.store.Destroy(ctx, stored.StorageID); destroyErr != nil {
			s.logger.Warn().Err(destroyErr).Str("storage_id", stored.StorageID).Msg("failed to clean up orphaned blob")
		}
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info().
		Uint("document_id", document.ID).
		Str("public_id", document.PublicID).
		Str("type", string(document.Type)).
		Int("bytes", len(data)).
		Msg("document uploaded")

	return document, nil
}

func (s *documentService) Get(ctx context.Context, id uint) (models.Document, error) {
	document, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, err
	}
	return document, nil
}

func (s *documentService) GetByPublicID(ctx context.Context, publicID string) (models.Document, error) {
	document, err := s.docs.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Document{}, ErrDocumentNotFound
		}
		return models.Document{}, err
	}
	return document, nil
}

func (s *documentService) List(ctx context.Context, filter repository.DocumentFilter) ([]models.Document, error) {
	return s.docs.List(ctx, filter)
}

// Delete removes the stored blob first, then the row. A missing blob is not
// fatal; a dangling blob with no row would be unreachable garbage.
func (s *documentService) Delete(ctx context.Context, id uint) error {
	document, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	if document.StorageID != "" {
		if err := s.store.Destroy(ctx, document.StorageID); err != nil {
			s.logger.Warn().Err(err).Str("storage_id", document.StorageID).Msg("failed to destroy stored blob, deleting row anyway")
		}
	}

	return s.docs.Delete(ctx, id)
}
