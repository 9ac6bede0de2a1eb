package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/middleware"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/observability"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
	"github.com/vidya-labs/vidya-go-api/internal/service"
	"github.com/vidya-labs/vidya-go-api/internal/utils"
	"github.com/vidya-labs/vidya-go-api/pkg/raster"
)

// DocumentHandler handles document upload, retrieval and extraction routes.
type DocumentHandler struct {
	documents  service.DocumentService
	extraction service.ExtractionService
	validator  *validator.Validate
	logger     zerolog.Logger

	defaultBatchSize   int
	defaultConcurrency int
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(
	documents service.DocumentService,
	extraction service.ExtractionService,
	validator *validator.Validate,
	defaultBatchSize, defaultConcurrency int,
	logger zerolog.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents:          documents,
		extraction:         extraction,
		validator:          validator,
		logger:             logger.With().Str("component", "document_handler").Logger(),
		defaultBatchSize:   defaultBatchSize,
		defaultConcurrency: defaultConcurrency,
	}
}

// Register wires document routes.
func (h *DocumentHandler) Register(router fiber.Router) {
	router.Post("", h.upload)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
	router.Post("/:id/extract", h.extract)
}

func (h *DocumentHandler) upload(c *fiber.Ctx) error {
	start := time.Now()

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	req := dto.DocumentUploadRequest{
		Title: c.FormValue("title", file.Filename),
		Type:  models.DocumentType(c.FormValue("type")),
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	opened, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer opened.Close()

	data, err := io.ReadAll(opened)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}

	document, err := h.documents.Upload(requestContext(c), req, file.Filename, data, userIDFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrNotPDF):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("upload failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "upload failed")
		}
	}

	observability.UploadLatency().Observe(time.Since(start).Seconds())
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "document uploaded", dto.NewDocumentResponse(document, false))
}

func (h *DocumentHandler) list(c *fiber.Ctx) error {
	filter := repository.DocumentFilter{OwnerID: userIDFromContext(c)}

	if raw := c.Query("type"); raw != "" {
		docType := models.DocumentType(raw)
		filter.Type = &docType
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ExtractionStatus(raw)
		filter.Status = &status
	}

	documents, err := h.documents.List(requestContext(c), filter)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list documents")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list documents")
	}

	responses := make([]dto.DocumentResponse, len(documents))
	for i, d := range documents {
		responses[i] = dto.NewDocumentResponse(d, false)
	}

	return utils.SendSuccess(c, "documents retrieved", responses)
}

func (h *DocumentHandler) get(c *fiber.Ctx) error {
	id, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	document, err := h.documents.Get(requestContext(c), id)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "document not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch document")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch document")
	}

	includeText := c.QueryBool("include_text")
	return utils.SendSuccess(c, "document retrieved", dto.NewDocumentResponse(document, includeText))
}

func (h *DocumentHandler) delete(c *fiber.Ctx) error {
	id, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.documents.Delete(requestContext(c), id); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "document not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to delete document")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete document")
	}

	return utils.SendSuccess(c, "document deleted", nil)
}

// extract runs the vision extraction pipeline for one document. The request
// body is optional; omitted fields fall back to configured defaults. Passing
// ?async=true detaches the run and returns immediately; progress is then
// observable over the document's websocket stream.
func (h *DocumentHandler) extract(c *fiber.Ctx) error {
	id, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ExtractRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
		if err := h.validator.Struct(req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	opts := service.ExtractOptions{
		BatchSize:        h.defaultBatchSize,
		GroupConcurrency: h.defaultConcurrency,
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.GroupConcurrency > 0 {
		opts.GroupConcurrency = req.GroupConcurrency
	}
	if req.Grayscale != nil {
		opts.Raster = raster.Options{Grayscale: *req.Grayscale}
	}

	if c.QueryBool("async") {
		// Fiber recycles the request context after the handler returns, so
		// the background run gets a fresh one carrying only the correlation id.
		base := middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c))
		go func() {
			ctx, cancel := context.WithTimeout(base, 30*time.Minute)
			defer cancel()
			if _, err := h.extraction.Extract(ctx, id, opts, nil); err != nil {
				h.logger.Error().Err(err).Uint("document_id", id).Msg("background extraction failed")
			}
		}()
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "extraction started", dto.ExtractResponse{
			DocumentID: id,
			Status:     models.ExtractionStatusProcessing,
		})
	}

	text, err := h.extraction.Extract(requestContext(c), id, opts, nil)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDocumentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "document not found")
		case errors.Is(err, service.ErrTooManyPages):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrExtractionFailed):
			return utils.SendError(c, fiber.StatusBadGateway, err.Error())
		case errors.Is(err, raster.ErrPasswordProtected), errors.Is(err, raster.ErrEmptyDocument):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		default:
			var invalidDoc *raster.InvalidDocumentError
			if errors.As(err, &invalidDoc) {
				return utils.SendError(c, fiber.StatusUnprocessableEntity, invalidDoc.Error())
			}
			requestLogger(h.logger, c).Error().Err(err).Uint("document_id", id).Msg("extraction failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "extraction failed")
		}
	}

	document, err := h.documents.Get(requestContext(c), id)
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("document_id", id).Msg("failed to reload document after extraction")
	}

	resp := dto.ExtractResponse{
		DocumentID: id,
		Status:     models.ExtractionStatusCompleted,
		Text:       text,
	}
	if len(document.Metadata) > 0 {
		var meta models.ExtractionMetadata
		if err := json.Unmarshal(document.Metadata, &meta); err == nil {
			resp.PageCount = meta.PageCount
		}
	}

	return utils.SendSuccess(c, "extraction completed", resp)
}
