package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/observability"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
	"github.com/vidya-labs/vidya-go-api/pkg/ai"
	"github.com/vidya-labs/vidya-go-api/pkg/raster"
)

// ErrDocumentNotFound indicates the document row was not located.
var ErrDocumentNotFound = errors.New("document not found")

// ErrExtractionFailed indicates no batch produced usable text.
var ErrExtractionFailed = errors.New("extraction produced no usable text")

// ErrTooManyPages indicates the document exceeds the configured page cap.
var ErrTooManyPages = errors.New("document exceeds page limit")

// ProgressFunc observes incremental extraction progress. It is the sole
// in-process mechanism for watching a run; there is no polling API.
type ProgressFunc func(percent float64, partialText string, batchIndex, totalBatches int)

// ExtractOptions tunes one extraction run.
type ExtractOptions struct {
	BatchSize        int
	GroupConcurrency int
	Raster           raster.Options
}

// PageRasterizer renders document bytes into ordered page images.
type PageRasterizer interface {
	Rasterize(ctx context.Context, data []byte, opts raster.Options) ([]raster.PageImage, error)
}

// ExtractionService turns an uploaded document into durable extracted text.
type ExtractionService interface {
	Extract(ctx context.Context, documentID uint, opts ExtractOptions, onProgress ProgressFunc) (string, error)
}

type extractionService struct {
	docs       repository.DocumentRepository
	rasterizer PageRasterizer
	vision     ai.VisionExtractor
	fetcher    BlobFetcher
	events     *nats.Conn
	logger     zerolog.Logger
	tracer     trace.Tracer
	pageCap    int
}

// NewExtractionService constructs the extraction service. The NATS connection
// is optional; a nil connection disables realtime progress events.
func NewExtractionService(
	docs repository.DocumentRepository,
	rasterizer PageRasterizer,
	vision ai.VisionExtractor,
	fetcher BlobFetcher,
	events *nats.Conn,
	pageCap int,
	logger zerolog.Logger,
) ExtractionService {
	if pageCap <= 0 {
		pageCap = 50
	}
	return &extractionService{
		docs:       docs,
		rasterizer: rasterizer,
		vision:     vision,
		fetcher:    fetcher,
		events:     events,
		logger:     logger.With().Str("component", "extraction_service").Logger(),
		tracer:     otel.Tracer("github.com/vidya-labs/vidya-go-api/internal/service/extraction"),
		pageCap:    pageCap,
	}
}

// batchResult carries a structured per-batch outcome. Failures are only
// rendered to a human-readable placeholder at final text assembly so that
// downstream logic can tell real text from error filler.
type batchResult struct {
	index int
	text  string
	err   error
}

func (b batchResult) render() string {
	if b.err != nil {
		return fmt.Sprintf("[Error processing batch %d]", b.index+1)
	}
	return b.text
}

// Extract runs the full pipeline for one document: fetch bytes, rasterize,
// batch the pages through the vision model and persist text progressively so
// a crashed or refreshed caller never loses completed batches. Callers must
// serialize runs per document.
func (s *extractionService) Extract(ctx context.Context, documentID uint, opts ExtractOptions, onProgress ProgressFunc) (string, error) {
	ctx, span := s.tracer.Start(ctx, "extraction.run", trace.WithAttributes(
		attribute.Int64("document_id", int64(documentID)),
		attribute.Int("batch_size", opts.BatchSize),
		attribute.Int("group_concurrency", opts.GroupConcurrency),
	))
	defer span.End()

	start := time.Now()
	status := models.ExtractionStatusFailed
	defer func() {
		observability.ExtractionDuration().WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
	}()

	document, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}

	if opts.BatchSize < 1 || opts.BatchSize > 10 {
		opts.BatchSize = 3
	}
	if opts.GroupConcurrency < 1 {
		opts.GroupConcurrency = 1
	}

	s.persist(ctx, document.ID, repository.ExtractionUpdate{Status: models.ExtractionStatusProcessing})

	data, err := s.fetcher.Fetch(ctx, document.FileURL)
	if err != nil {
		s.fail(ctx, document, span, err, "blob fetch failed")
		return "", err
	}

	pages, err := s.rasterizer.Rasterize(ctx, data, opts.Raster)
	if err != nil {
		s.fail(ctx, document, span, err, "rasterization failed")
		return "", err
	}

	if len(pages) > s.pageCap {
		err := fmt.Errorf("%w: %d pages, cap %d", ErrTooManyPages, len(pages), s.pageCap)
		s.fail(ctx, document, span, err, "page cap exceeded")
		return "", err
	}

	span.SetAttributes(attribute.Int("pages", len(pages)))

	batches := splitPages(pages, opts.BatchSize)
	hint := documentHint(document.Type)

	var results []batchResult
	if opts.GroupConcurrency > 1 {
		results = s.runConcurrent(ctx, document, batches, hint, opts.GroupConcurrency, onProgress)
	} else {
		results = s.runSequential(ctx, document, batches, hint, onProgress)
	}

	finalText, usable, failed := assemble(results)
	meta := &models.ExtractionMetadata{
		PageCount:        len(pages),
		BatchSize:        opts.BatchSize,
		GroupConcurrency: opts.GroupConcurrency,
		FailedBatches:    failed,
		CompletedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	if usable == 0 {
		s.persist(ctx, document.ID, repository.ExtractionUpdate{
			Status:   models.ExtractionStatusFailed,
			Text:     &finalText,
			Metadata: meta,
		})
		span.RecordError(ErrExtractionFailed)
		span.SetStatus(codes.Error, "no usable text")
		s.publishProgress(document, 100, len(batches), len(batches), models.ExtractionStatusFailed)
		return "", ErrExtractionFailed
	}

	hasText := true
	s.persist(ctx, document.ID, repository.ExtractionUpdate{
		Status:   models.ExtractionStatusCompleted,
		Text:     &finalText,
		HasText:  &hasText,
		Metadata: meta,
	})
	s.publishProgress(document, 100, len(batches), len(batches), models.ExtractionStatusCompleted)

	status = models.ExtractionStatusCompleted
	s.logger.Info().
		Uint("document_id", document.ID).
		Int("pages", len(pages)).
		Int("batches", len(batches)).
		Int("failed_batches", len(failed)).
		Msg("extraction completed")

	return finalText, nil
}

// runSequential processes batches strictly in page order.
func (s *extractionService) runSequential(ctx context.Context, document models.Document, batches [][]raster.PageImage, hint ai.DocumentHint, onProgress ProgressFunc) []batchResult {
	results := make([]batchResult, 0, len(batches))

	for i, batch := range batches {
		results = append(results, s.extractBatch(ctx, i, batch, hint))
		s.checkpoint(ctx, document, results, i, len(batches), onProgress)
	}

	return results
}

// runConcurrent fans batches out with bounded concurrency. Ordering is
// enforced at merge time by original batch index, and partial text is only
// persisted for the completed prefix so persisted state never jumps ahead of
// an unfinished batch.
func (s *extractionService) runConcurrent(ctx context.Context, document models.Document, batches [][]raster.PageImage, hint ai.DocumentHint, concurrency int, onProgress ProgressFunc) []batchResult {
	results := make([]batchResult, len(batches))
	done := make([]bool, len(batches))
	var mu sync.Mutex

	// checkpointMu serializes persistence and lastPersisted keeps it
	// monotonic: a shorter-prefix snapshot arriving late must never overwrite
	// a longer one already written.
	var checkpointMu sync.Mutex
	lastPersisted := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			result := s.extractBatch(gctx, i, batch, hint)

			mu.Lock()
			results[i] = result
			done[i] = true
			prefix := 0
			for prefix < len(done) && done[prefix] {
				prefix++
			}
			snapshot := make([]batchResult, prefix)
			copy(snapshot, results[:prefix])
			mu.Unlock()

			if prefix > 0 {
				checkpointMu.Lock()
				if prefix > lastPersisted {
					lastPersisted = prefix
					s.checkpoint(ctx, document, snapshot, i, len(batches), onProgress)
				}
				checkpointMu.Unlock()
			}
			return nil
		})
	}

	// Workers never return errors; per-batch failures live in results.
	_ = g.Wait()

	return results
}

func (s *extractionService) extractBatch(ctx context.Context, index int, batch []raster.PageImage, hint ai.DocumentHint) batchResult {
	images := make([]string, len(batch))
	for i, page := range batch {
		images[i] = page.DataURI
	}

	text, err := s.vision.ExtractText(ctx, images, hint)
	if err != nil {
		observability.ExtractionBatches().WithLabelValues("failed").Inc()
		s.logger.Warn().Err(err).Int("batch", index+1).Msg("batch extraction failed, continuing")
		return batchResult{index: index, err: err}
	}

	observability.ExtractionBatches().WithLabelValues("ok").Inc()
	return batchResult{index: index, text: renumberPages(text, batch)}
}

// checkpoint persists the join of all processed batches and notifies
// observers. Persistence failures are logged, never escalated: losing a
// progress write must not lose extracted text, which is overwritten on the
// next batch or the final write.
func (s *extractionService) checkpoint(ctx context.Context, document models.Document, processed []batchResult, batchIndex, totalBatches int, onProgress ProgressFunc) {
	partial := joinResults(processed)
	s.persist(ctx, document.ID, repository.ExtractionUpdate{
		Status: models.ExtractionStatusProcessing,
		Text:   &partial,
	})

	percent := float64(len(processed)) / float64(totalBatches) * 100
	s.publishProgress(document, percent, batchIndex+1, totalBatches, models.ExtractionStatusProcessing)

	if onProgress != nil {
		onProgress(percent, partial, batchIndex, totalBatches)
	}
}

func (s *extractionService) persist(ctx context.Context, documentID uint, update repository.ExtractionUpdate) {
	if err := s.docs.UpdateExtraction(ctx, documentID, update); err != nil {
		s.logger.Warn().Err(err).Uint("document_id", documentID).Msg("failed to persist extraction progress")
	}
}

func (s *extractionService) fail(ctx context.Context, document models.Document, span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.logger.Error().Err(err).Uint("document_id", document.ID).Msg(msg)
	s.persist(ctx, document.ID, repository.ExtractionUpdate{Status: models.ExtractionStatusFailed})
	s.publishProgress(document, 0, 0, 0, models.ExtractionStatusFailed)
}

// progressEvent is the payload published on the document's progress subject.
type progressEvent struct {
	DocumentID   string                  `json:"document_id"`
	Percent      float64                 `json:"percent"`
	BatchIndex   int                     `json:"batch_index"`
	TotalBatches int                     `json:"total_batches"`
	Status       models.ExtractionStatus `json:"status"`
	SentAt       time.Time               `json:"sent_at"`
}

// ProgressSubject names the NATS subject carrying one document's progress.
func ProgressSubject(publicID string) string {
	return fmt.Sprintf("vidya.documents.%s.progress", publicID)
}

func (s *extractionService) publishProgress(document models.Document, percent float64, batchIndex, totalBatches int, status models.ExtractionStatus) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(progressEvent{
		DocumentID:   document.PublicID,
		Percent:      percent,
		BatchIndex:   batchIndex,
		TotalBatches: totalBatches,
		Status:       status,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := s.events.Publish(ProgressSubject(document.PublicID), payload); err != nil {
		observability.ProgressPublishesDropped().Inc()
		s.logger.Warn().Err(err).Str("document", document.PublicID).Msg("failed to publish progress event")
	}
}

// splitPages partitions pages into consecutive batches of batchSize.
func splitPages(pages []raster.PageImage, batchSize int) [][]raster.PageImage {
	var batches [][]raster.PageImage
	for start := 0; start < len(pages); start += batchSize {
		end := start + batchSize
		if end > len(pages) {
			end = len(pages)
		}
		batches = append(batches, pages[start:end])
	}
	return batches
}

// renumberPages rewrites the model's request-relative page markers to the
// document-absolute page numbers of the batch. Replacement runs highest
// marker first: absolute numbers are always >= relative ones, so a rewritten
// marker can never collide with one still pending.
func renumberPages(text string, batch []raster.PageImage) string {
	for i := len(batch) - 1; i >= 0; i-- {
		text = strings.ReplaceAll(text, ai.PageMarker(i+1), ai.PageMarker(batch[i].Page))
	}
	return text
}

// joinResults renders results to text in batch-index order.
func joinResults(results []batchResult) string {
	ordered := make([]batchResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	parts := make([]string, len(ordered))
	for i, r := range ordered {
		parts[i] = r.render()
	}
	return strings.Join(parts, "\n\n")
}

// assemble renders the final text and reports how many batches produced real
// text and which failed.
func assemble(results []batchResult) (string, int, []int) {
	usable := 0
	var failed []int
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.index+1)
			continue
		}
		if strings.TrimSpace(r.text) != "" {
			usable++
		}
	}
	return joinResults(results), usable, failed
}

func documentHint(t models.DocumentType) ai.DocumentHint {
	switch t {
	case models.DocumentTypeAnswerKey:
		return ai.HintAnswerKey
	case models.DocumentTypeStudentSheet:
		return ai.HintStudentSheet
	case models.DocumentTypeChapterMaterial:
		return ai.HintChapterMaterial
	default:
		return ai.HintQuestionPaper
	}
}
