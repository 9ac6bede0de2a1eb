package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/observability"
	"github.com/vidya-labs/vidya-go-api/pkg/ai"
)

// ErrEvaluationFailed indicates every evaluation batch failed.
var ErrEvaluationFailed = errors.New("all evaluation batches failed")

// ErrInvalidShape indicates the model response parsed but is missing
// required fields.
var ErrInvalidShape = errors.New("evaluation response missing required fields")

// envelopeSchema is the minimal shape a parsed evaluation must satisfy
// before normalization runs. Everything else is defaulted, not required.
const envelopeSchema = `{
	"type": "object",
	"required": ["student_name", "answers"],
	"properties": {
		"student_name": {"type": "string"},
		"answers": {"type": "array"}
	}
}`

// StatusFunc observes the lifecycle of one evaluation attempt.
type StatusFunc func(status models.EvaluationStatus)

// EvaluationRequest is the immutable input of one grading run: the three
// pre-extracted texts plus the student's identity fields.
type EvaluationRequest struct {
	QuestionPaper string
	AnswerKey     string
	StudentSheet  string
	StudentName   string
	RollNo        string
}

// EvaluationService grades one student's answer sheet.
type EvaluationService interface {
	Evaluate(ctx context.Context, req EvaluationRequest, onStatus StatusFunc) (models.EvaluationResult, error)
}

type evaluationService struct {
	chat                ai.ChatCompleter
	schema              *jsonschema.Schema
	logger              zerolog.Logger
	tracer              trace.Tracer
	batchSize           int
	singleShotThreshold int
}

// NewEvaluationService constructs the evaluation orchestrator.
func NewEvaluationService(chat ai.ChatCompleter, batchSize, singleShotThreshold int, logger zerolog.Logger) EvaluationService {
	if batchSize <= 0 {
		batchSize = 8
	}
	if singleShotThreshold <= 0 {
		singleShotThreshold = 5
	}
	return &evaluationService{
		chat:                chat,
		schema:              jsonschema.MustCompileString("evaluation.json", envelopeSchema),
		logger:              logger.With().Str("component", "evaluation_service").Logger(),
		tracer:              otel.Tracer("github.com/vidya-labs/vidya-go-api/internal/service/evaluation"),
		batchSize:           batchSize,
		singleShotThreshold: singleShotThreshold,
	}
}

// Evaluate counts the paper's questions, picks a single-shot or batched
// strategy, dispatches the calls and normalizes the merged result. It does
// not persist anything; the caller owns the grading record.
func (s *evaluationService) Evaluate(ctx context.Context, req EvaluationRequest, onStatus StatusFunc) (models.EvaluationResult, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(
		attribute.String("student", req.StudentName),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.EvaluationDuration().Observe(time.Since(start).Seconds())
	}()

	notify := func(status models.EvaluationStatus) {
		if onStatus != nil {
			onStatus(status)
		}
	}

	notify(models.EvaluationStatusProcessing)

	count := s.countQuestions(ctx, req.QuestionPaper)
	span.SetAttributes(attribute.Int("questions_counted", count))

	var (
		result models.EvaluationResult
		err    error
	)

	if count <= s.singleShotThreshold {
		result, err = s.evaluateSingleShot(ctx, req)
	} else {
		result, err = s.evaluateBatched(ctx, req, count)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		notify(models.EvaluationStatusFailed)
		return models.EvaluationResult{}, err
	}

	s.normalize(&result, req)
	notify(models.EvaluationStatusCompleted)

	span.SetAttributes(attribute.Int("answers", len(result.Answers)))
	return result, nil
}

var leadingInt = regexp.MustCompile(`\d+`)

// countQuestions issues the dedicated counting call. The count is a strategy
// heuristic, never ground truth; any failure falls back to a single-shot run.
func (s *evaluationService) countQuestions(ctx context.Context, questionPaper string) int {
	response, err := s.chat.Complete(ctx, ai.QuestionCountSystemPrompt(), ai.QuestionCountUserPrompt(questionPaper), ai.FormatText)
	if err != nil {
		s.logger.Warn().Err(err).Msg("question counting failed, assuming single-shot")
		return 1
	}

	match := leadingInt.FindString(response)
	if match == "" {
		s.logger.Warn().Str("response", truncate(response, 80)).Msg("question count not an integer, assuming single-shot")
		return 1
	}

	count, err := strconv.Atoi(match)
	if err != nil || count < 1 {
		return 1
	}
	return count
}

func (s *evaluationService) evaluateSingleShot(ctx context.Context, req EvaluationRequest) (models.EvaluationResult, error) {
	user := ai.EvaluationUserPrompt(req.QuestionPaper, req.AnswerKey, req.StudentSheet, req.StudentName, req.RollNo, 0, 0)

	raw, err := s.chat.Complete(ctx, ai.EvaluationSystemPrompt(), user, ai.FormatJSON)
	if err != nil {
		observability.EvaluationBatches().WithLabelValues("failed").Inc()
		return models.EvaluationResult{}, fmt.Errorf("single-shot evaluation: %w", err)
	}

	observability.EvaluationBatches().WithLabelValues("ok").Inc()
	return s.parse(raw)
}

// evaluateBatched splits the question range into fixed-size batches and runs
// each as an independent call. Batches execute sequentially to bound cost;
// a failed batch is skipped (its questions are simply missing from the merged
// answers) unless every batch fails.
func (s *evaluationService) evaluateBatched(ctx context.Context, req EvaluationRequest, totalQuestions int) (models.EvaluationResult, error) {
	ranges := questionRanges(totalQuestions, s.batchSize)
	merged := models.EvaluationResult{}
	succeeded := 0

	for _, qr := range ranges {
		user := ai.EvaluationUserPrompt(req.QuestionPaper, req.AnswerKey, req.StudentSheet, req.StudentName, req.RollNo, qr.first, qr.last)

		raw, err := s.chat.Complete(ctx, ai.EvaluationSystemPrompt(), user, ai.FormatJSON)
		if err != nil {
			observability.EvaluationBatches().WithLabelValues("failed").Inc()
			s.logger.Warn().Err(err).Int("first", qr.first).Int("last", qr.last).Msg("evaluation batch failed, skipping")
			continue
		}

		batch, err := s.parse(raw)
		if err != nil {
			observability.EvaluationBatches().WithLabelValues("failed").Inc()
			s.logger.Warn().Err(err).Int("first", qr.first).Int("last", qr.last).Msg("evaluation batch unparseable, skipping")
			continue
		}

		observability.EvaluationBatches().WithLabelValues("ok").Inc()
		succeeded++

		if merged.StudentName == "" {
			merged.StudentName = batch.StudentName
			merged.RollNo = batch.RollNo
		}
		merged.Answers = append(merged.Answers, batch.Answers...)
	}

	if succeeded == 0 {
		return models.EvaluationResult{}, ErrEvaluationFailed
	}

	// The batched path cannot trust batch-local summaries; generic ones are
	// substituted during normalization. Single-shot keeps model output.
	merged.QuestionsBySection = nil
	merged.OverallPerformance = models.OverallPerformance{}

	return merged, nil
}

// parse walks the repair ladder, checks the envelope schema and decodes into
// the typed result. Untyped payloads never travel past this boundary.
func (s *evaluationService) parse(raw string) (models.EvaluationResult, error) {
	repaired, err := ai.RepairJSON(raw)
	if err != nil {
		return models.EvaluationResult{}, err
	}

	var envelope interface{}
	if err := json.Unmarshal(repaired, &envelope); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("decode evaluation: %w", err)
	}

	if err := s.schema.Validate(envelope); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	var result models.EvaluationResult
	if err := json.Unmarshal(repaired, &result); err != nil {
		return models.EvaluationResult{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	return result, nil
}

type questionRange struct {
	first int
	last  int
}

func questionRanges(total, batchSize int) []questionRange {
	var ranges []questionRange
	for first := 1; first <= total; first += batchSize {
		last := first + batchSize - 1
		if last > total {
			last = total
		}
		ranges = append(ranges, questionRange{first: first, last: last})
	}
	return ranges
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
