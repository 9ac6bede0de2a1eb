package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
)

// ErrTestNotFound indicates the test row was not located.
var ErrTestNotFound = errors.New("test not found")

// ErrStudentNotFound indicates the student row was not located.
var ErrStudentNotFound = errors.New("student not found")

// ErrEvaluationNotFound indicates no grading record exists for the pair.
var ErrEvaluationNotFound = errors.New("evaluation not found")

// ErrMissingExtractedText indicates a referenced document has not been
// through extraction yet.
var ErrMissingExtractedText = errors.New("document has no extracted text")

// GradingService drives the full grading flow for one (student, test) pair
// and serves graded results.
type GradingService interface {
	EvaluateStudent(ctx context.Context, req dto.EvaluateRequest) (models.Evaluation, error)
	GetResult(ctx context.Context, studentID, testID uint) (models.Evaluation, error)
	ResultsByTest(ctx context.Context, testID uint) ([]models.Evaluation, error)
	OverrideFeedback(ctx context.Context, studentID, testID uint, feedback string) (models.Evaluation, error)
}

type gradingService struct {
	evaluations repository.EvaluationRepository
	students    repository.StudentRepository
	tests       repository.TestRepository
	docs        repository.DocumentRepository
	evaluator   EvaluationService
	cache       *redis.Client
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	cacheTTL    time.Duration
}

// NewGradingService constructs the grading service. The redis client is
// optional; a nil client disables results caching.
func NewGradingService(
	evaluations repository.EvaluationRepository,
	students repository.StudentRepository,
	tests repository.TestRepository,
	docs repository.DocumentRepository,
	evaluator EvaluationService,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) GradingService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &gradingService{
		evaluations: evaluations,
		students:    students,
		tests:       tests,
		docs:        docs,
		evaluator:   evaluator,
		cache:       cache,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		cacheTTL:    cacheTTL,
	}
}

// EvaluateStudent grades one answer sheet. The grading record is upserted
// through every status transition, so a re-run for the same pair overwrites
// the previous attempt instead of duplicating it.
func (s *gradingService) EvaluateStudent(ctx context.Context, req dto.EvaluateRequest) (models.Evaluation, error) {
	test, err := s.tests.GetByID(ctx, req.TestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrTestNotFound
		}
		return models.Evaluation{}, err
	}

	student, err := s.students.GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrStudentNotFound
		}
		return models.Evaluation{}, err
	}

	questionPaper, err := s.extractedText(test.QuestionPaperDoc, "question paper")
	if err != nil {
		return models.Evaluation{}, err
	}
	answerKey, err := s.extractedText(test.AnswerKeyDoc, "answer key")
	if err != nil {
		return models.Evaluation{}, err
	}

	sheet, err := s.docs.GetByID(ctx, req.AnswerSheetDocID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrDocumentNotFound
		}
		return models.Evaluation{}, err
	}
	studentSheet, err := s.extractedText(&sheet, "answer sheet")
	if err != nil {
		return models.Evaluation{}, err
	}

	record := models.Evaluation{
		StudentID:        req.StudentID,
		TestID:           req.TestID,
		AnswerSheetDocID: &req.AnswerSheetDocID,
		Status:           models.EvaluationStatusProcessing,
	}
	if err := s.evaluations.Upsert(ctx, &record); err != nil {
		return models.Evaluation{}, fmt.Errorf("create grading record: %w", err)
	}

	result, err := s.evaluator.Evaluate(ctx, EvaluationRequest{
		QuestionPaper: questionPaper,
		AnswerKey:     answerKey,
		StudentSheet:  studentSheet,
		StudentName:   student.Name,
		RollNo:        student.RollNo,
	}, func(status models.EvaluationStatus) {
		record.Status = status
		s.persistRecord(ctx, &record)
	})
	if err != nil {
		record.Status = models.EvaluationStatusFailed
		s.persistRecord(ctx, &record)
		return models.Evaluation{}, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("encode evaluation result: %w", err)
	}

	awarded, _ := result.TotalScore()
	record.Status = models.EvaluationStatusCompleted
	record.Score = &awarded
	record.Feedback = result.OverallPerformance.PersonalizedSummary
	record.Result = datatypes.JSON(payload)
	if err := s.evaluations.Upsert(ctx, &record); err != nil {
		return models.Evaluation{}, fmt.Errorf("persist grading record: %w", err)
	}

	s.invalidateCache(ctx, req.TestID)
	s.logger.Info().
		Uint("student_id", req.StudentID).
		Uint("test_id", req.TestID).
		Float64("score", awarded).
		Int("answers", len(result.Answers)).
		Msg("evaluation completed")

	return s.GetResult(ctx, req.StudentID, req.TestID)
}

func (s *gradingService) extractedText(doc *models.Document, role string) (string, error) {
	if doc == nil || !doc.HasExtractedText || doc.ExtractedText == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingExtractedText, role)
	}
	return *doc.ExtractedText, nil
}

func (s *gradingService) GetResult(ctx context.Context, studentID, testID uint) (models.Evaluation, error) {
	evaluation, err := s.evaluations.GetByStudentAndTest(ctx, studentID, testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrEvaluationNotFound
		}
		return models.Evaluation{}, err
	}
	return evaluation, nil
}

// ResultsByTest lists all grading records of a test, served from cache when
// the test's result set has not changed since the last read.
func (s *gradingService) ResultsByTest(ctx context.Context, testID uint) ([]models.Evaluation, error) {
	key := resultsCacheKey(testID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var evaluations []models.Evaluation
			if err := json.Unmarshal(cached, &evaluations); err == nil {
				return evaluations, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("results cache read failed")
		}
	}

	evaluations, err := s.evaluations.FetchByTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(evaluations); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("results cache write failed")
			}
		}
	}

	return evaluations, nil
}

// OverrideFeedback replaces the generated feedback with teacher-written text.
// Input is sanitized; the structured result JSON is left untouched.
func (s *gradingService) OverrideFeedback(ctx context.Context, studentID, testID uint, feedback string) (models.Evaluation, error) {
	evaluation, err := s.GetResult(ctx, studentID, testID)
	if err != nil {
		return models.Evaluation{}, err
	}

	evaluation.UserFeedback = s.sanitizer.Sanitize(feedback)
	if err := s.evaluations.Upsert(ctx, &evaluation); err != nil {
		return models.Evaluation{}, fmt.Errorf("persist feedback override: %w", err)
	}

	s.invalidateCache(ctx, testID)
	return s.GetResult(ctx, studentID, testID)
}

func (s *gradingService) persistRecord(ctx context.Context, record *models.Evaluation) {
	if err := s.evaluations.Upsert(ctx, record); err != nil {
		s.logger.Warn().Err(err).
			Uint("student_id", record.StudentID).
			Uint("test_id", record.TestID).
			Msg("failed to persist grading status")
	}
}

func (s *gradingService) invalidateCache(ctx context.Context, testID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, resultsCacheKey(testID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("test_id", testID).Msg("results cache invalidation failed")
	}
}

func resultsCacheKey(testID uint) string {
	return fmt.Sprintf("vidya:results:test:%d", testID)
}
