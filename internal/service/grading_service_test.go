package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
)

type fakeEvaluator struct {
	result models.EvaluationResult
	err    error
	calls  int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req EvaluationRequest, onStatus StatusFunc) (models.EvaluationResult, error) {
	f.calls++
	if onStatus != nil {
		onStatus(models.EvaluationStatusProcessing)
		if f.err != nil {
			onStatus(models.EvaluationStatusFailed)
		} else {
			onStatus(models.EvaluationStatusCompleted)
		}
	}
	if f.err != nil {
		return models.EvaluationResult{}, f.err
	}
	result := f.result
	result.StudentName = req.StudentName
	return result, nil
}

type gradingFixture struct {
	db      *gorm.DB
	svc     GradingService
	student models.Student
	test    models.Test
	sheet   models.Document
}

func setupGrading(t *testing.T, evaluator EvaluationService, cache *redis.Client) gradingFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Document{},
		&models.Test{},
		&models.Evaluation{},
	))

	extracted := func(text string, docType models.DocumentType) models.Document {
		doc := models.Document{
			PublicID:         "doc-" + string(docType),
			Title:            string(docType),
			Type:             docType,
			FileURL:          "https://cdn.example/" + string(docType),
			ExtractionStatus: models.ExtractionStatusCompleted,
			ExtractedText:    &text,
			HasExtractedText: true,
		}
		require.NoError(t, db.Create(&doc).Error)
		return doc
	}

	paper := extracted("Q1. What is inertia? (2 marks)", models.DocumentTypeQuestionPaper)
	key := extracted("Q1. Resistance to change in motion.", models.DocumentTypeAnswerKey)
	sheet := extracted("Q1. A body resists changes to its motion.", models.DocumentTypeStudentSheet)

	student := models.Student{Name: "Asha Verma", Email: "asha@example.com", RollNo: "12", Class: "10A"}
	require.NoError(t, db.Create(&student).Error)

	test := models.Test{
		Title:              "Midterm Physics",
		Class:              "10A",
		MaxMarks:           50,
		QuestionPaperDocID: &paper.ID,
		AnswerKeyDocID:     &key.ID,
	}
	require.NoError(t, db.Create(&test).Error)

	svc := NewGradingService(
		repository.NewEvaluationRepository(db),
		repository.NewStudentRepository(db),
		repository.NewTestRepository(db),
		repository.NewDocumentRepository(db),
		evaluator,
		cache,
		time.Minute,
		zerolog.Nop(),
	)

	return gradingFixture{db: db, svc: svc, student: student, test: test, sheet: sheet}
}

func gradedResult() models.EvaluationResult {
	return models.EvaluationResult{
		TotalQuestionsDetected: 1,
		Answers: []models.AnswerRecord{
			{QuestionNo: 1, Score: models.ScorePair{2, 2}, AnswerMatches: true},
		},
		OverallPerformance: models.OverallPerformance{PersonalizedSummary: "Strong grasp of mechanics."},
	}
}

func TestEvaluateStudentPersistsCompletedRecord(t *testing.T) {
	evaluator := &fakeEvaluator{result: gradedResult()}
	fx := setupGrading(t, evaluator, nil)

	record, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID:           fx.test.ID,
		StudentID:        fx.student.ID,
		AnswerSheetDocID: fx.sheet.ID,
	})
	require.NoError(t, err)

	require.Equal(t, models.EvaluationStatusCompleted, record.Status)
	require.NotNil(t, record.Score)
	require.Equal(t, 2.0, *record.Score)
	require.Equal(t, "Strong grasp of mechanics.", record.Feedback)
	require.NotEmpty(t, record.Result)
	require.Equal(t, fx.student.Name, record.Student.Name)
}

func TestEvaluateStudentReRunUpdatesInPlace(t *testing.T) {
	evaluator := &fakeEvaluator{result: gradedResult()}
	fx := setupGrading(t, evaluator, nil)
	req := dto.EvaluateRequest{TestID: fx.test.ID, StudentID: fx.student.ID, AnswerSheetDocID: fx.sheet.ID}

	_, err := fx.svc.EvaluateStudent(context.Background(), req)
	require.NoError(t, err)
	_, err = fx.svc.EvaluateStudent(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, evaluator.calls)

	var count int64
	require.NoError(t, fx.db.Model(&models.Evaluation{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "re-grading must overwrite, not duplicate")
}

func TestEvaluateStudentRequiresExtractedText(t *testing.T) {
	fx := setupGrading(t, &fakeEvaluator{result: gradedResult()}, nil)

	raw := models.Document{
		PublicID: "doc-raw", Title: "raw sheet", Type: models.DocumentTypeStudentSheet,
		FileURL: "https://cdn.example/raw", ExtractionStatus: models.ExtractionStatusPending,
	}
	require.NoError(t, fx.db.Create(&raw).Error)

	_, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID:           fx.test.ID,
		StudentID:        fx.student.ID,
		AnswerSheetDocID: raw.ID,
	})
	require.ErrorIs(t, err, ErrMissingExtractedText)
}

func TestEvaluateStudentUnknownTest(t *testing.T) {
	fx := setupGrading(t, &fakeEvaluator{result: gradedResult()}, nil)

	_, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID: fx.test.ID + 99, StudentID: fx.student.ID, AnswerSheetDocID: fx.sheet.ID,
	})
	require.ErrorIs(t, err, ErrTestNotFound)
}

func TestEvaluateStudentFailureMarksRecordFailed(t *testing.T) {
	evaluator := &fakeEvaluator{err: ErrEvaluationFailed}
	fx := setupGrading(t, evaluator, nil)

	_, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID: fx.test.ID, StudentID: fx.student.ID, AnswerSheetDocID: fx.sheet.ID,
	})
	require.ErrorIs(t, err, ErrEvaluationFailed)

	record, err := fx.svc.GetResult(context.Background(), fx.student.ID, fx.test.ID)
	require.NoError(t, err)
	require.Equal(t, models.EvaluationStatusFailed, record.Status)
}

func TestResultsByTestServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	evaluator := &fakeEvaluator{result: gradedResult()}
	fx := setupGrading(t, evaluator, cache)

	_, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID: fx.test.ID, StudentID: fx.student.ID, AnswerSheetDocID: fx.sheet.ID,
	})
	require.NoError(t, err)

	first, err := fx.svc.ResultsByTest(context.Background(), fx.test.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A row inserted behind the service's back stays invisible until the
	// cache entry expires or is invalidated.
	other := models.Student{Name: "Ravi Kumar", Email: "ravi@example.com", Class: "10A"}
	require.NoError(t, fx.db.Create(&other).Error)
	require.NoError(t, fx.db.Create(&models.Evaluation{
		StudentID: other.ID, TestID: fx.test.ID, Status: models.EvaluationStatusPending,
	}).Error)

	cached, err := fx.svc.ResultsByTest(context.Background(), fx.test.ID)
	require.NoError(t, err)
	require.Len(t, cached, 1)

	mr.FastForward(2 * time.Minute)

	fresh, err := fx.svc.ResultsByTest(context.Background(), fx.test.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
}

func TestOverrideFeedbackSanitizesAndInvalidatesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	evaluator := &fakeEvaluator{result: gradedResult()}
	fx := setupGrading(t, evaluator, cache)

	_, err := fx.svc.EvaluateStudent(context.Background(), dto.EvaluateRequest{
		TestID: fx.test.ID, StudentID: fx.student.ID, AnswerSheetDocID: fx.sheet.ID,
	})
	require.NoError(t, err)

	_, err = fx.svc.ResultsByTest(context.Background(), fx.test.ID)
	require.NoError(t, err)

	record, err := fx.svc.OverrideFeedback(context.Background(), fx.student.ID, fx.test.ID,
		`<script>alert(1)</script><b>Excellent improvement</b>`)
	require.NoError(t, err)
	require.NotContains(t, record.UserFeedback, "<script>")
	require.Contains(t, record.UserFeedback, "Excellent improvement")

	results, err := fx.svc.ResultsByTest(context.Background(), fx.test.ID)
	require.NoError(t, err)
	require.Equal(t, record.UserFeedback, results[0].UserFeedback)
}

func TestOverrideFeedbackUnknownPair(t *testing.T) {
	fx := setupGrading(t, &fakeEvaluator{result: gradedResult()}, nil)

	_, err := fx.svc.OverrideFeedback(context.Background(), fx.student.ID, fx.test.ID, "n/a")
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}
