package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/handler"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/service"
)

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

type mockGradingService struct {
	record       models.Evaluation
	err          error
	lastRequest  dto.EvaluateRequest
	lastFeedback string
}

func (m *mockGradingService) EvaluateStudent(_ context.Context, req dto.EvaluateRequest) (models.Evaluation, error) {
	m.lastRequest = req
	if m.err != nil {
		return models.Evaluation{}, m.err
	}
	return m.record, nil
}

func (m *mockGradingService) GetResult(context.Context, uint, uint) (models.Evaluation, error) {
	if m.err != nil {
		return models.Evaluation{}, m.err
	}
	return m.record, nil
}

func (m *mockGradingService) ResultsByTest(context.Context, uint) ([]models.Evaluation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.Evaluation{m.record}, nil
}

func (m *mockGradingService) OverrideFeedback(_ context.Context, _, _ uint, feedback string) (models.Evaluation, error) {
	m.lastFeedback = feedback
	if m.err != nil {
		return models.Evaluation{}, m.err
	}
	record := m.record
	record.UserFeedback = feedback
	return record, nil
}

func newGradingApp(svc service.GradingService) *fiber.App {
	app := fiber.New()
	handler.NewGradingHandler(svc, validator.New(), zerolog.New(io.Discard)).Register(app.Group("/api/evaluations"))
	return app
}

func completedRecord() models.Evaluation {
	score := 42.0
	payload, _ := json.Marshal(models.EvaluationResult{StudentName: "Asha", TotalQuestionsDetected: 10})
	return models.Evaluation{
		ID:        1,
		StudentID: 2,
		TestID:    3,
		Status:    models.EvaluationStatusCompleted,
		Score:     &score,
		Feedback:  "solid work",
		Result:    payload,
		Student:   models.Student{Name: "Asha"},
	}
}

func TestGradingHandler_EvaluateSuccess(t *testing.T) {
	svc := &mockGradingService{record: completedRecord()}
	app := newGradingApp(svc)

	payload, _ := json.Marshal(dto.EvaluateRequest{TestID: 3, StudentID: 2, AnswerSheetDocID: 7})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    dto.EvaluationResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, models.EvaluationStatusCompleted, body.Data.Status)
	require.Equal(t, "Asha", body.Data.StudentName)
	require.NotNil(t, body.Data.Result)
	require.Equal(t, 10, body.Data.Result.TotalQuestionsDetected)
	require.Equal(t, uint(7), svc.lastRequest.AnswerSheetDocID)
}

func TestGradingHandler_EvaluateMissingFields(t *testing.T) {
	app := newGradingApp(&mockGradingService{})

	req := httptest.NewRequest(http.MethodPost, "/api/evaluations", bytes.NewReader([]byte(`{"test_id":3}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGradingHandler_EvaluateUnextractedDocument(t *testing.T) {
	app := newGradingApp(&mockGradingService{err: service.ErrMissingExtractedText})

	payload, _ := json.Marshal(dto.EvaluateRequest{TestID: 3, StudentID: 2, AnswerSheetDocID: 7})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGradingHandler_EvaluateTestNotFound(t *testing.T) {
	app := newGradingApp(&mockGradingService{err: service.ErrTestNotFound})

	payload, _ := json.Marshal(dto.EvaluateRequest{TestID: 99, StudentID: 2, AnswerSheetDocID: 7})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGradingHandler_ResultNotFound(t *testing.T) {
	app := newGradingApp(&mockGradingService{err: service.ErrEvaluationNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/evaluations/test/3/student/2", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGradingHandler_ResultsByTest(t *testing.T) {
	app := newGradingApp(&mockGradingService{record: completedRecord()})

	req := httptest.NewRequest(http.MethodGet, "/api/evaluations/test/3", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data []dto.EvaluationResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 1)
	require.Equal(t, uint(3), body.Data[0].TestID)
}

func TestGradingHandler_OverrideFeedback(t *testing.T) {
	svc := &mockGradingService{record: completedRecord()}
	app := newGradingApp(svc)

	payload, _ := json.Marshal(dto.FeedbackOverrideRequest{UserFeedback: "Great progress"})
	req := httptest.NewRequest(http.MethodPut, "/api/evaluations/test/3/student/2/feedback", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Great progress", svc.lastFeedback)
}

func TestGradingHandler_OverrideFeedbackEmptyBody(t *testing.T) {
	app := newGradingApp(&mockGradingService{record: completedRecord()})

	req := httptest.NewRequest(http.MethodPut, "/api/evaluations/test/3/student/2/feedback", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
