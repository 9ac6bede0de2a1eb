package handler

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/service"
	"github.com/vidya-labs/vidya-go-api/internal/utils"
)

// GradingHandler handles evaluation and results routes.
type GradingHandler struct {
	grading   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(grading service.GradingService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register wires grading routes.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("", h.evaluate)
	router.Get("/test/:testID", h.resultsByTest)
	router.Get("/test/:testID/student/:studentID", h.result)
	router.Put("/test/:testID/student/:studentID/feedback", h.overrideFeedback)
}

func (h *GradingHandler) evaluate(c *fiber.Ctx) error {
	var req dto.EvaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.grading.EvaluateStudent(requestContext(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTestNotFound),
			errors.Is(err, service.ErrStudentNotFound),
			errors.Is(err, service.ErrDocumentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrMissingExtractedText):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		case errors.Is(err, service.ErrEvaluationFailed):
			return utils.SendError(c, fiber.StatusBadGateway, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("evaluation failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "evaluation failed")
		}
	}

	return utils.SendSuccess(c, "evaluation completed", evaluationResponse(record))
}

func (h *GradingHandler) resultsByTest(c *fiber.Ctx) error {
	testID, err := parseParamUint(c, "testID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	records, err := h.grading.ResultsByTest(requestContext(c), testID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch results")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch results")
	}

	responses := make([]dto.EvaluationResponse, len(records))
	for i, record := range records {
		responses[i] = evaluationResponse(record)
	}

	return utils.SendSuccess(c, "results retrieved", responses)
}

func (h *GradingHandler) result(c *fiber.Ctx) error {
	testID, err := parseParamUint(c, "testID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseParamUint(c, "studentID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.grading.GetResult(requestContext(c), studentID, testID)
	if err != nil {
		if errors.Is(err, service.ErrEvaluationNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "evaluation not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch evaluation")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch evaluation")
	}

	return utils.SendSuccess(c, "evaluation retrieved", evaluationResponse(record))
}

func (h *GradingHandler) overrideFeedback(c *fiber.Ctx) error {
	testID, err := parseParamUint(c, "testID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseParamUint(c, "studentID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.FeedbackOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.grading.OverrideFeedback(requestContext(c), studentID, testID, req.UserFeedback)
	if err != nil {
		if errors.Is(err, service.ErrEvaluationNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "evaluation not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to override feedback")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to override feedback")
	}

	return utils.SendSuccess(c, "feedback updated", evaluationResponse(record))
}

func evaluationResponse(record models.Evaluation) dto.EvaluationResponse {
	resp := dto.EvaluationResponse{
		ID:           record.ID,
		StudentID:    record.StudentID,
		StudentName:  record.Student.Name,
		TestID:       record.TestID,
		Status:       record.Status,
		Score:        record.Score,
		Feedback:     record.Feedback,
		UserFeedback: record.UserFeedback,
		UpdatedAt:    record.UpdatedAt,
	}

	if len(record.Result) > 0 {
		var result models.EvaluationResult
		if err := json.Unmarshal(record.Result, &result); err == nil {
			resp.Result = &result
		}
	}

	return resp
}
