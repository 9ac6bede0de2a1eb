package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/vidya-labs/vidya-go-api/internal/dto"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
	"github.com/vidya-labs/vidya-go-api/internal/utils"
)

// RosterHandler manages students and tests, the two entities an evaluation
// joins.
type RosterHandler struct {
	students  repository.StudentRepository
	tests     repository.TestRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(students repository.StudentRepository, tests repository.TestRepository, validator *validator.Validate, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		students:  students,
		tests:     tests,
		validator: validator,
		logger:    logger.With().Str("component", "roster_handler").Logger(),
	}
}

// RegisterStudents wires student routes.
func (h *RosterHandler) RegisterStudents(router fiber.Router) {
	router.Post("", h.createStudent)
	router.Get("", h.listStudents)
}

// RegisterTests wires test routes.
func (h *RosterHandler) RegisterTests(router fiber.Router) {
	router.Post("", h.createTest)
	router.Get("", h.listTests)
}

func (h *RosterHandler) createStudent(c *fiber.Ctx) error {
	var req dto.StudentCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	student := models.Student{
		Name:   req.Name,
		Email:  req.Email,
		RollNo: req.RollNo,
		Class:  req.Class,
	}
	if err := h.students.Create(requestContext(c), &student); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create student")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create student")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student created", student)
}

func (h *RosterHandler) listStudents(c *fiber.Ctx) error {
	students, err := h.students.List(requestContext(c), c.Query("class"))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list students")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list students")
	}

	return utils.SendSuccess(c, "students retrieved", students)
}

func (h *RosterHandler) createTest(c *fiber.Ctx) error {
	var req dto.TestCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	test := models.Test{
		Title:              req.Title,
		Subject:            req.Subject,
		Class:              req.Class,
		MaxMarks:           req.MaxMarks,
		QuestionPaperDocID: req.QuestionPaperDocID,
		AnswerKeyDocID:     req.AnswerKeyDocID,
	}
	if err := h.tests.Create(requestContext(c), &test); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create test")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create test")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test created", test)
}

func (h *RosterHandler) listTests(c *fiber.Ctx) error {
	tests, err := h.tests.List(requestContext(c), c.Query("class"))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list tests")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list tests")
	}

	return utils.SendSuccess(c, "tests retrieved", tests)
}
