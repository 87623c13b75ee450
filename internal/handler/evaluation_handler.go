package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/internal/utils"
)

// EvaluationHandler triggers grading and serves evaluation results.
type EvaluationHandler struct {
	evaluations service.EvaluationService
	reviews     service.ReviewService
	logger      zerolog.Logger
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(evaluations service.EvaluationService, reviews service.ReviewService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		reviews:     reviews,
		logger:      logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register binds the evaluation routes. staff guards the re-grade and review
// endpoints.
func (h *EvaluationHandler) Register(tasks, submissions fiber.Router, staff fiber.Handler) {
	tasks.Post("/:taskId/evaluate", h.evaluate)
	tasks.Get("/:taskId/evaluations", h.history)

	submissions.Get("/:id/evaluation", h.latest)
	submissions.Post("/:id/evaluate", staff, h.evaluateSubmission)
	submissions.Post("/:id/review", staff, h.review)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	taskID, err := parseUintParam(c, "taskId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evaluation, err := h.evaluations.Evaluate(requestContext(c), userID, taskID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission evaluated", evaluation)
}

// history lists the caller's evaluations for a task. Staff may inspect another
// user with ?user_id=.
func (h *EvaluationHandler) history(c *fiber.Ctx) error {
	userID, ferr := subjectUser(c)
	if ferr != nil {
		return utils.SendError(c, ferr.Code, ferr.Message)
	}

	taskID, err := parseUintParam(c, "taskId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.evaluations.History(requestContext(c), userID, taskID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, history, "evaluations retrieved", fiber.Map{"count": len(history)})
}

func (h *EvaluationHandler) latest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evaluation, err := h.evaluations.Latest(requestContext(c), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if evaluation == nil {
		return utils.SendSuccess(c, "submission not evaluated yet", nil)
	}

	return utils.SendSuccess(c, "evaluation retrieved", evaluation)
}

func (h *EvaluationHandler) evaluateSubmission(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evaluation, err := h.evaluations.EvaluateSubmission(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission evaluated", evaluation)
}

func (h *EvaluationHandler) review(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	evaluation, err := h.reviews.Review(requestContext(c), id, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "review recorded", evaluation)
}
