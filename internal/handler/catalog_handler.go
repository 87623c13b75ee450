package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/internal/utils"
)

// CatalogHandler exposes experiment and task lookups.
type CatalogHandler struct {
	service service.CatalogService
	logger  zerolog.Logger
}

// NewCatalogHandler builds a new catalog handler.
func NewCatalogHandler(service service.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger.With().Str("component", "catalog_handler").Logger(),
	}
}

// Register wires the handler routes into the router groups.
func (h *CatalogHandler) Register(experiments, tasks fiber.Router) {
	experiments.Get("/:id", h.experiment)
	tasks.Get("/:taskId", h.task)
}

func (h *CatalogHandler) experiment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	experiment, err := h.service.GetExperiment(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "experiment retrieved", experiment)
}

func (h *CatalogHandler) task(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "taskId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	task, err := h.service.GetTask(requestContext(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "task retrieved", task)
}
