package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/middleware"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	if value == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// subjectUser resolves whose records a listing reads: the caller by default,
// or the user named by ?user_id= when the caller is staff.
func subjectUser(c *fiber.Ctx) (uint, *fiber.Error) {
	userID := userIDFromContext(c)
	if userID == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "user not authenticated")
	}

	target, err := parseQueryUint(c, "user_id")
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if target == nil || *target == userID {
		return userID, nil
	}
	if !middleware.IsStaff(userRoleFromContext(c)) {
		return 0, fiber.NewError(fiber.StatusForbidden, "forbidden")
	}
	return *target, nil
}

// requestContext returns the request context carrying the correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Namespace()] = fieldErr.Tag()
	}
	return details
}

// respondError maps service errors onto HTTP responses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	case errors.Is(err, service.ErrTaskNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrExperimentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "experiment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrNotificationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "notification not found")
	case errors.Is(err, service.ErrSubmissionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrExperimentMismatch),
		errors.Is(err, service.ErrEmptySubmission),
		errors.Is(err, service.ErrInvalidAnswer),
		errors.Is(err, service.ErrInvalidFileName),
		errors.Is(err, service.ErrUnsupportedFileType),
		errors.Is(err, service.ErrEmptyNotification):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoSubmittedFiles):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrFileUploadFailed):
		requestLogger(logger, c).Error().Err(err).Msg("object store upload failed")
		return utils.SendError(c, fiber.StatusBadGateway, "file upload failed")
	case errors.Is(err, service.ErrReviewerUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "request timed out")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
