package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope of every API reply. Data is always emitted so
// clients can tell an empty result (null) from a missing field.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func reply(c *fiber.Ctx, status int, body APIResponse) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if body.Message == "" {
		body.Message = "success"
		if !body.Success {
			body.Message = "error"
		}
	}
	return c.Status(status).JSON(body)
}

// SendSuccess replies 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return reply(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: message})
}

// SendSuccessWithStatus replies with data under an explicit status, such as
// 201 for created rows or 202 for accepted batches.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return reply(c, status, APIResponse{Success: true, Data: data, Message: message})
}

// OK replies 200 with data plus listing metadata (counts, unread totals).
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return reply(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: message, Meta: meta})
}

// SendError replies with a failure envelope.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail replies with a failure envelope carrying structured details, e.g.
// per-field validation tags.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	return reply(c, status, APIResponse{Message: message, Details: details})
}
