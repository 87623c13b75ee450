package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/internal/utils"
)

// NotificationHandler manages websocket notification streams and CRUD operations.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes. staff guards batch publishing.
func (h *NotificationHandler) Register(router fiber.Router, staff fiber.Handler) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.stream))
	router.Get("/", h.list)
	router.Patch("/:id/read", h.markRead)
	router.Post("/batch", staff, h.batch)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(requestContext(c), userID, dto.NotificationListQuery{
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: c.QueryBool("unread"),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, notifications.Items, "notifications", fiber.Map{"unread": notifications.Unread})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), id, userID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) batch(c *fiber.Ctx) error {
	var payload dto.NotificationBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.PublishBatch(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "notifications sent", result)
}

// stream pushes the user's notifications as JSON text frames until the client
// goes away.
func (h *NotificationHandler) stream(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	logger := h.logger.With().Uint("user_id", userID).Logger()
	notifications, cleanup := h.service.Subscribe(userID)
	defer cleanup()

	// the reader only detects disconnects; clients never send data
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	logger.Debug().Msg("notification websocket connected")
	for {
		select {
		case notification, ok := <-notifications:
			if !ok {
				return
			}
			if err := conn.WriteJSON(notification); err != nil {
				logger.Debug().Err(err).Msg("failed to write notification")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			logger.Debug().Msg("notification websocket disconnected")
			return
		}
	}
}
