package dto

import (
	"time"

	"github.com/noah-isme/explab-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID  uint   `json:"user_id" validate:"required,gt=0"`
	Type    string `json:"type" validate:"required,max=64"`
	Message string `json:"message" validate:"required,max=2000"`
}

// NotificationListQuery pages through a user's notifications.
type NotificationListQuery struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// NotificationList is one page of notifications plus the unread total.
type NotificationList struct {
	Items  []NotificationResponse `json:"items"`
	Unread int64                  `json:"unread"`
}

// NotificationBatchRequest sends the same message to several users.
type NotificationBatchRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1,max=500,dive,gt=0"`
	Type    string `json:"type" validate:"required,max=64"`
	Message string `json:"message" validate:"required,max=2000"`
}

// NotificationBatchResult reports which recipients could not be notified.
type NotificationBatchResult struct {
	Delivered int    `json:"delivered"`
	Failed    []uint `json:"failed"`
}

// NotificationResponse serializes a notification for clients.
type NotificationResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts notification models into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
