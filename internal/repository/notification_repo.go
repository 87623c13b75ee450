package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/models"
)

const (
	defaultNotificationPage = 50
	maxNotificationPage     = 100
)

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uint, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, id, userID uint) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ListByUser returns the newest notifications first.
func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, filter NotificationFilter) ([]models.Notification, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxNotificationPage {
		limit = defaultNotificationPage
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Where(map[string]interface{}{"user_id": userID})
	if filter.UnreadOnly {
		query = query.Where(map[string]interface{}{"read": false})
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where(map[string]interface{}{"user_id": userID, "read": false}).
		Count(&count).Error
	return count, err
}

// MarkRead flags one of the user's notifications as read. Notifications of
// other users are reported as gorm.ErrRecordNotFound.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(map[string]interface{}{"id": id, "user_id": userID}).First(&notification).Error; err != nil {
			return err
		}
		if notification.Read {
			return nil
		}
		if err := tx.Model(&notification).Update("read", true).Error; err != nil {
			return err
		}
		notification.Read = true
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}
