package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/models"
	"github.com/noah-isme/explab-api/internal/observability"
	"github.com/noah-isme/explab-api/internal/repository"
)

var (
	// ErrNotificationNotFound indicates the notification does not exist for the user.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrEmptyNotification indicates nothing is left of the message after sanitization.
	ErrEmptyNotification = errors.New("notification message empty after sanitization")
)

// NotificationService stores per-user notifications and pushes them to the
// user's open streams on every API node.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	PublishBatch(ctx context.Context, payload dto.NotificationBatchRequest) (dto.NotificationBatchResult, error)
	List(ctx context.Context, userID uint, query dto.NotificationListQuery) (dto.NotificationList, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	Subscribe(userID uint) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo      repository.NotificationRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	hub       *subscriberHub
	fanouts   []fanout
	recent    *recentEvents
	nodeID    string
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// notificationEvent is the fan-out wire format. Source lets a node skip its
// own echoes.
type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs the service. redisClient and natsConn are
// optional; with neither, streams only see notifications created locally.
// When both are given the notifications are relayed over NATS.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		hub:       newSubscriberHub(),
		fanouts:   buildFanouts(redisClient, natsConn, channelBase),
		recent:    newRecentEvents(),
		nodeID:    uuid.NewString(),
		tracer:    otel.Tracer("github.com/noah-isme/explab-api/internal/service/notification"),
		logger:    logger.With().Str("component", "notification_service").Logger(),
	}
}

// Start listens on the configured fan-out transport until ctx ends.
func (s *notificationService) Start(ctx context.Context) {
	for _, f := range s.fanouts {
		go runFanout(ctx, f, s.handleEvent, s.logger)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.NotificationResponse{}, ErrEmptyNotification
	}

	ctx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(payload.UserID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	record := models.Notification{UserID: payload.UserID, Type: payload.Type, Message: message}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		observability.RecordNotification("failed")
		return dto.NotificationResponse{}, err
	}

	notification := dto.NewNotificationResponse(record)
	s.hub.deliver(notification)
	s.relay(ctx, notification)

	observability.RecordNotification("published")
	return notification, nil
}

// PublishBatch notifies every recipient independently; a failing recipient is
// reported in the result without stopping the rest.
func (s *notificationService) PublishBatch(ctx context.Context, payload dto.NotificationBatchRequest) (dto.NotificationBatchResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationBatchResult{}, err
	}

	result := dto.NotificationBatchResult{Failed: []uint{}}
	for _, userID := range payload.UserIDs {
		request := dto.NotificationCreateRequest{UserID: userID, Type: payload.Type, Message: payload.Message}
		if _, err := s.Publish(ctx, request); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", userID).Msg("batch notification not delivered")
			result.Failed = append(result.Failed, userID)
			continue
		}
		result.Delivered++
	}
	return result, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, query dto.NotificationListQuery) (dto.NotificationList, error) {
	if userID == 0 {
		return dto.NotificationList{}, errors.New("user id is required")
	}

	filter := repository.NotificationFilter{Limit: query.Limit, Offset: query.Offset, UnreadOnly: query.UnreadOnly}
	rows, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return dto.NotificationList{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return dto.NotificationList{}, err
	}

	return dto.NotificationList{Items: dto.NewNotificationResponseSlice(rows), Unread: unread}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.id", int64(id)),
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	record, err := s.repo.MarkRead(ctx, id, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return dto.NotificationResponse{}, ErrNotificationNotFound
	case err != nil:
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(record), nil
}

func (s *notificationService) Subscribe(userID uint) (<-chan dto.NotificationResponse, func()) {
	return s.hub.attach(userID)
}

// relay forwards a locally created notification to the other nodes. Relay
// failures are logged only; the notification is already stored.
func (s *notificationService) relay(ctx context.Context, notification dto.NotificationResponse) {
	if len(s.fanouts) == 0 {
		return
	}

	payload, err := json.Marshal(notificationEvent{Source: s.nodeID, Notification: notification, SentAt: time.Now().UTC()})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode notification event")
		return
	}

	for _, f := range s.fanouts {
		if err := f.send(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("transport", f.name()).Msg("notification relay failed")
		}
	}
}

// handleEvent delivers a notification relayed by another node to local
// streams. A notification already delivered from the same node is dropped.
func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	if id := event.Notification.ID; id != 0 {
		if !s.recent.firstSighting(event.Source + ":" + strconv.FormatUint(uint64(id), 10)) {
			return
		}
	}

	if event.Notification.Type == "" {
		event.Notification.Type = models.NotificationTypeGeneric
	}
	s.hub.deliver(event.Notification)
}
