package service

import (
	"sync"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/observability"
)

const subscriberBuffer = 16

// subscriberHub keeps the open notification streams of this node, keyed by
// user. A stream whose buffer is full misses the notification rather than
// blocking the publisher.
type subscriberHub struct {
	mu      sync.RWMutex
	streams map[uint]map[chan dto.NotificationResponse]struct{}
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{streams: make(map[uint]map[chan dto.NotificationResponse]struct{})}
}

// attach opens a stream for userID. The returned release func is idempotent
// and closes the stream.
func (h *subscriberHub) attach(userID uint) (<-chan dto.NotificationResponse, func()) {
	stream := make(chan dto.NotificationResponse, subscriberBuffer)

	h.mu.Lock()
	if h.streams[userID] == nil {
		h.streams[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	h.streams[userID][stream] = struct{}{}
	h.mu.Unlock()
	observability.WebsocketClients().Inc()

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.streams[userID], stream)
			if len(h.streams[userID]) == 0 {
				delete(h.streams, userID)
			}
			close(stream)
			h.mu.Unlock()
			observability.WebsocketClients().Dec()
		})
	}
	return stream, release
}

func (h *subscriberHub) deliver(notification dto.NotificationResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for stream := range h.streams[notification.UserID] {
		select {
		case stream <- notification:
		default:
			observability.RecordNotification("dropped")
		}
	}
}
