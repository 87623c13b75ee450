package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fanout relays notification events between API nodes so a user connected
// to one node sees notifications created on another.
type fanout interface {
	name() string
	send(ctx context.Context, payload []byte) error
	listen(ctx context.Context, deliver func([]byte)) error
}

// buildFanouts picks one relay transport: NATS when connected, Redis
// otherwise. Relaying on both would hand every other node each event twice.
func buildFanouts(redisClient *redis.Client, natsConn *nats.Conn, channelBase string) []fanout {
	switch {
	case channelBase == "":
		return nil
	case natsConn != nil:
		return []fanout{&natsFanout{conn: natsConn, subject: strings.ReplaceAll(channelBase, ":", ".") + ".notifications"}}
	case redisClient != nil:
		return []fanout{&redisFanout{client: redisClient, channel: channelBase + ":notifications"}}
	default:
		return nil
	}
}

type redisFanout struct {
	client  *redis.Client
	channel string
}

func (f *redisFanout) name() string { return "redis" }

func (f *redisFanout) send(ctx context.Context, payload []byte) error {
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// listen blocks until ctx ends or the subscription breaks.
func (f *redisFanout) listen(ctx context.Context, deliver func([]byte)) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		deliver([]byte(msg.Payload))
	}
}

type natsFanout struct {
	conn    *nats.Conn
	subject string
}

func (f *natsFanout) name() string { return "nats" }

func (f *natsFanout) send(_ context.Context, payload []byte) error {
	return f.conn.Publish(f.subject, payload)
}

func (f *natsFanout) listen(ctx context.Context, deliver func([]byte)) error {
	sub, err := f.conn.Subscribe(f.subject, func(msg *nats.Msg) { deliver(msg.Data) })
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Drain()
}

func runFanout(ctx context.Context, f fanout, deliver func([]byte), logger zerolog.Logger) {
	if err := f.listen(ctx, deliver); err != nil {
		logger.Error().Err(err).Str("transport", f.name()).Msg("notification fan-out stopped")
	}
}

const recentEventCapacity = 256

// recentEvents remembers the last relayed notifications by origin node and id
// so a notification arriving more than once is delivered once.
type recentEvents struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	next  int
}

func newRecentEvents() *recentEvents {
	return &recentEvents{seen: make(map[string]struct{}, recentEventCapacity)}
}

// firstSighting records key and reports whether it was new. The oldest key
// is forgotten once the capacity is reached.
func (r *recentEvents) firstSighting(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return false
	}
	if len(r.order) < recentEventCapacity {
		r.order = append(r.order, key)
	} else {
		delete(r.seen, r.order[r.next])
		r.order[r.next] = key
		r.next = (r.next + 1) % recentEventCapacity
	}
	r.seen[key] = struct{}{}
	return true
}
