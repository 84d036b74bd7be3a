// Package hub broadcasts row change events to live dashboard clients.
//
// With a Redis client the hub publishes on a pub/sub channel, so every
// API instance sees every write. Without one it fans events out to the
// subscribers of this process only.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deppfellow/erp-crud/internal/row"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Channel is the Redis pub/sub channel events travel on.
const Channel = "erpcrud:updates"

// subscriberBuffer is how many events a slow subscriber may fall behind
// before new events are dropped for it.
const subscriberBuffer = 32

// Event describes one successful write.
type Event struct {
	Table     string    `json:"table"`
	Operation string    `json:"operation"`
	Row       *row.Row  `json:"row,omitempty"`
	At        time.Time `json:"at"`
}

type Hub struct {
	rdb    *redis.Client
	logger *zerolog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// New returns a hub. rdb may be nil.
func New(rdb *redis.Client, logger *zerolog.Logger) *Hub {
	return &Hub{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Distributed reports whether events go through Redis.
func (h *Hub) Distributed() bool {
	return h.rdb != nil
}

func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	if h.rdb == nil {
		h.fanOut(ev)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := h.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel, err)
	}
	return nil
}

// Subscribe streams events until ctx is cancelled, then closes the
// returned channel.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event, subscriberBuffer)

	if h.rdb == nil {
		h.mu.Lock()
		h.subs[out] = struct{}{}
		h.mu.Unlock()

		go func() {
			<-ctx.Done()
			h.mu.Lock()
			delete(h.subs, out)
			h.mu.Unlock()
			close(out)
		}()
		return out
	}

	ps := h.rdb.Subscribe(ctx, Channel)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (h *Hub) fanOut(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub <- ev:
		default:
			h.logger.Warn().Str("table", ev.Table).Msg("subscriber is behind, dropping event")
		}
	}
}

// Subscribers returns the number of local subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
