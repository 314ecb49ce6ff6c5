// Package notify fans analysis events out to live subscribers, keyed by the
// user that owns the analyzed content.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marinewatch/marine/internal/logger"
)

// Event is one notification pushed to subscribers.
type Event struct {
	Type       string    `json:"type"`
	VideoID    string    `json:"video_id"`
	Flagged    bool      `json:"flagged"`
	MatchScore float64   `json:"match_score"`
	Matches    int       `json:"matches"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Subscription is one live listener for a user key. Events arrive on C in
// publish order; when the subscriber lags behind the buffer, the oldest
// undelivered event is dropped so the channel never blocks a publisher.
type Subscription struct {
	C chan Event

	id      string
	userKey string
}

// Hub routes events to the subscriptions registered for each user key.
// Publishing to a key with no subscribers is a no-op.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	buffer int
}

// NewHub creates a hub whose subscriptions buffer the given number of
// undelivered events.
// Parameters:
//   - buffer: per-subscription channel capacity; non-positive means 16.
// Returns:
//   - *Hub: initialized hub.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string][]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new listener for userKey.
// Parameters:
//   - userKey: routing key, typically the owning user's email.
// Returns:
//   - *Subscription: live subscription; release it with Unsubscribe.
func (h *Hub) Subscribe(userKey string) *Subscription {
	sub := &Subscription{
		C:       make(chan Event, h.buffer),
		id:      uuid.New().String(),
		userKey: userKey,
	}

	h.mu.Lock()
	h.subs[userKey] = append(h.subs[userKey], sub)
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// once per subscription; unknown subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[sub.userKey]
	for i, s := range list {
		if s.id == sub.id {
			h.subs[sub.userKey] = append(list[:i], list[i+1:]...)
			if len(h.subs[sub.userKey]) == 0 {
				delete(h.subs, sub.userKey)
			}
			close(sub.C)
			return
		}
	}
}

// Publish delivers an event to every subscription registered for userKey.
// A full subscription drops its oldest undelivered event to make room, so
// slow consumers lose history instead of stalling analysis runs.
// Parameters:
//   - ctx: used for logging only; delivery never blocks.
//   - userKey: routing key.
//   - event: event to deliver.
// Returns: none.
func (h *Hub) Publish(ctx context.Context, userKey string, event Event) {
	// Delivery happens under the read lock: sends never block, and holding
	// it keeps Unsubscribe's close from racing an in-flight send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.subs[userKey]
	if len(list) == 0 {
		return
	}

	for _, sub := range list {
		for {
			select {
			case sub.C <- event:
			default:
				// Buffer full: evict the oldest and retry. The drain can
				// race a concurrent receive, so loop until the send lands.
				select {
				case <-sub.C:
					logger.CtxWarn(ctx, "Subscriber for %s lagging, dropped oldest event", userKey)
				default:
				}
				continue
			}
			break
		}
	}

	logger.With(logger.Fields{logger.FieldCount: len(list), logger.FieldUserKey: userKey}).
		Debug(ctx, "Published %s event for video %s", event.Type, event.VideoID)
}

// SubscriberCount returns the number of live subscriptions for userKey.
func (h *Hub) SubscriberCount(userKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userKey])
}
