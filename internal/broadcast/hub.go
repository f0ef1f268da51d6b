package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/model"
)

// Lister reads the authoritative listing published after each commit.
type Lister interface {
	List(ctx context.Context) ([]model.Location, error)
}

// Sink mirrors encoded events to an external transport.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
	Name() string
}

// Subscriber is one live observer. Messages are delivered on a bounded buffer;
// a subscriber that cannot keep up is dropped.
type Subscriber struct {
	send chan []byte
	once sync.Once
}

// Messages returns the delivery channel. It is closed when the subscriber is
// removed from the hub.
func (s *Subscriber) Messages() <-chan []byte { return s.send }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans events out to all connected subscribers.
type Hub struct {
	lister     Lister
	sinks      []Sink
	sendBuffer int
	log        *zap.Logger
	metrics    *metrics.Metrics

	publishMu sync.Mutex

	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewHub(lister Lister, sendBuffer int, log *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Hub{
		lister:     lister,
		sinks:      sinks,
		sendBuffer: sendBuffer,
		log:        log,
		metrics:    m,
		subs:       make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. Nothing published earlier is replayed.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub] = struct{}{}
	h.metrics.Subscribers.Set(float64(len(h.subs)))
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		h.metrics.Subscribers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()
	sub.close()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishListing refetches the full listing and publishes it, or publishes a
// DB_ERROR event when the refetch fails. Calls are serialized so subscribers
// see publishes in call order.
func (h *Hub) PublishListing(ctx context.Context) Kind {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	locations, err := h.lister.List(ctx)
	if err != nil {
		h.log.Error("failed to refetch listing for broadcast", zap.Error(err))
		h.publish(ctx, dbErrorEvent())
		return KindError
	}
	h.publish(ctx, updateEvent(locations))
	return KindUpdate
}

// Publish sends an arbitrary event to every subscriber and sink.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.publish(ctx, ev)
}

func (h *Hub) publish(ctx context.Context, ev Event) {
	payload, err := ev.encode()
	if err != nil {
		h.log.Error("failed to encode broadcast event", zap.String("event", string(ev.Kind)), zap.Error(err))
		return
	}
	h.metrics.BroadcastsTotal.WithLabelValues(string(ev.Kind)).Inc()

	var slow []*Subscriber
	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			slow = append(slow, sub)
		}
	}
	delivered := len(h.subs) - len(slow)
	h.mu.RUnlock()

	for _, sub := range slow {
		h.log.Warn("dropping slow live subscriber")
		h.Unsubscribe(sub)
	}

	for _, sink := range h.sinks {
		if err := sink.Send(ctx, payload); err != nil {
			h.log.Warn("broadcast sink failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}

	h.log.Debug("broadcast published", zap.String("event", string(ev.Kind)), zap.Int("subscribers", delivered))
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscriber]struct{})
	h.closed = true
	h.metrics.Subscribers.Set(0)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}
