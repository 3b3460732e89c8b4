package realtime

import (
	"sync"

	"crmboard/internal/board/domain"
	"crmboard/pkg/metrics"

	"github.com/rs/zerolog"
)

const defaultBuffer = 64

// Subscription receives the events of one table that pass its filter.
// C is closed when the subscription is closed or dropped for falling behind.
type Subscription struct {
	C <-chan domain.ChangeEvent

	ch     chan domain.ChangeEvent
	id     uint64
	table  string
	filter Filter
	hub    *Hub
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id, false)
}

// Hub is the in-process publish/subscribe point for change events
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	next    uint64
	buffer  int
	metrics *metrics.Metrics
	log     zerolog.Logger
}

type HubOption func(*Hub)

// WithBuffer sets how many events a subscriber may lag behind before it is dropped
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func WithHubLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) { h.log = l.With().Str("component", "realtime_hub").Logger() }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: defaultBuffer,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers interest in table events passing filter
func (h *Hub) Subscribe(table string, filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	ch := make(chan domain.ChangeEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch, id: h.next, table: table, filter: filter, hub: h}
	h.subs[sub.id] = sub
	if h.metrics != nil {
		h.metrics.RealtimeSubscribers.Inc()
	}
	return sub
}

// Publish delivers ev to every matching subscriber without blocking.
// Subscribers whose buffer is full are dropped; their channel closes so they can resubscribe and reload.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	h.mu.Lock()
	var slow []uint64
	for id, sub := range h.subs {
		if sub.table != ev.Table || !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RealtimePublished.WithLabelValues(ev.Table).Inc()
	}
	for _, id := range slow {
		h.remove(id, true)
	}
}

func (h *Hub) remove(id uint64, dropped bool) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.RealtimeSubscribers.Dec()
		if dropped {
			h.metrics.RealtimeDropped.Inc()
		}
	}
	if dropped {
		h.log.Warn().Str("table", sub.table).Str("filter", sub.filter.String()).Msg("dropped slow subscriber")
	}
}

// Len returns the number of open subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
