package feed

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub is a many-to-many fan-out for QuoteEvents: supervised adapters publish
// into it, and the aggregator, latency monitor, and mirrors subscribe.
// Publishing never blocks; a slow subscriber gets events dropped rather
// than stalling the sources. Events from the same source arrive at every
// subscriber in publish order.
type Hub struct {
	log *logrus.Entry

	// Filtered subscribers keyed by source.
	mu   sync.RWMutex
	subs map[SourceID][]chan QuoteEvent

	// allMu guards the unified subscriber list.
	allMu  sync.RWMutex
	allSub []chan QuoteEvent
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:  log.WithField("component", "hub"),
		subs: make(map[SourceID][]chan QuoteEvent),
	}
}

// Subscribe returns a buffered channel that receives QuoteEvents from the
// given source only. The caller must drain the channel to avoid dropped
// events.
func (h *Hub) Subscribe(src SourceID) <-chan QuoteEvent {
	ch := make(chan QuoteEvent, 256)

	h.mu.Lock()
	h.subs[src] = append(h.subs[src], ch)
	h.mu.Unlock()

	return ch
}

// SubscribeAll returns a buffered channel that receives every QuoteEvent
// regardless of source.
func (h *Hub) SubscribeAll() <-chan QuoteEvent {
	ch := make(chan QuoteEvent, 512)

	h.allMu.Lock()
	h.allSub = append(h.allSub, ch)
	h.allMu.Unlock()

	return ch
}

// Publish distributes an event to all matching filtered subscribers and all
// unified subscribers. Safe for concurrent use by multiple sources.
func (h *Hub) Publish(ev QuoteEvent) {
	h.mu.RLock()
	if subs, ok := h.subs[ev.Source]; ok {
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				h.log.WithField("source", ev.Source).Warn("dropping event for slow subscriber")
			}
		}
	}
	h.mu.RUnlock()

	h.allMu.RLock()
	for _, ch := range h.allSub {
		select {
		case ch <- ev:
		default:
			// Slow unified subscriber — drop.
		}
	}
	h.allMu.RUnlock()
}

// Close closes every subscriber channel. Publish must not be called after
// Close.
func (h *Hub) Close() {
	h.mu.Lock()
	for _, subs := range h.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	h.subs = make(map[SourceID][]chan QuoteEvent)
	h.mu.Unlock()

	h.allMu.Lock()
	for _, ch := range h.allSub {
		close(ch)
	}
	h.allSub = nil
	h.allMu.Unlock()
}
