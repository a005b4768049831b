package app

import (
	"sync"

	"placement-prep-service/internal/domain"
)

// Hub fans leaderboard snapshots out to live subscribers (websocket
// dashboards, rank widgets).
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan []domain.RankedEntry]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan []domain.RankedEntry]struct{})}
}

// Subscribe registers a listener. The returned cancel is idempotent.
func (h *Hub) Subscribe() (<-chan []domain.RankedEntry, func()) {
	ch := make(chan []domain.RankedEntry, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast pushes a snapshot to every subscriber, dropping the stalest
// update for slow consumers instead of blocking.
func (h *Hub) Broadcast(entries []domain.RankedEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- entries:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- entries
		}
	}
}
