package http

import (
	"log"
	"net/http"

	"placement-prep-service/internal/domain"
)

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// serveLeaderboardWS upgrades the request and streams standings: the
// current snapshot on connect, then a refresh after every finalized
// submission.
func (h *Handler) serveLeaderboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.SubscribeLeaderboard()
	defer cancel()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Drain the connection so client closes surface as read errors.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if entries, err := h.service.CachedLeaderboard(r.Context()); err == nil {
		send <- outboundMessage{Type: "leaderboard", Payload: entries}
	} else {
		send <- outboundMessage{Type: "error", Payload: map[string]string{"message": err.Error()}}
	}

	for {
		var update []domain.RankedEntry
		var ok bool
		select {
		case update, ok = <-updates:
			if !ok {
				close(send)
				<-writerDone
				return
			}
		case <-readerDone:
			close(send)
			<-writerDone
			return
		case <-writerDone:
			return
		}

		select {
		case send <- outboundMessage{Type: "leaderboard", Payload: update}:
		case <-writerDone:
			return
		}
	}
}
