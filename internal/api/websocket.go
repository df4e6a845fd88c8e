package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"market-data-service/internal/domain"
	"market-data-service/internal/feed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; restrict in production
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. The stream is outbound
	// only; inbound traffic is just control frames.
	maxMessageSize = 512
)

// streamEvent is one insert delivered over the stream.
type streamEvent struct {
	Type        string              `json:"type"` // always "insert"
	Observation *domain.Observation `json:"observation"`
}

// handleStream upgrades the connection and pushes an event for every
// insert on the requested series ({type} empty = all series) until the
// client disconnects or the subscription is cancelled.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	dataType := domain.DataType(chi.URLParam(r, "type"))
	if dataType != "" && !dataType.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown data type "+string(dataType))
		return
	}

	// The request context is cancelled as soon as this handler returns,
	// which is before the pumps have delivered anything. The subscription
	// must outlive the handler; the pumps cancel it on teardown.
	sub, err := s.feed.Subscribe(context.Background(), dataType)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "change feed unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Cancel()
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	go s.streamWritePump(conn, sub)
	go s.streamReadPump(conn, sub)
}

// streamWritePump forwards feed events to the peer and keeps the
// connection alive with pings.
func (s *Server) streamWritePump(conn *websocket.Conn, sub *feed.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Cancel()
		conn.Close()
	}()

	for {
		select {
		case o, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Subscription cancelled.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(streamEvent{Type: "insert", Observation: &o}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamReadPump drains the connection to process control frames and
// notice disconnects.
func (s *Server) streamReadPump(conn *websocket.Conn, sub *feed.Subscription) {
	defer func() {
		sub.Cancel()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("websocket read closed")
			}
			return
		}
	}
}
