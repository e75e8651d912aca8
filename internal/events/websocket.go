package events

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pubreg.chain/pubreg/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	replayMax  = 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and streams notifications as JSON until the
// client goes away. An optional ?author=<address> query restricts the stream
// to one author. Recent notifications are replayed first, oldest first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var f Filter
	if a := r.URL.Query().Get("author"); a != "" {
		addr, err := types.ParseAddress(a)
		if err != nil {
			http.Error(w, "invalid author address", http.StatusBadRequest)
			return
		}
		f.Author = addr
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	replay, notes, cancel := h.SubscribeWithRecent(f, replayMax)
	defer cancel()

	// Reads only detect the close; clients send nothing meaningful.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, n := range replay {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(n); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
