package overlay

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	maxFrameSize = 4096
)

// watchMessage is the only inbound message: clients switch tabs by sending
// {"tabId":"..."}.
type watchMessage struct {
	TabID string `json:"tabId"`
}

// Handler upgrades overlay clients. The watched tab comes from the `tab`
// query parameter and defaults to "default".
func (h *Hub) Handler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Overlay clients are local UIs; origin is not meaningful here.
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[Overlay] Upgrade failed: %v", err)
			return
		}

		tabID := r.URL.Query().Get("tab")
		if tabID == "" {
			tabID = "default"
		}

		conn := h.NewConn(ws, tabID)
		h.Register(conn)
		ws.SetReadLimit(maxFrameSize)

		go h.writePump(conn)
		go h.readPump(conn)
	}
}

func (h *Hub) readPump(conn *Conn) {
	defer func() {
		h.Unregister(conn)
		conn.ws.Close()
	}()

	conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Overlay] Read error: %v", err)
			}
			return
		}

		var msg watchMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.TabID == "" {
			continue
		}
		h.Rebind(conn, msg.TabID)
	}
}

func (h *Hub) writePump(conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
