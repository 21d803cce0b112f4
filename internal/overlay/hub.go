// Package overlay pushes live metering events to connected UI clients over
// WebSocket. Delivery is advisory: a slow or dead client is dropped, and no
// send ever blocks the accounting pipeline.
package overlay

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event types pushed to overlay clients.
const (
	EventPartial = "partial"
	EventFinal   = "final"
	EventReset   = "reset"
)

// Event is one overlay notification for a tab.
type Event struct {
	Type    string      `json:"type"`
	TabID   string      `json:"tabId"`
	Payload interface{} `json:"payload,omitempty"`
}

// Conn is a single overlay client connection.
type Conn struct {
	ID    string
	TabID string
	ws    *websocket.Conn
	Send  chan []byte
}

// Hub fans overlay events out to the clients watching each tab.
type Hub struct {
	conns map[string]*Conn
	tabs  map[string]map[string]bool

	register   chan *Conn
	unregister chan *Conn
	events     chan Event

	mu sync.RWMutex
}

// NewHub creates an empty hub. Call Run in a goroutine before broadcasting.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Conn),
		tabs:       make(map[string]map[string]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		events:     make(chan Event, 256),
	}
}

// Run drives registration and fan-out until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.ID] = conn
			h.watchLocked(conn)
			h.mu.Unlock()
			log.Printf("[Overlay] Client connected: %s (tab: %s)", conn.ID, conn.TabID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[conn.ID]; ok {
				delete(h.conns, conn.ID)
				h.unwatchLocked(conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("[Overlay] Client disconnected: %s", conn.ID)

		case event := <-h.events:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[Overlay] Failed to encode %s event: %v", event.Type, err)
				continue
			}
			h.mu.RLock()
			for connID := range h.tabs[event.TabID] {
				conn, ok := h.conns[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- data:
				default:
					// Client can't keep up; drop it rather than stall.
					log.Printf("[Overlay] Client %s buffer full, dropping", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConn wraps a websocket connection watching the given tab.
func (h *Hub) NewConn(ws *websocket.Conn, tabID string) *Conn {
	return &Conn{
		ID:    uuid.New().String(),
		TabID: tabID,
		ws:    ws,
		Send:  make(chan []byte, 256),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Conn) {
	h.register <- conn
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Conn) {
	h.unregister <- conn
}

// Rebind moves a connection to a different tab.
func (h *Hub) Rebind(conn *Conn, tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unwatchLocked(conn)
	conn.TabID = tabID
	h.watchLocked(conn)
}

// Broadcast queues an event for every client watching the tab. Never blocks:
// when the queue is full the event is dropped, as overlay updates are
// superseded by the next one anyway.
func (h *Hub) Broadcast(eventType, tabID string, payload interface{}) {
	select {
	case h.events <- Event{Type: eventType, TabID: tabID, Payload: payload}:
	default:
		log.Printf("[Overlay] Event queue full, dropping %s for tab %s", eventType, tabID)
	}
}

// Watchers reports how many clients are watching a tab.
func (h *Hub) Watchers(tabID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs[tabID])
}

func (h *Hub) watchLocked(conn *Conn) {
	if conn.TabID == "" {
		return
	}
	if h.tabs[conn.TabID] == nil {
		h.tabs[conn.TabID] = make(map[string]bool)
	}
	h.tabs[conn.TabID][conn.ID] = true
}

func (h *Hub) unwatchLocked(conn *Conn) {
	if conn.TabID == "" || h.tabs[conn.TabID] == nil {
		return
	}
	delete(h.tabs[conn.TabID], conn.ID)
	if len(h.tabs[conn.TabID]) == 0 {
		delete(h.tabs, conn.TabID)
	}
}
