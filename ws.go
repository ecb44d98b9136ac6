package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the envelope pushed to browsers.
type Message struct {
	Type         string             `json:"type"`
	Markers      []MarkerOp         `json:"markers,omitempty"`
	Stats        *Stats             `json:"stats,omitempty"`
	Connectivity *ConnectivityState `json:"connectivity,omitempty"`
	Events       *EventPage         `json:"events,omitempty"`
}

const (
	msgSync    = "sync"
	msgMarkers = "markers"
	msgStats   = "stats"
	msgStatus  = "status"
	msgEvents  = "events"
)

// wsSendBuffer is how many messages a client may fall behind before the hub
// drops it.
const wsSendBuffer = 32

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// wsHub fans dashboard changes out to every connected browser. Each client
// has its own writer goroutine, so broadcasting never waits on a socket.
type wsHub struct {
	log  *slog.Logger
	dash *Dashboard

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub(log *slog.Logger, dash *Dashboard) *wsHub {
	h := &wsHub{log: log, dash: dash, clients: make(map[*wsClient]struct{})}
	dash.OnFleet(h.fleetUpdated)
	dash.OnEvents(h.eventsUpdated)
	return h
}

func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade error", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	// The sync message goes out under the hub lock so no diff can reach
	// this client before its initial state.
	h.mu.Lock()
	ops, stats, status, events := h.dash.syncOps()
	err = writeMessage(conn, Message{Type: msgSync, Markers: ops, Stats: &stats, Connectivity: &status, Events: &events})
	if err == nil {
		h.clients[c] = struct{}{}
	}
	h.mu.Unlock()
	if err != nil {
		h.log.Warn("ws sync write failed", "err", err)
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *wsHub) fleetUpdated(u FleetUpdate) {
	msgs := make([]Message, 0, 3)
	if !u.Diff.Empty() {
		msgs = append(msgs, Message{Type: msgMarkers, Markers: u.Diff.Ops()})
	}
	stats, conn := u.Stats, u.Connectivity
	msgs = append(msgs, Message{Type: msgStats, Stats: &stats}, Message{Type: msgStatus, Connectivity: &conn})
	h.broadcast(msgs...)
}

func (h *wsHub) eventsUpdated(p EventPage) {
	h.broadcast(Message{Type: msgEvents, Events: &p})
}

// broadcast queues msgs on every client. A client whose queue is full is
// dropped rather than waited for.
func (h *wsHub) broadcast(msgs ...Message) {
	payloads := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			h.log.Error("ws encode failed", "type", m.Type, "err", err)
			continue
		}
		payloads = append(payloads, data)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
clients:
	for c := range h.clients {
		for _, data := range payloads {
			select {
			case c.send <- data:
			default:
				h.log.Warn("ws client too slow, dropping", "queued", len(c.send))
				h.dropLocked(c)
				continue clients
			}
		}
	}
}

// dropLocked unregisters c and closes its queue; the writer then says
// goodbye and closes the socket.
func (h *wsHub) dropLocked(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
	}
	h.mu.Unlock()
}

func (h *wsHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// closeAll drops every client, used on shutdown.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *wsHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"),
		time.Now().Add(time.Second))
}

func (h *wsHub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeMessage(c *websocket.Conn, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.WriteMessage(websocket.TextMessage, data)
}
