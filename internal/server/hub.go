package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// Event types sent on the progress stream
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventNotice   = "notice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscriberSend = 64
)

// Event is one message on the progress stream.
type Event struct {
	Type     string               `json:"type"`
	Progress *simulation.Progress `json:"progress,omitempty"`
	Complete *RunComplete         `json:"complete,omitempty"`
	Notices  []simulation.Notice  `json:"notices,omitempty"`
}

// RunComplete summarizes a finished run for subscribers.
type RunComplete struct {
	RunID      string `json:"run_id"`
	Scope      string `json:"scope"`
	Jobs       int    `json:"jobs"`
	Completed  int    `json:"completed"`
	Cancelled  bool   `json:"cancelled"`
	TestRun    int    `json:"test_run,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Hub fans run events out to WebSocket subscribers. It implements
// simulation.Listener; a subscriber that falls behind is disconnected
// rather than slowing the scheduler.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

var _ simulation.Listener = (*Hub)(nil)

type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		close(sub.done)
		sub.conn.Close()
	})
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Progress broadcasts a progress event.
func (h *Hub) Progress(p simulation.Progress) {
	h.broadcast(Event{Type: EventProgress, Progress: &p})
}

// Complete broadcasts a run summary.
func (h *Hub) Complete(s simulation.Summary) {
	h.broadcast(Event{Type: EventComplete, Complete: &RunComplete{
		RunID:      s.RunID,
		Scope:      s.Scope.String(),
		Jobs:       s.Jobs,
		Completed:  s.Completed,
		Cancelled:  s.Cancelled,
		TestRun:    s.TestRun,
		DurationMS: s.Duration().Milliseconds(),
	}})
}

// Notices broadcasts enqueue notices. Empty slices are ignored.
func (h *Hub) Notices(notices []simulation.Notice) {
	if len(notices) == 0 {
		return
	}
	h.broadcast(Event{Type: EventNotice, Notices: notices})
}

func (h *Hub) broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode stream event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			logger.Warning("Dropping slow stream subscriber", "remote_addr", sub.conn.RemoteAddr().String())
			delete(h.subs, sub)
			sub.close()
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Serve registers conn and blocks until the peer disconnects or the hub
// closes. Inbound messages are read only to process control frames.
func (h *Hub) Serve(conn *websocket.Conn, maxMessageSize int64) {
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, subscriberSend),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.close()
	}()

	go h.writePump(sub)

	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Stream subscriber read error", "error", err)
			}
			return
		}
	}
}

// writePump is the only goroutine writing to sub.conn.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				sub.close()
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
}
