package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// A nil CheckOrigin makes gorilla reject browser handshakes whose Origin host differs from the request host.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamMessage is the JSON format for WebSocket messages.
type StreamMessage struct {
	Type     string               `json:"type"`
	Event    *models.Event        `json:"event,omitempty"`
	Snapshot *models.SyncSnapshot `json:"snapshot,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// EventsHandler streams engine notifications over WebSocket.
type EventsHandler struct {
	engine SyncEngine
	logger *log.Logger
}

// NewEventsHandler creates a handler that subscribes each connection to engine.
func NewEventsHandler(engine SyncEngine, logger *log.Logger) *EventsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &EventsHandler{engine: engine, logger: logger}
}

// Routes returns the event stream route.
func (h *EventsHandler) Routes() []Route {
	return []Route{{Pattern: "GET /api/events", Handler: h}}
}

// ServeHTTP upgrades the connection, sends the current snapshot, then forwards events until either side goes away.
//
// Clients may send {"type":"snapshot"} at any time to receive a fresh snapshot.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.engine.Subscribe()
	defer h.engine.Unsubscribe(sub.ID)
	h.logger.Debug("event stream opened", "subscriber", sub.ID)

	// gorilla connections allow one concurrent writer
	var writeMu sync.Mutex
	send := func(msg StreamMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	sendSnapshot := func() error {
		snap, err := h.engine.Snapshot(ctx)
		if err != nil {
			return send(StreamMessage{Type: "error", Error: err.Error()})
		}
		return send(StreamMessage{Type: "snapshot", Snapshot: &snap})
	}

	if err := sendSnapshot(); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var cmd StreamMessage
			if err := json.Unmarshal(data, &cmd); err != nil {
				_ = send(StreamMessage{Type: "error", Error: "invalid message format"})
				continue
			}

			switch cmd.Type {
			case "snapshot":
				if sendSnapshot() != nil {
					return
				}
			default:
				_ = send(StreamMessage{Type: "error", Error: "unknown command: " + cmd.Type})
			}
		}
	}()

	h.forward(ctx, sub.C(), send, func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	})
	h.logger.Debug("event stream closed", "subscriber", sub.ID)
}

func (h *EventsHandler) forward(ctx context.Context, events <-chan models.Event, send func(StreamMessage) error, ping func() error) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(StreamMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := ping(); err != nil {
				return
			}
		}
	}
}
