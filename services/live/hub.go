// Package live pushes detection events to connected dashboard websockets.
package live

import (
	"BUREAU/services/events"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// viewer is one dashboard connection. Its writer goroutine is the only one
// that writes to conn; the Run loop closes send to stop it.
type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

func newViewer(conn *websocket.Conn, buffer int) *viewer {
	return &viewer{conn: conn, send: make(chan []byte, buffer)}
}

// Hub fans events out to every viewer. Only the Run loop touches the viewer
// set; a viewer whose buffer is full is dropped.
type Hub struct {
	clients    map[*viewer]bool
	broadcast  chan []byte
	register   chan *viewer
	unregister chan *viewer
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

func NewHub(allowedOrigin string, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*viewer]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *viewer),
		unregister: make(chan *viewer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || origin == allowedOrigin
			},
		},
		log: log,
	}
}

// Run serves register/unregister/broadcast until ctx is done, then stops
// every viewer's writer.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for v := range h.clients {
				delete(h.clients, v)
				close(v.send)
			}
			h.mutex.Unlock()
			return

		case v := <-h.register:
			h.mutex.Lock()
			h.clients[v] = true
			h.mutex.Unlock()
			h.log.Info("viewer connected", zap.Int("total", h.ClientCount()))

		case v := <-h.unregister:
			if h.remove(v) {
				h.log.Info("viewer disconnected", zap.Int("total", h.ClientCount()))
			}

		case message := <-h.broadcast:
			for _, v := range h.viewers() {
				select {
				case v.send <- message:
				default:
					h.remove(v)
					h.log.Warn("viewer too slow, disconnected", zap.Int("total", h.ClientCount()))
				}
			}
		}
	}
}

func (h *Hub) viewers() []*viewer {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]*viewer, 0, len(h.clients))
	for v := range h.clients {
		out = append(out, v)
	}
	return out
}

// remove reports whether v was still registered.
func (h *Hub) remove(v *viewer) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[v]; !ok {
		return false
	}
	delete(h.clients, v)
	close(v.send)
	return true
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// writePump forwards queued events and pings to one viewer. It closes the
// connection when send is closed or a write fails.
func (h *Hub) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case message, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Debug("write to viewer failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish implements events.Sink. Events are dropped when the hub is backed up.
func (h *Hub) Publish(_ context.Context, ev events.DetectionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("live feed backed up, event dropped", zap.String("type", ev.Type))
	}
}

// Serve upgrades the request and keeps the viewer registered until it
// disconnects. It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	v := newViewer(conn, sendBuffer)
	select {
	case h.register <- v:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(v)
	defer func() {
		select {
		case h.unregister <- v:
		case <-h.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
