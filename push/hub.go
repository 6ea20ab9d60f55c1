package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentdialog/logging"
)

const (
	wsPingInterval = 15 * time.Second
	wsPongWait     = 45 * time.Second
	wsWriteWait    = 10 * time.Second
	wsMaxReadBytes = 4096
)

// Frame is the JSON envelope written to websocket subscribers.
type Frame struct {
	Type         string `json:"type"` // "created" or "chunk"
	ExperimentID string `json:"experimentId"`
	Payload      any    `json:"payload"`
}

// HubOptions configure a Hub.
type HubOptions struct {
	Logger     logging.Logger
	SendBuffer int
	// CheckOrigin overrides the upgrader origin check. Nil accepts all origins.
	CheckOrigin func(r *http.Request) bool
}

// Hub is a websocket Broadcaster. Subscribers connect with
// GET /ws?experiment=<id>; an empty id subscribes to every experiment.
type Hub struct {
	logger     logging.Logger
	upgrader   websocket.Upgrader
	sendBuffer int

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

type subscriber struct {
	id         string
	experiment string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a Hub.
func NewHub(optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Logger: logging.NoOpLogger{}, SendBuffer: 64}
	for _, fn := range optFns {
		fn(&opts)
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		logger:     opts.Logger,
		sendBuffer: opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     checkOrigin,
		},
		subs: make(map[string]*subscriber),
	}
}

// ServeHTTP upgrades the request and streams frames until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	sub := &subscriber{
		id:         uuid.NewString(),
		experiment: r.URL.Query().Get("experiment"),
		conn:       conn,
		send:       make(chan []byte, h.sendBuffer),
		done:       make(chan struct{}),
	}
	if !h.add(sub) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("subscriber connected", "subscriber", sub.id, "experiment_id", sub.experiment)

	go h.writeLoop(sub)
	h.readLoop(sub)
	h.remove(sub)
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub.id] = sub
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
	h.logger.Debug("subscriber disconnected", "subscriber", sub.id)
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// readLoop only services control frames; subscribers never send data.
func (h *Hub) readLoop(sub *subscriber) {
	sub.conn.SetReadLimit(wsMaxReadBytes)
	_ = sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case msg := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				sub.close()
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}
		}
	}
}

func (h *Hub) publish(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.experiment != "" && sub.experiment != frame.ExperimentID {
			continue
		}
		select {
		case sub.send <- data:
		case <-sub.done:
		default:
			h.logger.Warn("dropping frame for slow subscriber", "subscriber", sub.id, "experiment_id", frame.ExperimentID)
		}
	}
	return nil
}

// BroadcastCreated implements Broadcaster.
func (h *Hub) BroadcastCreated(experimentID string, meta Metadata) error {
	return h.publish(Frame{Type: "created", ExperimentID: experimentID, Payload: meta})
}

// BroadcastMessageChunk implements Broadcaster.
func (h *Hub) BroadcastMessageChunk(experimentID string, chunk Chunk) error {
	return h.publish(Frame{Type: "chunk", ExperimentID: experimentID, Payload: chunk})
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = map[string]*subscriber{}
	h.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
