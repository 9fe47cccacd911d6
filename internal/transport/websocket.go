// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"handbeat/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

const (
	broadcastQueue = 256
	writeTimeout   = time.Second
	maxMessageSize = 4096
)

// Hub is the websocket side of the visual layer: every Send is broadcast as
// JSON to all connected clients, and every message a client sends is
// dispatched to the Controller. It is an http.Handler for the /ws route.
type Hub struct {
	ctrl      Controller
	upgrader  websocket.Upgrader
	log       log.Component
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	doneChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	received  atomic.Uint64
}

// NewHub creates a hub dispatching inbound messages to ctrl, which may be
// nil for an output-only hub.
func NewHub(ctrl Controller) *Hub {
	h := &Hub{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // The visual layer is served from anywhere
			},
		},
		log:       log.For("WebSocket"),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		doneChan:  make(chan struct{}),
	}
	h.wg.Add(1)
	go h.handleBroadcasts()
	return h
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	h.clientsMu.Lock()
	select {
	case <-h.doneChan:
		h.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	h.clients[conn] = true
	total := len(h.clients)
	h.wg.Add(1)
	h.clientsMu.Unlock()
	h.log.Infof("client connected from %s, total: %d", r.RemoteAddr, total)

	go h.readLoop(conn)
}

// readLoop dispatches inbound messages until the connection fails.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, websocket.ErrCloseSent) {
				h.log.Debugf("read error: %v", err)
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debugf("undecodable message: %v", err)
			continue
		}
		h.received.Add(1)
		if h.ctrl == nil {
			continue
		}
		if err := Dispatch(h.ctrl, msg); err != nil {
			h.log.Debugf("dropped %q message: %v", msg.Type, err)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	total := len(h.clients)
	h.clientsMu.Unlock()
	conn.Close()
	if ok {
		h.log.Infof("client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (h *Hub) handleBroadcasts() {
	defer h.wg.Done()
	for {
		select {
		case data := <-h.broadcast:
			h.clientsMu.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					h.log.Warnf("error sending to client: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.clientsMu.Unlock()
		case <-h.doneChan:
			return
		}
	}
}

// Send queues data for broadcast. A full queue drops the message.
func (h *Hub) Send(data any) error {
	select {
	case <-h.doneChan:
		return ErrClosed
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		if n := h.dropped.Add(1); n == 1 || n%1000 == 0 {
			h.log.Warnf("broadcast queue full, %d messages dropped", n)
		}
	}
	return nil
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Received reports how many inbound messages were decoded.
func (h *Hub) Received() uint64 { return h.received.Load() }

// Close disconnects every client and stops broadcasting.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.clientsMu.Lock()
		close(h.doneChan)
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.clientsMu.Unlock()
		h.wg.Wait()
		h.log.Infof("closed (%d messages dropped)", h.dropped.Load())
	})
	return nil
}

// Ensure Hub satisfies the interfaces
var (
	_ Transport    = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)
