package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Oeconomia2025/oec-standalone-staking-ui/internal/reconciler"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512

	// Snapshots queued per client before it is dropped as too slow.
	sendBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans dashboard snapshots out to websocket clients. Every client receives the
// current snapshot on connect and each newer published snapshot after that.
type Hub struct {
	source DashboardSource

	clients    map[*streamClient]bool
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan frame

	quit     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	// seen is the Seq of the last snapshot queued; only Run touches it.
	seen uint64
}

// frame is an encoded snapshot and its sequence number.
type frame struct {
	seq uint64
	msg []byte
}

// NewHub creates a hub over source. Run must be started before clients connect.
func NewHub(source DashboardSource) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan frame, 64),
		quit:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	cancel := h.source.Subscribe(func(snap reconciler.Snapshot) {
		msg, err := encodeSnapshot(snap)
		if err != nil {
			webLogger.Error().Err(err).Msg("Failed to encode dashboard snapshot")
			return
		}
		select {
		case h.broadcast <- frame{seq: snap.Seq, msg: msg}:
		case <-h.quit:
		default:
			webLogger.Warn().Msg("Dashboard broadcast buffer full, dropping snapshot")
		}
	})
	defer cancel()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			snap := h.source.Snapshot()
			if msg, err := encodeSnapshot(snap); err == nil {
				h.deliver(client, frame{seq: snap.Seq, msg: msg})
			}
			webLogger.Debug().Str("client", client.id).Msg("Dashboard stream client registered")

		case client := <-h.unregister:
			h.remove(client)

		case f := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*streamClient, 0, len(h.clients))
			for client := range h.clients {
				targets = append(targets, client)
			}
			h.mu.RUnlock()
			for _, client := range targets {
				h.deliver(client, f)
			}

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every client stream and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// deliver queues f for client unless the client already has a newer snapshot.
// Clients that fall behind are dropped.
func (h *Hub) deliver(client *streamClient, f frame) {
	if f.seq != 0 && f.seq <= client.seen {
		return
	}
	select {
	case client.send <- f.msg:
		client.seen = f.seq
	default:
		webLogger.Warn().Str("client", client.id).Msg("Dashboard stream client too slow, disconnecting")
		h.remove(client)
	}
}

func (h *Hub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &streamClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump(h)
	return nil
}

// readPump only services control frames and notices when the peer goes away.
func (c *streamClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				webLogger.Debug().Err(err).Str("client", c.id).Msg("Dashboard stream closed")
			}
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type snapshotMessage struct {
	Type string              `json:"type"`
	Data reconciler.Snapshot `json:"data"`
}

func encodeSnapshot(snap reconciler.Snapshot) ([]byte, error) {
	return json.Marshal(snapshotMessage{Type: "snapshot", Data: snap})
}
