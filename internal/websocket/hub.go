package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"leaderboard/internal/metrics"
	"leaderboard/internal/repository"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Heartbeat interval for version updates. Clients only re-fetch the
	// leaderboard when a game's version changes, at most once per heartbeat,
	// which keeps a busy game from turning into a request storm.
	versionHeartbeatInterval = 2 * time.Second
)

// Client represents a WebSocket client watching one game's index.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	gameID string
	send   chan []byte
}

// Hub maintains the set of active clients and broadcasts per-game version
// heartbeats to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Score store used to read per-game version counters
	store repository.Store

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Last known version per game for change detection
	lastVersions map[string]int64
}

// VersionUpdate represents the version heartbeat message
type VersionUpdate struct {
	Type    string `json:"type"`
	GameID  string `json:"game_id"`
	Version int64  `json:"version"`
}

// NewHub creates a new WebSocket hub
func NewHub(store repository.Store) *Hub {
	return &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		clients:      make(map[*Client]bool),
		store:        store,
		lastVersions: make(map[string]int64),
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	versionTicker := time.NewTicker(versionHeartbeatInterval)
	defer versionTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()

			h.sendInitialVersion(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebsocketClients.Dec()
			}
			h.mu.Unlock()

		case <-versionTicker.C:
			h.checkAndBroadcastVersions(ctx)

		case <-ctx.Done():
			log.Println("WebSocket hub shutting down")
			return
		}
	}
}

// watchedGames returns the distinct games currently subscribed to.
func (h *Hub) watchedGames() map[string][]*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	games := make(map[string][]*Client)
	for client := range h.clients {
		games[client.gameID] = append(games[client.gameID], client)
	}
	return games
}

// checkAndBroadcastVersions broadcasts to each game's watchers when that
// game's version counter has moved.
func (h *Hub) checkAndBroadcastVersions(ctx context.Context) {
	for gameID, watchers := range h.watchedGames() {
		current, err := h.store.GetVersion(ctx, gameID)
		if err != nil {
			log.Printf("Failed to read version for game %s: %v", gameID, err)
			continue
		}

		if current == h.lastVersions[gameID] {
			continue
		}
		h.lastVersions[gameID] = current

		message, err := json.Marshal(VersionUpdate{
			Type:    "VERSION_UPDATE",
			GameID:  gameID,
			Version: current,
		})
		if err != nil {
			log.Printf("Failed to marshal version update: %v", err)
			continue
		}

		for _, client := range watchers {
			select {
			case client.send <- message:
			default:
				// Client's send buffer is full, skip this client
			}
		}
	}
}

// sendInitialVersion sends the watched game's current version to a newly
// connected client.
func (h *Hub) sendInitialVersion(ctx context.Context, client *Client) {
	current, err := h.store.GetVersion(ctx, client.gameID)
	if err != nil {
		log.Printf("Failed to get initial version for game %s: %v", client.gameID, err)
		return
	}

	if _, ok := h.lastVersions[client.gameID]; !ok {
		h.lastVersions[client.gameID] = current
	}

	message, err := json.Marshal(VersionUpdate{
		Type:    "VERSION_UPDATE",
		GameID:  client.gameID,
		Version: current,
	})
	if err != nil {
		log.Printf("Failed to marshal initial version: %v", err)
		return
	}

	select {
	case client.send <- message:
	case <-time.After(2 * time.Second):
		log.Println("Timeout sending initial version - client may be slow")
	}
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	// Browser WebSockets handle ping/pong at the protocol level, so no read
	// deadline is set here.
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket unexpected close: %v", err)
			}
			break
		}
		// Clients are not expected to send messages; ignore anything received.
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		// Add queued messages to the current websocket message
		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write([]byte{'\n'})
			w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}

	// The hub closed the channel
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS handles a WebSocket client watching gameID.
func ServeWS(hub *Hub, conn *websocket.Conn, gameID string) {
	client := &Client{
		hub:    hub,
		conn:   conn,
		gameID: gameID,
		send:   make(chan []byte, 256),
	}

	client.hub.register <- client

	// Start write pump in goroutine
	go client.writePump()

	// Run read pump in current goroutine (blocks until disconnect)
	client.readPump()
}
