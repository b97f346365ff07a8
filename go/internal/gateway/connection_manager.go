package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages scoreboard WebSocket connections for one game
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	controller GameController
	metrics    MetricsCollector

	broadcastCh chan gameclock.Snapshot
}

// Connection represents a WebSocket connection to a scoreboard or control panel
type Connection struct {
	ID      string
	Client  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// seq of the newest snapshot queued; only touched under the manager lock
	// by registration and the broadcast loop
	lastSeq uint64
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // intents are tiny
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// OriginChecker allows WebSocket upgrades from the listed origins. A "*"
// entry allows any origin; requests without an Origin header are always
// allowed since they do not come from a browser.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(origin, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, controller GameController, metrics MetricsCollector) *ConnectionManager {
	if metrics == nil {
		metrics = noOpMetrics{}
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		controller:  controller,
		metrics:     metrics,
		broadcastCh: make(chan gameclock.Snapshot, 1000),
	}
}

// Start processes broadcast snapshots until ctx is done, then closes every connection
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case snap := <-cm.broadcastCh:
			cm.handleBroadcast(snap)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The current
// snapshot is always the first frame and older snapshots are never sent.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, client string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Client:      client,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if err := cm.registerConnection(connection); err != nil {
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("client", client).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection queues the current snapshot and registers conn in one
// critical section. Broadcasts are handled under the same lock, so every
// snapshot committed after the initial one reaches conn, and none before it.
func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	snap := cm.controller.Snapshot()
	initial, err := json.Marshal(snapshotMessage(snap))
	if err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("failed to marshal initial snapshot: %w", err)
	}
	conn.Send <- initial
	conn.lastSeq = snap.Seq
	cm.connections[conn] = true
	total := len(cm.connections)
	cm.mu.Unlock()

	cm.metrics.RecordConnections(total)
	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Uint64("seq", snap.Seq).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if _, exists := cm.connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)
	total := len(cm.connections)
	cm.mu.Unlock()

	cm.metrics.RecordConnections(total)
	log.Info().
		Str("connection_id", conn.ID).
		Str("client", conn.Client).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues a snapshot for every connection
func (cm *ConnectionManager) Broadcast(snap gameclock.Snapshot) {
	select {
	case cm.broadcastCh <- snap:
	default:
		log.Warn().Uint64("seq", snap.Seq).Msg("broadcast channel full, dropping snapshot")
	}
}

func (cm *ConnectionManager) handleBroadcast(snap gameclock.Snapshot) {
	data, err := json.Marshal(snapshotMessage(snap))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return
	}

	// sends happen under the read lock so a connection cannot be closed mid-send
	var slow []*Connection
	cm.mu.RLock()
	sent := 0
	for conn := range cm.connections {
		// already covered by a newer initial snapshot
		if snap.Seq <= conn.lastSeq {
			continue
		}
		select {
		case conn.Send <- data:
			conn.lastSeq = snap.Seq
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("client", conn.Client).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
	}

	log.Debug().
		Uint64("seq", snap.Seq).
		Str("cause", string(snap.Cause)).
		Int("connections", sent).
		Msg("snapshot broadcasted")
}

// reply queues a frame for a single connection if it is still registered
func (cm *ConnectionManager) reply(conn *Connection, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, dropping reply")
	}
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	Clients          map[string]int `json:"clients"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		Clients:          make(map[string]int),
	}
	for conn := range cm.connections {
		stats.Clients[conn.Client]++
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads intents from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage applies an intent sent by the client. The resulting
// snapshot reaches every client through the broadcast; only errors are
// answered on this connection.
func (c *Connection) handleClientMessage(message []byte) {
	in, err := decodeIntent(message)
	if err == nil {
		_, err = c.Manager.controller.Apply(in)
	}

	c.Manager.metrics.RecordClientMessage(err == nil)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("client", c.Client).
			Msg("client intent refused")
		c.Manager.reply(c, errorMessage(err))
	}
}

func decodeIntent(data []byte) (gameclock.Intent, error) {
	var in gameclock.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return gameclock.Intent{}, fmt.Errorf("%w: %v", errMalformedIntent, err)
	}
	return in, nil
}
