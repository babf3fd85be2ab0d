package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the WebSocket connection pools, one per match,
// and fans broadcast frames out to them.
type ConnectionManager struct {
	matchConnections map[string]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection is one WebSocket client watching one match.
type Connection struct {
	ID      string
	MatchID string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu orders trySend against the close of Send in
	// unregisterConnection; a broadcast racing a dying pump must never
	// write to a closed channel.
	sendMu sync.Mutex
	closed bool
}

// trySend queues a frame unless the connection is closed or its buffer
// is full.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) markClosed() {
	c.sendMu.Lock()
	c.closed = true
	c.sendMu.Unlock()
}

// ConnectionConfig holds WebSocket connection tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	matchID string
	frame   *Frame
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Public scoreboard; every origin may watch.
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		matchConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket watching one
// match and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, matchID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		MatchID:     matchID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("match_id", matchID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.matchConnections[conn.MatchID] == nil {
		cm.matchConnections[conn.MatchID] = make(map[*Connection]bool)
	}
	cm.matchConnections[conn.MatchID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("match_id", conn.MatchID).
		Int("total_connections", len(cm.matchConnections[conn.MatchID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.matchConnections[conn.MatchID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.markClosed()
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.matchConnections, conn.MatchID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("match_id", conn.MatchID).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToMatch queues a frame for every connection watching a match.
func (cm *ConnectionManager) BroadcastToMatch(matchID string, frame *Frame) {
	select {
	case cm.broadcastCh <- broadcastMessage{matchID: matchID, frame: frame}:
	default:
		log.Warn().Str("match_id", matchID).Msg("broadcast channel full, dropping frame")
	}
}

// Watchers reports how many connections are watching a match.
func (cm *ConnectionManager) Watchers(matchID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.matchConnections[matchID])
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.matchConnections[message.matchID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	targetConnections := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	frameData, err := json.Marshal(message.frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame for broadcast")
		return
	}

	for _, conn := range targetConnections {
		if !conn.trySend(frameData) {
			// Slow or already-dead consumer; drop the connection rather
			// than the match.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("match_id", conn.MatchID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("frame_type", string(message.frame.Type)).
		Str("match_id", message.matchID).
		Int("connections", len(targetConnections)).
		Msg("frame broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	matchCounts := make(map[string]int)

	for matchID, connections := range cm.matchConnections {
		count := len(connections)
		totalConnections += count
		matchCounts[matchID] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_matches":    len(cm.matchConnections),
		"match_connections": matchCounts,
	}
}

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
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
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

		// Watching is one-way; client messages are only logged.
		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
