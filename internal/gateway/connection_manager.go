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

	"github.com/quizlive/quizlive/internal/game"
)

// ConnectionManager owns every live WebSocket connection and the broadcast
// groups keyed by join code. It implements game.GroupBroadcaster: deliveries
// are fire-and-forget with no acknowledgment or retry.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection            // by connection id
	rooms map[string]map[string]*Connection // join code -> connection id -> conn

	upgrader websocket.Upgrader
	config   ConnectionConfig

	dispatcher *Dispatcher

	broadcastCh chan broadcastMessage
}

// Connection represents a single client socket. UserID is the authenticated
// identity forwarded by the auth layer; empty for guests.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	manager  *ConnectionManager
	joinCode string // set once the connection enters a broadcast group
}

// ConnectionConfig holds socket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns sane defaults for browser clients.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

type broadcastMessage struct {
	joinCode string // room-wide delivery when set
	connID   string // single-connection delivery when set
	event    game.Event
}

// NewConnectionManager creates a manager. The dispatcher is attached
// afterwards because the engine needs the manager as its broadcaster first.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetDispatcher wires the inbound command dispatcher.
func (cm *ConnectionManager) SetDispatcher(d *Dispatcher) {
	cm.dispatcher = d
}

// Start processes queued broadcasts until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) error {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return nil
		case message := <-cm.broadcastCh:
			cm.deliver(message)
		}
	}
}

// JoinRoom adds a connection to a session's broadcast group. A connection
// belongs to at most one room; rejoining after reconnect simply re-adds the
// new connection.
func (cm *ConnectionManager) JoinRoom(joinCode, connID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connID]
	if !ok {
		return
	}
	if cm.rooms[joinCode] == nil {
		cm.rooms[joinCode] = make(map[string]*Connection)
	}
	cm.rooms[joinCode][connID] = conn
	conn.joinCode = joinCode

	log.Debug().
		Str("connection_id", connID).
		Str("join_code", joinCode).
		Int("room_size", len(cm.rooms[joinCode])).
		Msg("connection joined room")
}

// ToRoom queues an event for every connection in the session's group.
func (cm *ConnectionManager) ToRoom(joinCode string, ev game.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{joinCode: joinCode, event: ev}:
	default:
		log.Warn().Str("join_code", joinCode).Msg("broadcast channel full, dropping room message")
	}
}

// ToConn queues an event for a single connection.
func (cm *ConnectionManager) ToConn(connID string, ev game.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{connID: connID, event: ev}:
	default:
		log.Warn().Str("connection_id", connID).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket and starts its
// pumps. userID is the stable authenticated identity, empty for guests.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:      uuid.New().String(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		manager: cm,
	}

	cm.mu.Lock()
	cm.conns[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) deliver(message broadcastMessage) {
	data, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(message.event.Type)).Msg("failed to marshal event")
		return
	}

	// Sends happen under the read lock. close(Send) only ever runs in
	// unregisterConnection under the write lock, so a send can never race a
	// close. Stalled connections are dropped after the lock is released.
	cm.mu.RLock()
	var stalled []*Connection
	send := func(conn *Connection) {
		select {
		case conn.Send <- data:
		default:
			stalled = append(stalled, conn)
		}
	}
	if message.connID != "" {
		if conn, ok := cm.conns[message.connID]; ok {
			send(conn)
		}
	} else if room, ok := cm.rooms[message.joinCode]; ok {
		for _, conn := range room {
			send(conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range stalled {
		// Slow or dead connection: drop it, the client resyncs on reconnect.
		log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.conns[conn.ID]; !ok {
		return
	}
	delete(cm.conns, conn.ID)
	close(conn.Send)

	if conn.joinCode != "" {
		if room, ok := cm.rooms[conn.joinCode]; ok {
			delete(room, conn.ID)
			if len(room) == 0 {
				delete(cm.rooms, conn.joinCode)
			}
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("join_code", conn.joinCode).
		Msg("connection unregistered")
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		if c.manager.dispatcher != nil {
			c.manager.dispatcher.Disconnect(c)
		}
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}
		if c.manager.dispatcher != nil {
			c.manager.dispatcher.Dispatch(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
