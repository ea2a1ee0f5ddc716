package notification

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
)

// Redis channel shared by all API instances
const eventsChannel = "notifications:events"

type hubMessage struct {
	UserID           string          `json:"user_id,omitempty"` // empty means all admins
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection represents a WebSocket connection
type Connection struct {
	UserID  uuid.UUID
	IsAdmin bool
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub fans notification events out to local websocket connections and,
// through Redis Pub/Sub, to the other API instances.
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool

	redis  *redis.Client
	pubsub *redis.PubSub

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

// NewHub creates a hub; redisClient may be nil for single-instance setups
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, eventsChannel)
	}
	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			metrics.AddWSConnections(1)
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User connected to WebSocket")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					metrics.AddWSConnections(-1)
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("User disconnected from WebSocket")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRemote(msg.Payload)
		}
	}
}

func (h *Hub) handleRemote(payload string) {
	var m hubMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return
	}
	if m.SenderInstanceID == h.instanceID {
		return
	}
	if m.UserID == "" {
		h.sendLocal(func(c *Connection) bool { return c.IsAdmin }, m.Payload)
		return
	}
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return
	}
	h.sendLocal(func(c *Connection) bool { return c.UserID == userID }, m.Payload)
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SendToUserJSON sends payload to every connection of userID on any instance
func (h *Hub) SendToUserJSON(userID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.sendLocal(func(c *Connection) bool { return c.UserID == userID }, data)
	return h.publish(hubMessage{UserID: userID.String(), Payload: data})
}

// SendToAdminsJSON sends payload to every admin connection on any instance
func (h *Hub) SendToAdminsJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.sendLocal(func(c *Connection) bool { return c.IsAdmin }, data)
	return h.publish(hubMessage{Payload: data})
}

func (h *Hub) sendLocal(match func(*Connection) bool, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.connections {
		for conn := range conns {
			if !match(conn) {
				continue
			}
			select {
			case conn.Send <- data:
				metrics.IncWSEvent(true)
			default:
				// Buffer full
				metrics.IncWSEvent(false)
				log.Warn().Str("user_id", conn.UserID.String()).Msg("WebSocket send buffer full")
			}
		}
	}
}

func (h *Hub) publish(m hubMessage) error {
	if h.redis == nil {
		return nil
	}
	m.SenderInstanceID = h.instanceID
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return h.redis.Publish(h.ctx, eventsChannel, payload).Err()
}

// ConnectionCount returns number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
