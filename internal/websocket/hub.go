package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries job events between gateway instances.
const ClusterChannel = "genbot:job_events"

// Hub fans job lifecycle events out to connected admin consoles. With Redis
// configured, events from other instances are relayed as well.
type Hub struct {
	// Registered clients: admin id -> connections (several tabs allowed)
	clients map[int64][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb      *redis.Client
	instance string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[int64][]*Client),
		rdb:        rdb,
		instance:   uuid.NewString(),
		logger:     log,
	}
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, clients := range h.clients {
				for _, c := range clients {
					close(c.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.AdminID] = append(h.clients[client.AdminID], client)
			h.mu.Unlock()
			h.logger.Info("HUB", "Admin console connected", map[string]interface{}{"adminId": client.AdminID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[client.AdminID]
	for i, c := range clients {
		if c == client {
			h.clients[client.AdminID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.AdminID]) == 0 {
		delete(h.clients, client.AdminID)
		h.logger.Info("HUB", "Admin console disconnected", map[string]interface{}{"adminId": client.AdminID})
	}
}

// HandleJobEvent has the events.Bus subscriber signature.
func (h *Hub) HandleJobEvent(ctx context.Context, event events.JobEvent) {
	data, err := json.Marshal(map[string]interface{}{
		"type": "job",
		"data": event,
	})
	if err != nil {
		return
	}
	h.deliver(data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instance, Message: data})
		if err := h.rdb.Publish(ctx, ClusterChannel, payload).Err(); err != nil {
			h.logger.Debug("HUB", "Failed to relay job event", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Connected reports how many consoles are attached.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// deliver drops messages for consoles that cannot keep up rather than
// stalling the event bus.
func (h *Hub) deliver(data []byte) {
	var slow []*Client
	h.mu.RLock()
	for _, clients := range h.clients {
		for _, client := range clients {
			select {
			case client.Send <- data:
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("HUB", "Console send buffer full, disconnecting", map[string]interface{}{"adminId": client.AdminID})
		go h.leave(client)
	}
}

// leave is a no-op once the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("HUB", "Undecodable cluster event", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instance {
				continue
			}
			h.deliver(payload.Message)
		}
	}
}
