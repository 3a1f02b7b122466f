package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub maintains subscribers per topic and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	// Subscribers by topic
	topics map[string]map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	closeTopic chan string
	done       chan struct{}

	// Guards topics for read-only access from outside Run
	mu sync.RWMutex

	running atomic.Bool
}

// New creates a hub.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		topics:     make(map[string]map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		closeTopic: make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after
// disconnecting every client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for topic, clients := range h.topics {
				for c := range clients {
					close(c.send)
				}
				delete(h.topics, topic)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			clients, ok := h.topics[c.topic]
			if !ok {
				clients = make(map[*Client]struct{})
				h.topics[c.topic] = clients
			}
			clients[c] = struct{}{}
			count := len(clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "topic", c.topic, "subscribers", count)

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "topic", c.topic)

		case topic := <-h.closeTopic:
			h.mu.Lock()
			for c := range h.topics[topic] {
				h.remove(c)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.topics[msg.Topic] {
				select {
				case c.send <- msg:
				default:
					// Too slow to keep up.
					h.remove(c)
					h.logger.Warn("dropped slow client", "topic", msg.Topic)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove unsubscribes c and closes its queue. Callers hold mu.
func (h *Hub) remove(c *Client) {
	clients, ok := h.topics[c.topic]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.topics, c.topic)
	}
}

// Broadcast queues msg for its topic's subscribers. Messages are dropped
// when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "topic", msg.Topic)
	}
}

// BroadcastJSON encodes v and broadcasts it to topic.
func (h *Hub) BroadcastJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(topic, data))
	return nil
}

// CloseTopic disconnects every subscriber of topic.
func (h *Hub) CloseTopic(topic string) {
	select {
	case h.closeTopic <- topic:
	default:
		h.logger.Warn("close queue full", "topic", topic)
	}
}

// ClientCount returns the number of subscribers to topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
