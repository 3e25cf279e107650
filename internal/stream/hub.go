package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"backend-traillog/internal/tracking"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPattern = "traillog:*:events"

// Hub fans tracking events out to the WebSocket clients of a device. With
// redis configured, every broadcast is also relayed to the other instances
// watching the same device.
type Hub struct {
	id      string
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	DeviceID string
	Send     chan []byte
}

type envelope struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	// wait for the subscription so that nothing published right after
	// NewHub returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
	}
	go h.subscribeRedis(ctx, pubsub)
	return h
}

func (h *Hub) Register(deviceID string) *Client {
	client := &Client{
		DeviceID: deviceID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[deviceID] == nil {
		h.clients[deviceID] = map[*Client]struct{}{}
	}
	h.clients[deviceID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	deviceClients, ok := h.clients[client.DeviceID]
	if !ok {
		return
	}
	if _, ok := deviceClients[client]; !ok {
		return
	}
	delete(deviceClients, client)
	if len(deviceClients) == 0 {
		delete(h.clients, client.DeviceID)
	}
	close(client.Send)
}

// Broadcast delivers payload to local clients and relays it over redis.
// Slow clients drop messages rather than block the caller.
func (h *Hub) Broadcast(deviceID string, payload []byte) {
	h.deliver(deviceID, payload)

	if h.redis != nil {
		msg, err := json.Marshal(envelope{Origin: h.id, Payload: payload})
		if err != nil {
			log.Printf("encode relay message: %v", err)
			return
		}
		if err := h.redis.Publish(context.Background(), redisChannel(deviceID), msg).Err(); err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// Observer returns a tracking observer that broadcasts every event of the
// device as JSON.
func (h *Hub) Observer(deviceID string) tracking.Observer {
	return func(ev tracking.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("encode event: %v", err)
			return
		}
		h.Broadcast(deviceID, payload)
	}
}

// Close stops the redis relay. Local broadcasting keeps working.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func (h *Hub) deliver(deviceID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[deviceID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
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
			deviceID := deviceIDFromChannel(msg.Channel)
			if deviceID == "" {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("ignoring relay message on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == h.id {
				continue
			}
			h.deliver(deviceID, env.Payload)
		}
	}
}

func redisChannel(deviceID string) string {
	return "traillog:" + deviceID + ":events"
}

func deviceIDFromChannel(ch string) string {
	// traillog:{device}:events
	const prefix = "traillog:"
	const suffix = ":events"
	if !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) || len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
