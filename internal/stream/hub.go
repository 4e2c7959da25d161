// Package stream fans trip events out to websocket subscribers.
//
// Subscribers join named groups. Supervisors watch the whole fleet
// through one group; each courier's own dashboard joins a private
// group. When redis is configured the hub also relays frames across
// instances, so a subscriber connected to any replica sees every event.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Group string
	Send  chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(group string) *Client {
	client := &Client{
		Group: group,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[group] == nil {
		h.clients[group] = map[*Client]struct{}{}
	}
	h.clients[group][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if groupClients, ok := h.clients[client.Group]; ok {
		delete(groupClients, client)
		if len(groupClients) == 0 {
			delete(h.clients, client.Group)
		}
	}
	close(client.Send)
}

// PublishTrip delivers one trip event to the courier's private group and
// to the supervisors group. Slow subscribers are skipped, never awaited.
func (h *Hub) PublishTrip(courierID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("stream: marshal %s event: %v", ev.Type, err)
		return
	}
	h.Broadcast(CourierGroup(courierID), payload)
	h.Broadcast(GroupSupervisors, payload)
}

// Broadcast sends one frame to every subscriber of a group. With redis
// configured the frame travels through pub/sub so other instances see it
// too; the local copy arrives via the same subscription, which keeps
// delivery single-path. If redis is down the frame still reaches local
// subscribers.
func (h *Hub) Broadcast(group string, payload []byte) {
	if h.redis == nil {
		h.deliver(group, payload)
		return
	}
	err := h.redis.Publish(context.Background(), redisChannel(group), payload).Err()
	if err != nil {
		log.Printf("stream: redis publish error: %v", err)
		h.deliver(group, payload)
	}
}

// deliver sends under the read lock: Unregister closes Send while
// holding the write lock, so a send can never race the close. The sends
// are non-blocking, so holding the lock costs nothing.
func (h *Hub) deliver(group string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[group] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "fleet:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		group := groupFromChannel(msg.Channel)
		if group == "" {
			continue
		}
		h.deliver(group, []byte(msg.Payload))
	}
}

func redisChannel(group string) string {
	return "fleet:" + group + ":broadcast"
}

func groupFromChannel(ch string) string {
	// fleet:{group}:broadcast
	const prefix = "fleet:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
