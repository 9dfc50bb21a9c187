package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	redisclient "github.com/lumeochat/messenger-go/internal/redis"
)

// Hub tracks live connections and their room membership, and fans events
// out to them. With a redis client attached, events travel through pubsub
// so every server instance with a local room member delivers them; with a
// nil client the hub degrades to single-instance local delivery.
type Hub struct {
	redis *redisclient.Client

	mu       sync.RWMutex
	conns    map[*Conn]bool
	rooms    map[string]map[*Conn]bool
	roomSubs map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:    redisClient,
		conns:    make(map[*Conn]bool),
		rooms:    make(map[string]map[*Conn]bool),
		roomSubs: make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}

	if h.redis != nil {
		go h.subscribeBroadcast()
	}

	return h
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = true
	total := len(h.conns)
	h.mu.Unlock()

	log.Info().
		Str("connectionId", c.ID).
		Str("userId", c.UserID).
		Int("totalConnections", total).
		Msg("connection registered")
}

// Unregister removes the connection from the hub and from every room it
// joined. Safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.conns[c] {
		return
	}
	delete(h.conns, c)

	for roomID := range c.joined {
		h.leaveLocked(roomID, c)
	}

	log.Info().
		Str("connectionId", c.ID).
		Str("userId", c.UserID).
		Int("totalConnections", len(h.conns)).
		Msg("connection unregistered")
}

func (h *Hub) Join(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Conn]bool)
		if h.redis != nil {
			subCtx, subCancel := context.WithCancel(h.ctx)
			h.roomSubs[roomID] = subCancel
			go h.subscribeRoom(subCtx, roomID)
		}
	}
	h.rooms[roomID][c] = true
	c.joined[roomID] = true
}

func (h *Hub) Leave(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, c)
}

func (h *Hub) leaveLocked(roomID string, c *Conn) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	delete(c.joined, roomID)

	if len(members) == 0 {
		delete(h.rooms, roomID)
		if cancel, ok := h.roomSubs[roomID]; ok {
			cancel()
			delete(h.roomSubs, roomID)
		}
	}
}

// BroadcastRoom delivers an event to every connection joined to the
// conversation's room. excludeUserID suppresses the originating user's
// own connections; pass "" to deliver to everyone.
func (h *Hub) BroadcastRoom(ctx context.Context, conversationID, eventType string, payload any, excludeUserID string) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	if h.redis == nil {
		h.deliverRoom(conversationID, event, excludeUserID)
		return nil
	}

	data, err := json.Marshal(envelope{ExcludeUserID: excludeUserID, Event: event})
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.RoomChannel(conversationID), data).Err()
}

// BroadcastAll delivers an event to every connection on every instance.
func (h *Hub) BroadcastAll(ctx context.Context, eventType string, payload any, excludeUserID string) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	if h.redis == nil {
		h.deliverAll(event, excludeUserID)
		return nil
	}

	data, err := json.Marshal(envelope{ExcludeUserID: excludeUserID, Event: event})
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.BroadcastChannel, data).Err()
}

func (h *Hub) subscribeRoom(ctx context.Context, roomID string) {
	pubsub := h.redis.Subscribe(ctx, redisclient.RoomChannel(roomID))
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
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Str("roomId", roomID).Msg("failed to unmarshal room event")
				continue
			}
			h.deliverRoom(roomID, env.Event, env.ExcludeUserID)
		}
	}
}

func (h *Hub) subscribeBroadcast() {
	pubsub := h.redis.Subscribe(h.ctx, redisclient.BroadcastChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal broadcast event")
				continue
			}
			h.deliverAll(env.Event, env.ExcludeUserID)
		}
	}
}

func (h *Hub) deliverRoom(roomID string, event Event, excludeUserID string) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.trySend(data)
	}
}

func (h *Hub) deliverAll(event Event, excludeUserID string) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		if excludeUserID != "" && c.UserID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(data)
	}
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		c.closeSend()
	}
	h.conns = make(map[*Conn]bool)
	h.rooms = make(map[string]map[*Conn]bool)
	h.roomSubs = make(map[string]context.CancelFunc)
}
