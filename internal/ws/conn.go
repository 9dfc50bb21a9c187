package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	sendBufferSize = 256
)

// connState is the lifecycle of one connection:
// Handshaking -> Authenticated -> Closed.
type connState int

const (
	stateHandshaking connState = iota
	stateAuthenticated
	stateClosed
)

// Conn is one authenticated duplex connection. A user may own several
// concurrently (multi-device); each performs the full handshake.
type Conn struct {
	ID       string
	UserID   string
	Username string

	ws   *websocket.Conn
	send chan []byte

	// joined is the materialized room set, computed once at handshake and
	// mutated only on explicit join/leave. Guarded by the hub's lock.
	joined map[string]bool

	mu    sync.Mutex
	state connState
}

func newConn(id, userID, username string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:       id,
		UserID:   userID,
		Username: username,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		joined:   make(map[string]bool),
	}
}

func (c *Conn) authenticated() {
	c.mu.Lock()
	c.state = stateAuthenticated
	c.mu.Unlock()
}

func (c *Conn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// trySend queues a frame without blocking. A connection that cannot keep
// up has its buffer dropped on the floor rather than stalling the hub.
// The send happens under the state lock so it is serialized with
// closeSend; the queued channel send never blocks, so holding the lock
// here is safe.
func (c *Conn) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().
			Str("connectionId", c.ID).
			Str("userId", c.UserID).
			Msg("send buffer full, dropping event")
	}
}

// SendEvent marshals and queues an event for this connection only.
func (c *Conn) SendEvent(eventType string, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	close(c.send)
}

// readPump reads inbound frames and hands them to handle until the peer
// goes away. Runs as the connection's goroutine; teardown happens in the
// gateway when it returns.
func (c *Conn) readPump(handle func(c *Conn, event Event)) {
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Debug().
				Str("connectionId", c.ID).
				Msg("discarding unparseable frame")
			continue
		}

		handle(c, event)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
