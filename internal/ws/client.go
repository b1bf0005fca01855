package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rpsarena/backend/internal/game"
	"github.com/rpsarena/backend/internal/protocol"
)

const (
	// Liveness: ping every heartbeatInterval; tear down if no inbound frame
	// (pong included) arrives within clientTimeout.
	heartbeatInterval = 5 * time.Second
	clientTimeout     = 10 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client owns one WebSocket and translates between wire frames and engine
// events. readPump is the only reader, writePump the only writer; everything
// outbound goes through the send channel.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	identity   game.Identity
	matchmaker *game.Matchmaker

	mu      sync.Mutex
	session *game.Session
	closed  bool
}

// Identity implements game.Participant.
func (c *Client) Identity() game.Identity { return c.identity }

// Send implements game.Participant. It never blocks: a full buffer means the
// client stopped draining, so the frame is dropped and the connection closed.
func (c *Client) Send(msg protocol.ServerMessage) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		log.Printf("[WS] %s: marshal failed: %v", c.identity.ID, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] %s: send buffer full, dropping connection", c.identity.ID)
		go c.teardown()
	}
}

// AttachSession implements game.Participant. Attaching to a connection that
// already tore down reports the disconnect straight back so the session
// forfeits instead of waiting out its rounds.
func (c *Client) AttachSession(s *game.Session) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.PlayerDisconnected(c.identity.ID)
		return
	}
	c.session = s
	c.mu.Unlock()
}

func (c *Client) currentSession() *game.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// teardown runs the disconnect actions exactly once: leave the queue, notify
// any attached session, stop both pumps.
func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	session := c.session
	c.mu.Unlock()

	c.matchmaker.LeaveQueue(c.identity.ID)
	if session != nil {
		session.PlayerDisconnected(c.identity.ID)
	}
	close(c.done)
	c.conn.Close()
	log.Printf("[WS] %s disconnected", c.identity.Username)
}

func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] %s: read error: %v", c.identity.ID, err)
			}
			return
		}
		// Any inbound frame counts as liveness.
		c.conn.SetReadDeadline(time.Now().Add(clientTimeout))
		c.handleMessage(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		c.Send(protocol.NewError("Invalid message format"))
		return
	}

	switch msg.Type {
	case protocol.TypeJoinQueue:
		c.matchmaker.JoinQueue(c, c.effectiveRanked(msg.Ranked))
	case protocol.TypeLeaveQueue:
		c.matchmaker.LeaveQueue(c.identity.ID)
	case protocol.TypeChoice:
		session := c.currentSession()
		if session == nil {
			c.Send(protocol.NewError("Not in a game"))
			return
		}
		session.PlayerChoice(c.identity.ID, msg.Choice)
	}
}

// effectiveRanked defaults to ranked and downgrades guests unconditionally.
func (c *Client) effectiveRanked(requested *bool) bool {
	if c.identity.IsGuest {
		return false
	}
	if requested == nil {
		return true
	}
	return *requested
}
