package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smartdesignpro/collab/internal/user"
)

// Client is one WebSocket connection. It implements handlers.Channel.
type Client struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	limiter    *rate.Limiter
	authUserID string
	remoteIP   string

	mu       sync.RWMutex
	identity user.Identity
	closed   bool
}

func newClient(conn *websocket.Conn, buffer int, limiter *rate.Limiter, auth *AuthResult, remoteIP string) *Client {
	c := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, buffer),
		limiter:  limiter,
		remoteIP: remoteIP,
	}
	if auth != nil && auth.Verified {
		c.authUserID = auth.UserID
	}
	return c
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking. False when the queue is full or the
// client is closed.
func (c *Client) Send(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection and in turn ends
// the read pump
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) Identity() user.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) Bind(id user.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = id
}

func (c *Client) AuthenticatedUserID() string { return c.authUserID }

func (c *Client) fields() []zap.Field {
	id := c.Identity()
	return []zap.Field{
		zap.String("conn_id", c.id),
		zap.String("remote_ip", c.remoteIP),
		zap.String("project_id", id.ProjectID),
		zap.String("user_id", id.UserID),
	}
}

// writePump: drains the send queue and pings the peer
func (c *Client) writePump(writeWait, pingPeriod time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// queue closed by Close
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("write failed", append(c.fields(), zap.Error(err))...)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // connection dead
			}
		}
	}
}
