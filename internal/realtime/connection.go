package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// PolicyViolationCloseCode is the application close code sent to connections
// that are not participants of the session they tried to join. Distinct from
// generic connection errors so clients can tell refusal from failure.
const PolicyViolationCloseCode = 4003

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWriteTimeout     = errors.New("write timed out")
)

// Connection wraps a WebSocket with a single writer goroutine so concurrent
// broadcasts never race on the socket. It is the bus GroupMember for one
// participant: Deliver feeds the FIFO write queue, preserving per-recipient
// broadcast order.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	identity     types.Identity
	sessionID    string
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded WebSocket for an identity and session.
func NewConnection(conn *websocket.Conn, identity types.Identity, sessionID string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		identity:     identity,
		sessionID:    sessionID,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a value for writing. Returns an error when the connection
// is closed or the queue stays full past the write timeout.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Identity implements interfaces.GroupMember.
func (c *Connection) Identity() types.Identity {
	return c.identity
}

// Deliver implements interfaces.GroupMember. Typing indicators are never
// echoed back to their originator; send failures drop the event for this
// member only.
func (c *Connection) Deliver(event types.Event) {
	if event.Type == types.EventTyping && event.User != nil && event.User.ID == c.identity.ID {
		return
	}
	_ = c.WriteJSON(event)
}

// SessionID returns the session this connection is scoped to.
func (c *Connection) SessionID() string {
	return c.sessionID
}

// CloseWithCode sends an application close frame before closing the socket.
func (c *Connection) CloseWithCode(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return c.Close()
}

// Close shuts down the writer and the underlying socket. Safe to call twice.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
