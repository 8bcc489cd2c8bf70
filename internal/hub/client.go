package hub

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

var (
	errSendQueueFull = errors.New("hub: client send queue full")
	errClientClosed  = errors.New("hub: client closed")
)

// client is one websocket connection. Outbound traffic goes through a
// buffered channel drained by writePump so that the coordinator never
// blocks on a slow socket.
type client struct {
	conn *websocket.Conn

	// mu guards send and closed together: enqueue must never race a
	// close of the channel, since a send case on a closed channel
	// panics even inside a select.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	// sessionID is written only by this connection's read loop, after a
	// successful login.
	sessionID string
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Send implements session.Sender.
func (c *client) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
