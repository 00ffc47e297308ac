package tracker

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castmir/vaultmesh/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	outboxCapacity = 32
)

// client is one websocket connection registered in a room. Writes go
// through a buffered outbox drained by a single goroutine; a member that
// cannot keep up is dropped rather than allowed to stall the room.
type client struct {
	id   string
	conn *websocket.Conn

	out  chan transport.Frame
	once sync.Once
	done chan struct{}
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		out:  make(chan transport.Frame, outboxCapacity),
		done: make(chan struct{}),
	}
}

// send queues a frame without blocking. A full outbox means the reader on
// the other side stopped draining, so the connection is shut down.
func (c *client) send(f transport.Frame) {
	select {
	case <-c.done:
	case c.out <- f:
	default:
		c.shutdown()
	}
}

// writePump serializes all writes to the connection. Runs until shutdown
// or a write error.
func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
