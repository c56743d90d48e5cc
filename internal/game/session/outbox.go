// Package session tracks connected clients: the per-connection state
// machine, player binding, liveness, and the disconnect/reconnect overlay.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Outbox routes outbound protocol lines to a Go channel, bridging domain
// events to the connection's writer goroutine.
type Outbox struct {
	id    uuid.UUID
	lines chan string

	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection.
//
// Postcondition: Returns an Outbox with an open lines channel.
func NewOutbox(id uuid.UUID, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:    id,
		lines: make(chan string, bufferSize),
	}
}

// Push enqueues one protocol line for delivery.
//
// Postcondition: The line is enqueued, or an error if the outbox is closed
// or full. A full buffer means the client is not draining; the caller
// decides whether that kills the connection.
func (o *Outbox) Push(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.lines <- line:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.id)
	}
}

// Lines returns the read-only delivery channel. The connection's writer
// goroutine drains it.
func (o *Outbox) Lines() <-chan string {
	return o.lines
}

// Close marks the outbox closed and closes the channel.
//
// Postcondition: Further Push calls return an error.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.lines)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
