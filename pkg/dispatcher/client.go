package dispatcher

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one connected extension socket. All table membership fields
// (key, order position) are owned by Dispatcher.mu; writeMu guards the
// socket itself since hello_ack, cmd, ping and pong writes can originate
// from different goroutines (the accept handler, Call, and the
// heartbeat loop).
type client struct {
	key              string
	extensionVersion string
	conn             *websocket.Conn

	writeMu  sync.Mutex
	closed   bool
	lastPong time.Time
	pongMu   sync.Mutex
}

func newClient(key, extensionVersion string, conn *websocket.Conn) *client {
	return &client{
		key:              key,
		extensionVersion: extensionVersion,
		conn:             conn,
		lastPong:         time.Now(),
	}
}

func (c *client) writeJSON(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) markPong() {
	c.pongMu.Lock()
	c.lastPong = time.Now()
	c.pongMu.Unlock()
}

func (c *client) sinceLastPong() time.Duration {
	c.pongMu.Lock()
	defer c.pongMu.Unlock()
	return time.Since(c.lastPong)
}

func (c *client) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// removeClient drops key from the client table and the round-robin
// order, preserving the relative order of the remaining clients and
// keeping rrCursor pointing at a sensible next client rather than
// skipping one: removing a client must not cause another to be
// skipped on the very next selection.
func (d *Dispatcher) removeClient(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeClientLocked(key)
}

func (d *Dispatcher) removeClientLocked(key string) {
	if _, ok := d.clients[key]; !ok {
		return
	}
	delete(d.clients, key)

	idx := -1
	for i, k := range d.order {
		if k == key {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	d.order = append(d.order[:idx], d.order[idx+1:]...)
	if len(d.order) == 0 {
		d.rrCursor = 0
		return
	}
	if idx < d.rrCursor {
		d.rrCursor--
	}
	if d.rrCursor >= len(d.order) {
		d.rrCursor = 0
	}
}

// addClient registers a newly handshaken connection and starts the
// heartbeat loop on first use: no ticking while zero clients have
// ever connected.
func (d *Dispatcher) addClient(c *client) {
	d.mu.Lock()
	d.clients[c.key] = c
	d.order = append(d.order, c.key)
	d.mu.Unlock()

	d.heartbeatOnce.Do(func() {
		go d.runHeartbeat()
	})
}

// nextClient returns the next client in round-robin order, advancing
// the cursor. Returns nil if no client is connected.
func (d *Dispatcher) nextClient() *client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextClientLocked()
}

func (d *Dispatcher) nextClientLocked() *client {
	if len(d.order) == 0 {
		return nil
	}
	if d.rrCursor >= len(d.order) {
		d.rrCursor = 0
	}
	key := d.order[d.rrCursor]
	d.rrCursor = (d.rrCursor + 1) % len(d.order)
	return d.clients[key]
}

func (d *Dispatcher) clientCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}
