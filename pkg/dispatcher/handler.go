package dispatcher

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/localbridge/browserbridge/pkg/wire"
)

const helloTimeout = 5 * time.Second

// handleConn upgrades the HTTP request to a WebSocket, performs the
// hello/hello_ack handshake, and then runs the read loop for the
// connection's lifetime. Runs on its own goroutine per connection
// (one per http.Server.Serve accept).
func (d *Dispatcher) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.opts.Logger.Warnf("upgrade failed: %v", err)
		return
	}

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		_ = conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := wire.Parse(data)
	if err != nil || env.Kind != wire.KindHello {
		frame, _ := wire.MarshalError("expected hello as first frame")
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_ = conn.Close()
		return
	}

	// The client key is always freshly generated: the advertised clientId
	// is not unique across sockets, so it cannot key the client table.
	key := newID()

	c := newClient(key, env.Hello.ExtensionVersion, conn)
	ackFrame, _ := wire.MarshalHelloAck()
	if err := c.writeJSON(ackFrame); err != nil {
		_ = conn.Close()
		return
	}

	d.addClient(c)
	d.opts.Logger.Infof("client %s connected (clientId %s, extension %s)", key, env.Hello.ClientID, env.Hello.ExtensionVersion)

	d.readLoop(c)
}

func (d *Dispatcher) readLoop(c *client) {
	defer func() {
		d.removeClient(c.key)
		d.failPendingForClient(c.key)
		c.close(websocket.CloseGoingAway, "read_loop_exited")
		d.opts.Logger.Infof("client %s disconnected", c.key)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := wire.Parse(data)
		if err != nil {
			d.opts.Logger.Warnf("malformed frame from client %s: %v", c.key, err)
			continue
		}

		switch env.Kind {
		case wire.KindRes:
			d.handleRes(c, env.Res)
		case wire.KindPing:
			pongFrame, _ := wire.MarshalPong(time.Now().UnixMilli())
			_ = c.writeJSON(pongFrame)
		case wire.KindPong:
			c.markPong()
		default:
			// Unknown frame kinds are forward-compatible no-ops.
		}
	}
}

func (d *Dispatcher) handleRes(c *client, res *wire.Res) {
	if res == nil {
		return
	}
	p := d.resolvePending(res.ID, c.key)
	if p == nil {
		return
	}
	if res.OK {
		p.resolve(res.Result)
		return
	}
	if res.Error != nil {
		p.reject(res.Error)
		return
	}
	p.reject(&wire.BridgeError{Message: "command failed with no error detail", Reason: "unknown_error"})
}
