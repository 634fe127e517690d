package dispatcher

import (
	"time"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// runHeartbeat pings every connected client on HeartbeatInterval and
// closes any client that hasn't ponged within PongTimeout. It
// snapshots the client table under the lock and does all
// socket I/O outside it, so a slow write to one client never blocks
// table mutations for the others.
func (d *Dispatcher) runHeartbeat() {
	ticker := time.NewTicker(d.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.heartbeatStop:
			return
		case <-ticker.C:
			d.heartbeatTick()
		}
	}
}

func (d *Dispatcher) heartbeatTick() {
	d.mu.Lock()
	snapshot := make([]*client, 0, len(d.clients))
	for _, c := range d.clients {
		snapshot = append(snapshot, c)
	}
	d.mu.Unlock()

	pingFrame, err := wire.MarshalPing()
	if err != nil {
		d.opts.Logger.Errorf("encoding ping: %v", err)
		return
	}

	for _, c := range snapshot {
		if c.sinceLastPong() > d.opts.PongTimeout {
			d.opts.Logger.Warnf("client %s missed pong deadline, closing", c.key)
			c.close(closeCodePongTimeout, closeReasonPongTimeout)
			d.removeClient(c.key)
			d.failPendingForClient(c.key)
			continue
		}
		if err := c.writeJSON(pingFrame); err != nil {
			d.opts.Logger.Warnf("ping write failed for client %s: %v", c.key, err)
		}
	}
}
