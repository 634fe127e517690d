package supervisor

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// ConnState is the per-endpoint connection state machine from idle
// through a live socket and back.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reconnect timing: BaseReconnectDelay doubles on each consecutive
// failure up to MaxReconnectDelay, then holds (reset to base on any
// successful connection).
const (
	ConnectTimeout     = 4 * time.Second
	BaseReconnectDelay = 500 * time.Millisecond
	MaxReconnectDelay  = 10 * time.Second
)

// socketConn wraps one live WebSocket connection to the dispatcher.
// writeMu serializes res/pong writes against the read loop's own
// lifecycle handling.
type socketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

func (s *socketConn) writeJSON(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *socketConn) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

// isOpen reports whether the socket is still live. The worker checks
// this before invoking a browser operation: a queued item can outlive
// its socket if it was dequeued in the narrow window before
// finalizeSocket got to purge it.
func (s *socketConn) isOpen() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return !s.closed
}

// connectEndpoint is one candidate endpoint's independent reconnect
// state machine: dial with ConnectTimeout, serve the connection until
// it drops, then wait out the backoff and try again. Every candidate
// returned by resolveCandidates runs its own instance of this loop
// concurrently, so the supervisor holds parallel connections rather
// than failing over between them one at a time. Returns only when stop
// is closed.
func (sv *Supervisor) connectEndpoint(endpoint string, stop <-chan struct{}) {
	delay := BaseReconnectDelay

	for {
		select {
		case <-stop:
			return
		default:
		}

		sv.setState(endpoint, StateConnecting, "")
		conn, err := sv.dial(endpoint)
		if err != nil {
			sv.setState(endpoint, StateClosed, err.Error())
		} else {
			sv.setState(endpoint, StateOpen, "")
			sv.onConnected(endpoint)
			delay = BaseReconnectDelay

			sv.serveConnection(endpoint, conn, stop)

			sv.setState(endpoint, StateClosed, "")
			sv.onDisconnected(endpoint)
		}

		select {
		case <-time.After(delay):
		case <-stop:
			return
		}
		delay *= 2
		if delay > MaxReconnectDelay {
			delay = MaxReconnectDelay
		}
	}
}

// dial opens a WebSocket to endpoint and performs the hello/hello_ack
// handshake within ConnectTimeout.
func (sv *Supervisor) dial(endpoint string) (*socketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: ConnectTimeout}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, err
	}

	hello, err := wire.MarshalHello(wire.Hello{ClientID: sv.opts.ClientID, ExtensionVersion: sv.opts.ExtensionVersion})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(ConnectTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := wire.Parse(data)
	if err != nil || env.Kind != wire.KindHelloAck {
		_ = conn.Close()
		return nil, websocket.ErrBadHandshake
	}

	return &socketConn{conn: conn}, nil
}

// serveConnection runs the read loop for one live connection: every cmd
// frame is pushed onto the shared queue (tagged with this socket so its
// res goes back on the right wire), ping is answered immediately, pong
// is ignored (the dispatcher alone tracks liveness).
// Returns when the socket errors or stop fires, always finalizing the
// socket's queued items first so none are left pointing at a dead
// connection.
func (sv *Supervisor) serveConnection(endpoint string, sc *socketConn, stop <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := sc.conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := wire.Parse(data)
			if err != nil {
				sv.opts.Logger.Warnf("malformed frame from %s: %v", endpoint, err)
				continue
			}
			switch env.Kind {
			case wire.KindCmd:
				sv.enqueueCmd(sc, *env.Cmd)
			case wire.KindPing:
				pong, _ := wire.MarshalPong(time.Now().UnixMilli())
				_ = sc.writeJSON(pong)
			case wire.KindPong:
				// No liveness tracking needed client-side: the dispatcher
				// owns the pong-timeout eviction decision.
			}
		}
	}()

	select {
	case <-done:
	case <-stop:
		sc.close()
		<-done
	}
	sv.finalizeSocket(sc)
}
