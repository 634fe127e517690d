// Package dispatcher implements the bridge server side of the protocol:
// a local WebSocket listener that authenticates extension clients,
// multiplexes pending requests across possibly several simultaneously
// connected extensions, and enforces timeouts, heartbeats and retries.
//
// The dispatcher is a plain mutex-guarded struct, not an actor: every
// mutation of its client table, pending table or round-robin cursor
// happens with dispatcher.mu held (a struct plus methods rather than a
// channel-driven event loop). Socket reads happen on one goroutine per
// connection; socket writes are serialized per connection with their
// own mutex since gorilla/websocket connections are not safe for
// concurrent writers.
package dispatcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	bblog "github.com/localbridge/browserbridge/pkg/log"
	"github.com/localbridge/browserbridge/pkg/wire"
)

// Default policy constants for retry timing and heartbeat liveness.
const (
	DefaultMaxAttempts          = 3
	DefaultBaseRetryBackoff     = 150 * time.Millisecond
	DefaultMaxRetryBackoff      = 2 * time.Second
	DefaultRetryJitterMax       = 100 * time.Millisecond
	DefaultRetryWaitForClient   = 1200 * time.Millisecond
	DefaultHeartbeatInterval    = 10 * time.Second
	DefaultPongTimeout          = 25 * time.Second
	clientWaitPollInterval      = 50 * time.Millisecond
	closeCodePongTimeout        = 4002
	closeReasonPongTimeout      = "pong_timeout"
)

// Options configures a Dispatcher. Zero values fall back to the
// package defaults, except RetryJitterMax: zero there means no jitter,
// and only a negative value selects DefaultRetryJitterMax. Host/Port/Logger
// are the only required fields in practice.
type Options struct {
	Host   string
	Port   int
	Logger *bblog.Logger

	HeartbeatInterval    time.Duration
	PongTimeout          time.Duration
	RetryJitterMax       time.Duration
	RetryWaitForClient   time.Duration
	MaxAttempts          int
	BaseRetryBackoff     time.Duration
	MaxRetryBackoff      time.Duration
}

func (o *Options) setDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = DefaultPongTimeout
	}
	if o.RetryJitterMax < 0 {
		o.RetryJitterMax = DefaultRetryJitterMax
	}
	if o.RetryWaitForClient <= 0 {
		o.RetryWaitForClient = DefaultRetryWaitForClient
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseRetryBackoff <= 0 {
		o.BaseRetryBackoff = DefaultBaseRetryBackoff
	}
	if o.MaxRetryBackoff <= 0 {
		o.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if o.Logger == nil {
		o.Logger = bblog.ForService("dispatcher")
	}
}

// PortInUseError is returned by Start when the configured port cannot be
// bound. Callers are expected to retry with the next port in a small
// sequential range; that sweep is the caller's responsibility, not
// the dispatcher's.
type PortInUseError struct {
	Host string
	Port int
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d in use on %s: %v", e.Port, e.Host, e.Err)
}

func (e *PortInUseError) Code() string { return "EADDRINUSE" }

func (e *PortInUseError) Unwrap() error { return e.Err }

// Stats is a point-in-time snapshot used by `browserbridge status` (via
// the debug HTTP server `cmd serve` runs alongside the dispatcher) and by
// tests; it is observability only, not part of the wire protocol.
type Stats struct {
	ConnectedClients int    `json:"connectedClients"`
	PendingRequests  int    `json:"pendingRequests"`
	ExternalWSURL    string `json:"externalWsUrl"`
}

// Dispatcher is the bridge server.
type Dispatcher struct {
	opts Options

	mu              sync.Mutex
	listener        net.Listener
	httpServer      *http.Server
	clients         map[string]*client
	order           []string
	rrCursor        int
	pending         map[string]*pendingRequest
	pendingByClient map[string][]string
	stopped         bool
	heartbeatOnce   sync.Once
	heartbeatStop   chan struct{}
	externalWSURL   string

	upgrader websocket.Upgrader
}

// New constructs a Dispatcher. It does not bind a port until Start is
// called.
func New(opts Options) *Dispatcher {
	opts.setDefaults()
	return &Dispatcher{
		opts:            opts,
		clients:         make(map[string]*client),
		pending:         make(map[string]*pendingRequest),
		pendingByClient: make(map[string][]string),
		heartbeatStop:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the listener and begins accepting connections. It returns
// the externally visible ws://host:port used in NoClient error messages.
func (d *Dispatcher) Start() (string, error) {
	addr := fmt.Sprintf("%s:%d", d.opts.Host, d.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return "", &PortInUseError{Host: d.opts.Host, Port: d.opts.Port, Err: err}
		}
		return "", err
	}

	d.mu.Lock()
	d.listener = ln
	d.externalWSURL = fmt.Sprintf("ws://%s", ln.Addr().String())
	d.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleConn)
	d.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := d.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			d.opts.Logger.Errorf("listener closed: %v", err)
		}
	}()

	d.opts.Logger.Infof("listening on %s", d.externalWSURL)
	return d.externalWSURL, nil
}

// Stop closes every socket, rejects every pending call with
// ServerStopped, and shuts down the listener. Idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	clients := make([]*client, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	pendings := make([]*pendingRequest, 0, len(d.pending))
	for _, p := range d.pending {
		pendings = append(pendings, p)
	}
	d.clients = make(map[string]*client)
	d.order = nil
	d.pending = make(map[string]*pendingRequest)
	d.pendingByClient = make(map[string][]string)
	d.mu.Unlock()

	close(d.heartbeatStop)

	for _, p := range pendings {
		p.stopTimer()
		p.reject(wire.ServerStopped())
	}
	for _, c := range clients {
		c.close(websocket.CloseNormalClosure, "server_stopped")
	}
	if d.httpServer != nil {
		_ = d.httpServer.Shutdown(context.Background())
	}
	d.opts.Logger.Infof("stopped")
}

// Stats returns a snapshot for observability.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		ConnectedClients: len(d.clients),
		PendingRequests:  len(d.pending),
		ExternalWSURL:    d.externalWSURL,
	}
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return opErr.Op == "listen"
	}
	return false
}

func asOpError(err error, target **net.OpError) bool {
	for err != nil {
		if opErr, ok := err.(*net.OpError); ok {
			*target = opErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func newID() string {
	return uuid.New().String()
}
