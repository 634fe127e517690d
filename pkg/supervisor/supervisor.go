// Package supervisor implements the bridge client side of the
// protocol: the part that runs alongside the browser extension,
// resolves which of several candidate dispatcher endpoints to dial,
// reconnects with backoff when the link drops, and serializes inbound
// commands through one FIFO queue before handing them to the browser
// operations that actually carry them out.
package supervisor

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/localbridge/browserbridge/pkg/browserops"
	bblog "github.com/localbridge/browserbridge/pkg/log"
	"github.com/localbridge/browserbridge/pkg/wire"
)

// Observer receives a Status snapshot every time it changes. OnStatusChange
// is called synchronously on the goroutine whose state change produced
// the snapshot (an endpoint's connection loop, a socket's read loop or
// the queue worker), so a slow observer delays that goroutine.
type Observer interface {
	OnStatusChange(Status)
}

// EndpointError pairs a disconnected candidate endpoint with the reason
// its most recent connection attempt failed.
type EndpointError struct {
	WSURL     string
	LastError string
}

// Status is the aggregated connection/queue state exposed to Observer:
// every candidate endpoint's connection
// state machine runs independently, so status is computed by folding
// all of them together rather than tracking one "the" connection.
type Status struct {
	Connected             bool
	ConnectedEndpoints    []string
	DisconnectedEndpoints []EndpointError
	// Endpoint is the chosen wsUrl: the first connected endpoint in
	// resolved order, else the head of the resolved candidate list.
	Endpoint    string
	QueueDepth  int
	LastChanged time.Time
}

// Options configures a Supervisor.
type Options struct {
	Seeds            []string
	ExtraHosts       []string
	ClientID         string
	ExtensionVersion string
	Handler          browserops.Handler
	Logger           *bblog.Logger
	Observer         Observer

	// StickyEndpoint, when non-empty, is tried first.
	StickyEndpoint string
	// OnSticky is called whenever a connection opens successfully, so
	// callers can persist the new sticky endpoint (e.g. to pkg/kvstore).
	OnSticky func(endpoint string)
}

// endpointState is one candidate endpoint's current connection state
// plus the error from its most recent failed attempt, if any.
type endpointState struct {
	state     ConnState
	lastError string
}

// Supervisor is the bridge client. It maintains parallel connections to
// every resolved candidate endpoint, each with its own independent
// reconnect state machine, and serializes command execution across all
// of them through one FIFO queue.
type Supervisor struct {
	opts  Options
	queue *commandQueue
	ids   *idTracker

	mu       sync.Mutex
	order    []string
	states   map[string]endpointState
	lastSent Status

	stop      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a Supervisor. Call Start to begin connecting.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = bblog.ForService("supervisor")
	}
	if opts.Handler == nil {
		opts.Handler = browserops.NewStub()
	}
	return &Supervisor{
		opts:   opts,
		queue:  newCommandQueue(),
		ids:    newIDTracker(),
		states: make(map[string]endpointState),
		stop:   make(chan struct{}),
	}
}

// Start resolves the candidate endpoint list once and launches one
// reconnect state machine per candidate, running concurrently, plus the
// single queue worker. Safe to call once; subsequent calls are no-ops.
func (sv *Supervisor) Start() {
	sv.startOnce.Do(func() {
		candidates := sv.resolveCandidates()
		sv.mu.Lock()
		sv.order = candidates
		sv.mu.Unlock()

		sv.wg.Add(len(candidates) + 1)
		for _, endpoint := range candidates {
			go func(endpoint string) {
				defer sv.wg.Done()
				sv.connectEndpoint(endpoint, sv.stop)
			}(endpoint)
		}
		go func() {
			defer sv.wg.Done()
			sv.runWorker(sv.stop)
		}()
	})
}

// Stop halts reconnect attempts and queue processing, and waits for
// every endpoint's connection loop and the queue worker to exit.
// Idempotent.
func (sv *Supervisor) Stop() {
	sv.stopOnce.Do(func() {
		close(sv.stop)
	})
	sv.wg.Wait()
}

// resolveCandidates builds the ordered candidate list once, at Start:
// the sticky bias is a one-time head-of-list reordering of the resolved
// set (spec §4.3 step 5), not something that gets recomputed as
// endpoints connect and disconnect over the supervisor's lifetime.
func (sv *Supervisor) resolveCandidates() []string {
	candidates := ResolveEndpoints(sv.opts.Seeds, sv.opts.ExtraHosts)
	return ApplySticky(candidates, sv.opts.StickyEndpoint)
}

func (sv *Supervisor) setState(endpoint string, state ConnState, errMsg string) {
	sv.mu.Lock()
	sv.states[endpoint] = endpointState{state: state, lastError: errMsg}
	sv.mu.Unlock()
	sv.publishStatus()
}

func (sv *Supervisor) onConnected(endpoint string) {
	sv.opts.Logger.Infof("connected to %s", endpoint)
	if sv.opts.OnSticky != nil {
		sv.opts.OnSticky(endpoint)
	}
}

func (sv *Supervisor) onDisconnected(endpoint string) {
	sv.opts.Logger.Warnf("disconnected from %s, will retry", endpoint)
}

// enqueueCmd runs the admission checks in the order spec §4.3 mandates:
// duplicate id first, then queue capacity, and only once both pass is
// the id marked active. Marking active before the capacity check would
// mean a cmd rejected for queue_overflow still latches its id, making a
// legitimate retry of that same id look like a duplicate.
func (sv *Supervisor) enqueueCmd(sc *socketConn, cmd wire.Cmd) {
	if sv.ids.IsDuplicate(cmd.ID) {
		sv.sendErrorRes(sc, cmd.ID, wire.DuplicateRequestID())
		return
	}
	item := workItem{cmd: cmd, conn: sc, enqueuedAt: time.Now()}
	if err := sv.queue.Enqueue(item); err != nil {
		sv.sendErrorRes(sc, cmd.ID, err)
		return
	}
	sv.ids.MarkActive(cmd.ID)
	sv.publishStatus()
}

// finalizeSocket purges every queued item still owned by sc once its
// connection has gone down, marking each referenced id completed so a
// cmd retransmitted on a new connection with the same id is not
// mistaken for a duplicate of work that will never run.
func (sv *Supervisor) finalizeSocket(sc *socketConn) {
	purged := sv.queue.PurgeSocket(sc)
	for _, item := range purged {
		sv.ids.Complete(item.cmd.ID)
	}
	if len(purged) > 0 {
		sv.publishStatus()
	}
}

func (sv *Supervisor) sendErrorRes(sc *socketConn, id string, bridgeErr *wire.BridgeError) {
	frame, err := wire.MarshalRes(wire.Res{ID: id, OK: false, Error: bridgeErr})
	if err != nil {
		sv.opts.Logger.Errorf("encoding error response: %v", err)
		return
	}
	_ = sc.writeJSON(frame)
}

func (sv *Supervisor) sendOKRes(sc *socketConn, id string, result json.RawMessage) {
	frame, err := wire.MarshalRes(wire.Res{ID: id, OK: true, Result: result})
	if err != nil {
		sv.opts.Logger.Errorf("encoding response: %v", err)
		return
	}
	_ = sc.writeJSON(frame)
}

// publishStatus folds every candidate endpoint's independent connection
// state into one snapshot and delivers it to Observer when it differs
// from the last one sent.
func (sv *Supervisor) publishStatus() {
	sv.mu.Lock()
	order := sv.order
	var connected []string
	var disconnected []EndpointError
	for _, ep := range order {
		st := sv.states[ep]
		if st.state == StateOpen {
			connected = append(connected, ep)
		} else {
			disconnected = append(disconnected, EndpointError{WSURL: ep, LastError: st.lastError})
		}
	}
	chosen := ""
	if len(connected) > 0 {
		chosen = connected[0]
	} else if len(order) > 0 {
		chosen = order[0]
	}
	status := Status{
		Connected:             len(connected) > 0,
		ConnectedEndpoints:    connected,
		DisconnectedEndpoints: disconnected,
		Endpoint:              chosen,
		QueueDepth:            sv.queue.Len(),
		LastChanged:           time.Now(),
	}
	changed := !statusEqualIgnoringTime(status, sv.lastSent)
	if changed {
		sv.lastSent = status
	}
	sv.mu.Unlock()

	if changed && sv.opts.Observer != nil {
		sv.opts.Observer.OnStatusChange(status)
	}
}

func statusEqualIgnoringTime(a, b Status) bool {
	a.LastChanged = time.Time{}
	b.LastChanged = time.Time{}
	return reflect.DeepEqual(a, b)
}
