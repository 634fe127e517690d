package dispatcher

import (
	"sync"
	"time"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// pendingRequest tracks one in-flight Call. clientKey records which
// client the request was last dispatched to, so a res frame arriving
// from a different (e.g. stale, reconnected) client is dropped instead
// of resolving the wrong waiter.
type pendingRequest struct {
	id        string
	cmd       string
	clientKey string
	attempt   int
	timer     *time.Timer

	mu       sync.Mutex
	done     bool
	epoch    int
	resultCh chan callResult
}

type callResult struct {
	result []byte
	err    *wire.BridgeError
}

func newPendingRequest(id, cmd string) *pendingRequest {
	return &pendingRequest{
		id:       id,
		cmd:      cmd,
		resultCh: make(chan callResult, 1),
	}
}

func (p *pendingRequest) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// resolve delivers a successful result exactly once.
func (p *pendingRequest) resolve(result []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.resultCh <- callResult{result: result}
}

// reject delivers a terminal error exactly once.
func (p *pendingRequest) reject(err *wire.BridgeError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.resultCh <- callResult{err: err}
}

// currentEpoch reports the epoch in effect for p's live attempt. A
// per-attempt timer callback captures this at schedule time and passes it
// back to rejectEpoch, so a timer left running past Stop() (the
// Stop-returned-false race) can't reach into a later attempt's resultCh
// after resetForRetry has moved on.
func (p *pendingRequest) currentEpoch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// rejectEpoch delivers err only if p is still on the attempt epoch was
// captured from; a stale timeout from a superseded attempt is dropped.
func (p *pendingRequest) rejectEpoch(epoch int, err *wire.BridgeError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done || epoch != p.epoch {
		return
	}
	p.done = true
	p.resultCh <- callResult{err: err}
}

func (p *pendingRequest) isDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// resetForRetry rearms p for another dispatch attempt under the same id,
// discarding the old resultCh (which may already hold a stale SocketClosed
// delivered by failPendingForClient) and bumping epoch so a straggling
// timer callback from the attempt just finished can no longer complete
// this one. Call only after the caller has observed that delivery and
// decided to retry.
func (p *pendingRequest) resetForRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = false
	p.epoch++
	p.resultCh = make(chan callResult, 1)
}

// registerPending adds p to the pending table and the per-client index
// used to reject everything belonging to a client that disconnects.
func (d *Dispatcher) registerPending(p *pendingRequest, clientKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.clientKey = clientKey
	d.pending[p.id] = p
	d.pendingByClient[clientKey] = append(d.pendingByClient[clientKey], p.id)
}

// reassignPending updates the clientKey a pending request is waiting on,
// for the retry path's redispatch to a different client. It also puts p
// back into d.pending, since resolvePending pops it when the previous
// attempt ended in a (retryable) error res.
func (d *Dispatcher) reassignPending(p *pendingRequest, newClientKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := p.clientKey
	p.clientKey = newClientKey
	d.pending[p.id] = p
	if old != "" {
		d.removePendingFromIndexLocked(old, p.id)
	}
	d.pendingByClient[newClientKey] = append(d.pendingByClient[newClientKey], p.id)
}

func (d *Dispatcher) unregisterPending(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[id]
	if !ok {
		return
	}
	delete(d.pending, id)
	d.removePendingFromIndexLocked(p.clientKey, id)
}

func (d *Dispatcher) removePendingFromIndexLocked(clientKey, id string) {
	ids := d.pendingByClient[clientKey]
	for i, existing := range ids {
		if existing == id {
			d.pendingByClient[clientKey] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(d.pendingByClient[clientKey]) == 0 {
		delete(d.pendingByClient, clientKey)
	}
}

// resolvePending looks up a pending request by id and, if its clientKey
// still matches fromClientKey, pops it from the tables. A mismatch means
// the response arrived from a client the request is no longer waiting on
// (e.g. after a retry reassigned it elsewhere) and is silently dropped.
func (d *Dispatcher) resolvePending(id, fromClientKey string) *pendingRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[id]
	if !ok {
		return nil
	}
	if p.clientKey != fromClientKey {
		return nil
	}
	delete(d.pending, id)
	d.removePendingFromIndexLocked(p.clientKey, id)
	return p
}

// failPendingForClient rejects (with SocketClosed, retryable) every
// pending request dispatched to a client that just disconnected. Unlike
// unregisterPending, it leaves the requests in d.pending: the owning Call
// goroutine may still retry the same id on a different client via
// reassignPending, and only Call's own terminal exit paths remove an id
// from d.pending for good. This only clears the per-client index and
// unblocks whichever goroutine is waiting on resultCh.
func (d *Dispatcher) failPendingForClient(clientKey string) []*pendingRequest {
	d.mu.Lock()
	ids := append([]string(nil), d.pendingByClient[clientKey]...)
	var failed []*pendingRequest
	for _, id := range ids {
		if p, ok := d.pending[id]; ok {
			failed = append(failed, p)
		}
	}
	delete(d.pendingByClient, clientKey)
	d.mu.Unlock()

	for _, p := range failed {
		p.stopTimer()
		p.reject(wire.SocketClosed())
	}
	return failed
}
