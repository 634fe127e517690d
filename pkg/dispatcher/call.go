package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// Call dispatches cmd to one connected client and waits for its
// response, retrying when the extension (or a socket drop) reports a
// retryable failure. timeout bounds each individual attempt, not the
// call as a whole; ctx can cancel the call outright at any point.
func (d *Dispatcher) Call(ctx context.Context, cmd string, params json.RawMessage, timeout time.Duration) ([]byte, *wire.BridgeError) {
	id := newID()
	p := newPendingRequest(id, cmd)
	defer d.unregisterPending(id)

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		c, waitErr := d.selectClientForAttempt(ctx, attempt)
		if waitErr != nil {
			return nil, waitErr
		}

		if attempt == 1 {
			d.registerPending(p, c.key)
		} else {
			p.resetForRetry()
			d.reassignPending(p, c.key)
		}

		result, callErr := d.dispatchOnce(ctx, c, p, params, timeout)
		if callErr == nil {
			return result, nil
		}
		// Timeouts and socket drops are always worth a redispatch to a
		// (possibly different) client regardless of their own Retryable
		// field, which communicates retry-worthiness to callers outside
		// the dispatcher, not to this loop.
		retryable := callErr.Retryable ||
			callErr.Reason == wire.ReasonTimeout ||
			callErr.Reason == wire.ReasonSocketClosed
		if !retryable || attempt == d.opts.MaxAttempts {
			return nil, callErr
		}

		delay := backoffDelay(attempt, d.opts.BaseRetryBackoff, d.opts.MaxRetryBackoff, d.opts.RetryJitterMax)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, wire.Timeout(cmd)
		}
	}
	return nil, wire.NoClient(d.externalWSURLSnapshot())
}

// selectClientForAttempt implements the two-path selection: the very
// first attempt fails fast with NoClient when nothing is connected,
// while a retry (attempt > 1, i.e. redispatch after a failure) polls
// briefly for a client to come back since a reconnect may be in flight.
func (d *Dispatcher) selectClientForAttempt(ctx context.Context, attempt int) (*client, *wire.BridgeError) {
	if attempt == 1 {
		c := d.nextClient()
		if c == nil {
			return nil, wire.NoClient(d.externalWSURLSnapshot())
		}
		return c, nil
	}

	deadline := time.Now().Add(d.opts.RetryWaitForClient)
	ticker := time.NewTicker(clientWaitPollInterval)
	defer ticker.Stop()
	for {
		if c := d.nextClient(); c != nil {
			return c, nil
		}
		if time.Now().After(deadline) {
			return nil, wire.NoClient(d.externalWSURLSnapshot())
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, wire.NoClient(d.externalWSURLSnapshot())
		}
	}
}

// dispatchOnce sends one cmd frame to c under p's id and waits for its
// res, a socket drop, or timeout. p is registered (or reassigned) against
// c by the caller before this runs, and stays registered in d.pending
// across however many attempts Call makes: reusing the same id lets a
// retried cmd redispatched to a different client still be recognized by
// the extension as the same outstanding request.
func (d *Dispatcher) dispatchOnce(ctx context.Context, c *client, p *pendingRequest, params json.RawMessage, timeout time.Duration) ([]byte, *wire.BridgeError) {
	cmd := p.cmd
	frame, err := wire.MarshalCmd(wire.Cmd{ID: p.id, Cmd: cmd, Params: params})
	if err != nil {
		return nil, &wire.BridgeError{Message: "encoding command: " + err.Error(), Reason: "internal_error", Code: "INTERNAL_ERROR"}
	}

	if writeErr := c.writeJSON(frame); writeErr != nil {
		return nil, wire.SocketClosed()
	}

	epoch := p.currentEpoch()
	p.timer = time.AfterFunc(timeout, func() {
		p.rejectEpoch(epoch, wire.Timeout(cmd))
	})

	select {
	case res := <-p.resultCh:
		p.stopTimer()
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		p.stopTimer()
		return nil, wire.Timeout(cmd)
	}
}

func (d *Dispatcher) externalWSURLSnapshot() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.externalWSURL
}
