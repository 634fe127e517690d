package supervisor

import (
	"context"
	"encoding/json"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// runWorker drains the shared queue one item at a time, in arrival
// order, checking that the owning socket is still open and that the
// queue-wait timeout has not passed before handing the command to the
// browser operations handler.
func (sv *Supervisor) runWorker(stop <-chan struct{}) {
	for {
		item, ok := sv.queue.Dequeue(stop)
		if !ok {
			return
		}
		sv.publishStatus()
		sv.process(item)
	}
}

// process runs the worker's side of admission: the duplicate/overflow
// checks already happened at enqueue time, so by the time an item is
// dequeued only two things can still disqualify it from reaching the
// browser-operation handler: its owning socket went away, or it sat in
// the queue past its deadline. Either way the id still needs marking
// completed, since it was marked active on enqueue.
func (sv *Supervisor) process(item workItem) {
	if !item.conn.isOpen() {
		sv.ids.Complete(item.cmd.ID)
		return
	}
	if item.expired() {
		sv.sendErrorRes(item.conn, item.cmd.ID, wire.QueueWaitTimeout())
		sv.ids.Complete(item.cmd.ID)
		return
	}
	defer sv.ids.Complete(item.cmd.ID)

	result, err := sv.dispatchToHandler(item.cmd)
	if err != nil {
		sv.sendErrorRes(item.conn, item.cmd.ID, err)
		return
	}
	sv.sendOKRes(item.conn, item.cmd.ID, result)
}

// dispatchToHandler executes one command against the configured
// browser operations handler and marshals its result.
func (sv *Supervisor) dispatchToHandler(cmd wire.Cmd) (json.RawMessage, *wire.BridgeError) {
	ctx := context.Background()
	result, err := sv.opts.Handler.Handle(ctx, cmd.Cmd, cmd.Params)
	if err != nil {
		if be, ok := err.(*wire.BridgeError); ok {
			return nil, be
		}
		return nil, &wire.BridgeError{Message: err.Error(), Reason: "handler_error", Code: "HANDLER_ERROR"}
	}
	return result, nil
}
