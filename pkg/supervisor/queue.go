package supervisor

import (
	"sync"
	"time"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// MaxGlobalQueueSize and QueueWaitTimeout bound the single process-wide
// FIFO queue every inbound cmd passes through before it is executed,
// regardless of which socket it arrived on.
const (
	MaxGlobalQueueSize = 200
	QueueWaitTimeout   = 20 * time.Second
)

// workItem is one queued cmd awaiting execution.
type workItem struct {
	cmd        wire.Cmd
	conn       *socketConn
	enqueuedAt time.Time
}

// commandQueue is a bounded FIFO shared by every connected socket. A
// single worker drains it so commands from different sockets (or
// reconnects of the same logical extension) still execute in the order
// the dispatcher issued them. Items are indexed by their owning socket
// only implicitly (each workItem carries its conn), so PurgeSocket scans
// the whole queue; MaxGlobalQueueSize keeps that scan cheap.
type commandQueue struct {
	mu     sync.Mutex
	items  []workItem
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{signal: make(chan struct{}, 1)}
}

func (q *commandQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Enqueue admits item if there is room, reporting QueueOverflow
// otherwise. Never blocks.
func (q *commandQueue) Enqueue(item workItem) *wire.BridgeError {
	q.mu.Lock()
	if len(q.items) >= MaxGlobalQueueSize {
		q.mu.Unlock()
		return wire.QueueOverflow()
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Dequeue blocks for the next item or until stop fires. ok is false
// when stop fired with nothing queued.
func (q *commandQueue) Dequeue(stop <-chan struct{}) (workItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
			continue
		case <-stop:
			return workItem{}, false
		}
	}
}

// PurgeSocket removes every queued item owned by sc and returns them,
// preserving their relative order, so the caller can finalize each one
// (mark its id completed) once the socket that would have received the
// response is gone.
func (q *commandQueue) PurgeSocket(sc *socketConn) []workItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept, purged []workItem
	for _, item := range q.items {
		if item.conn == sc {
			purged = append(purged, item)
		} else {
			kept = append(kept, item)
		}
	}
	q.items = kept
	return purged
}

// Len reports the current queue depth, for status reporting.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// expired reports whether item has waited past QueueWaitTimeout without
// being picked up for execution.
func (item workItem) expired() bool {
	return time.Since(item.enqueuedAt) > QueueWaitTimeout
}
