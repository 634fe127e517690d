package wire

import "fmt"

// BridgeError is the structured error shape that crosses the wire in the
// "error" field of a res frame, and the shape both the dispatcher and the
// supervisor preserve end to end so callers can branch on Reason/Code
// instead of parsing a message string.
type BridgeError struct {
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e *BridgeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// Reason constants used for the internal error variants: a closed
// error sum, one shape plus a variant per internal reason. Reasons
// reported by the extension itself are free-form strings and are
// preserved verbatim; these constants are the ones the dispatcher and
// supervisor themselves attach.
const (
	ReasonNoClient           = "no_client"
	ReasonTimeout            = "timeout"
	ReasonQueueWaitTimeout   = "queue_wait_timeout"
	ReasonQueueOverflow      = "queue_overflow"
	ReasonDuplicateRequestID = "duplicate_request_id"
	ReasonSocketClosed       = "socket_closed"
	ReasonServerStopped      = "server_stopped"
	ReasonInvalidURL         = "invalid_url"
)

// Code constants mirrored on the wire alongside Reason for machine
// matching against the admission-check error cases below.
const (
	CodeDuplicateRequestID = "DUPLICATE_REQUEST_ID"
	CodeQueueOverflow      = "QUEUE_OVERFLOW"
	CodeQueueWaitTimeout   = "QUEUE_WAIT_TIMEOUT"
)

// NoClient reports that no extension is currently connected. wsURL
// should be the externally visible ws://host:port. Never retried by
// the dispatcher itself (retries that land here give up).
func NoClient(wsURL string) *BridgeError {
	return &BridgeError{
		Message: fmt.Sprintf("no extension connected at %s", wsURL),
		Reason:  ReasonNoClient,
		Code:    "NO_CLIENT",
	}
}

// Timeout reports a per-call deadline elapsed.
func Timeout(cmd string) *BridgeError {
	return &BridgeError{
		Message: fmt.Sprintf("timeout waiting for response to %q", cmd),
		Reason:  ReasonTimeout,
		Code:    "TIMEOUT",
	}
}

// ServerStopped is terminal: the dispatcher is shutting down.
func ServerStopped() *BridgeError {
	return &BridgeError{
		Message: "bridge server stopped",
		Reason:  ReasonServerStopped,
		Code:    "SERVER_STOPPED",
	}
}

// InvalidURL is a terminal facade-level validation error, never retried.
func InvalidURL(raw string) *BridgeError {
	return &BridgeError{
		Message: fmt.Sprintf("invalid url: %q", raw),
		Reason:  ReasonInvalidURL,
		Code:    "INVALID_URL",
	}
}

// SocketClosed reports that the socket a queued command was waiting on
// finalized before the command was processed. Retryable by the server.
func SocketClosed() *BridgeError {
	return &BridgeError{
		Message:   "socket closed while command was queued",
		Reason:    ReasonSocketClosed,
		Code:      "SOCKET_CLOSED",
		Retryable: true,
	}
}

// DuplicateRequestID reports id reuse within the recently-completed
// window. Never retryable: resubmitting the same id will hit the same
// check again.
func DuplicateRequestID() *BridgeError {
	return &BridgeError{
		Message: "duplicate request id",
		Reason:  ReasonDuplicateRequestID,
		Code:    CodeDuplicateRequestID,
	}
}

// QueueOverflow reports that the client's FIFO queue is at capacity.
// Retryable by the server (it may pick a different client, or the same
// one once it has drained).
func QueueOverflow() *BridgeError {
	return &BridgeError{
		Message:   "command queue is full",
		Reason:    ReasonQueueOverflow,
		Code:      CodeQueueOverflow,
		Retryable: true,
	}
}

// QueueWaitTimeout reports that a queued command exceeded its wait
// deadline before a worker picked it up. Retryable.
func QueueWaitTimeout() *BridgeError {
	return &BridgeError{
		Message:   "command timed out waiting in queue",
		Reason:    ReasonQueueWaitTimeout,
		Code:      CodeQueueWaitTimeout,
		Retryable: true,
	}
}
