// Package wire defines the small set of JSON envelopes exchanged between
// the bridge server and the extension's bridge client, and the error
// shape that crosses that boundary.
//
// Motivation:
//
// Both the dispatcher (pkg/dispatcher) and the supervisor (pkg/supervisor)
// need to speak the exact same wire format without importing each other.
// Centralizing the envelope types here keeps that format in one place and
// keeps this package pure: no networking, no goroutines, just marshal and
// parse.
//
// Design goals:
//   - One JSON object per frame, discriminated by a "type" field.
//   - Forward compatible: unknown "type" values parse to Unknown rather
//     than erroring, so a newer peer can add frame kinds without breaking
//     an older one.
//   - Opaque ids: the "id" field on cmd/res frames is never interpreted,
//     only compared for equality.
package wire

import "encoding/json"

// Kind identifies the envelope's "type" field.
type Kind string

const (
	KindHello    Kind = "hello"
	KindHelloAck Kind = "hello_ack"
	KindError    Kind = "error"
	KindCmd      Kind = "cmd"
	KindRes      Kind = "res"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
	KindUnknown  Kind = ""
)

// Hello is the first frame on each socket, sent client (extension) to
// server (dispatcher).
type Hello struct {
	ClientID         string `json:"clientId"`
	ExtensionVersion string `json:"extensionVersion"`
}

// HelloAck acknowledges acceptance of a Hello.
type HelloAck struct{}

// ErrorFrame rejects a connection before acceptance; the server closes the
// socket immediately after sending it.
type ErrorFrame struct {
	Message string `json:"message"`
}

// Cmd is a server-to-client request to invoke a named browser operation.
type Cmd struct {
	ID     string          `json:"id"`
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Res is a client-to-server response to a Cmd.
type Res struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *BridgeError    `json:"error,omitempty"`
}

// Ping/Pong are bidirectional liveness frames. Either side may send Ping;
// the receiver must answer with Pong.
type Ping struct{}

type Pong struct {
	T int64 `json:"t"`
}

// Envelope is a parsed frame along with its discriminant. Exactly one of
// the typed fields is populated, matching Kind.
type Envelope struct {
	Kind     Kind
	Hello    *Hello
	HelloAck *HelloAck
	Error    *ErrorFrame
	Cmd      *Cmd
	Res      *Res
	Ping     *Ping
	Pong     *Pong
}

type typeTag struct {
	Type Kind `json:"type"`
}

// Parse decodes a single JSON frame. A malformed frame returns an error;
// the caller is expected to log it and drop the frame. A frame with an
// unrecognized "type" parses successfully to a KindUnknown envelope so
// that additive protocol changes don't break an older peer.
func Parse(data []byte) (Envelope, error) {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return Envelope{}, err
	}

	switch tag.Type {
	case KindHello:
		var h Hello
		if err := json.Unmarshal(data, &h); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindHello, Hello: &h}, nil
	case KindHelloAck:
		return Envelope{Kind: KindHelloAck, HelloAck: &HelloAck{}}, nil
	case KindError:
		var e ErrorFrame
		if err := json.Unmarshal(data, &e); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindError, Error: &e}, nil
	case KindCmd:
		var c Cmd
		if err := json.Unmarshal(data, &c); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindCmd, Cmd: &c}, nil
	case KindRes:
		var r Res
		if err := json.Unmarshal(data, &r); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindRes, Res: &r}, nil
	case KindPing:
		return Envelope{Kind: KindPing, Ping: &Ping{}}, nil
	case KindPong:
		var p Pong
		if err := json.Unmarshal(data, &p); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindPong, Pong: &p}, nil
	default:
		return Envelope{Kind: KindUnknown}, nil
	}
}

// wireFrame mirrors the JSON shape actually put on the wire: the
// discriminant plus whichever payload fields apply, flattened into one
// object (rather than nested under a "payload" key).
type wireFrame struct {
	Type             Kind            `json:"type"`
	ClientID         string          `json:"clientId,omitempty"`
	ExtensionVersion string          `json:"extensionVersion,omitempty"`
	Message          string          `json:"message,omitempty"`
	ID               string          `json:"id,omitempty"`
	Cmd              string          `json:"cmd,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
	OK               *bool           `json:"ok,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            *BridgeError    `json:"error,omitempty"`
	T                int64           `json:"t,omitempty"`
}

func MarshalHello(h Hello) ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindHello, ClientID: h.ClientID, ExtensionVersion: h.ExtensionVersion})
}

func MarshalHelloAck() ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindHelloAck})
}

func MarshalError(message string) ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindError, Message: message})
}

func MarshalCmd(c Cmd) ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindCmd, ID: c.ID, Cmd: c.Cmd, Params: c.Params})
}

func MarshalRes(r Res) ([]byte, error) {
	ok := r.OK
	return json.Marshal(wireFrame{Type: KindRes, ID: r.ID, OK: &ok, Result: r.Result, Error: r.Error})
}

func MarshalPing() ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindPing})
}

func MarshalPong(t int64) ([]byte, error) {
	return json.Marshal(wireFrame{Type: KindPong, T: t})
}
