package wire

import (
	"encoding/json"
	"testing"
)

func TestRoundTripCmd(t *testing.T) {
	params, _ := json.Marshal(map[string]string{"url": "http://localhost:5173/"})
	data, err := MarshalCmd(Cmd{ID: "req-1", Cmd: "openUrl", Params: params})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Kind != KindCmd {
		t.Fatalf("kind = %v, want cmd", env.Kind)
	}
	if env.Cmd.ID != "req-1" || env.Cmd.Cmd != "openUrl" {
		t.Fatalf("unexpected cmd: %+v", env.Cmd)
	}
}

func TestRoundTripResWithError(t *testing.T) {
	data, err := MarshalRes(Res{
		ID: "req-1",
		OK: false,
		Error: &BridgeError{
			Message:   "temp",
			Reason:    "temp_fail",
			Code:      "TEMP",
			Retryable: true,
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Kind != KindRes {
		t.Fatalf("kind = %v, want res", env.Kind)
	}
	if env.Res.OK {
		t.Fatalf("ok = true, want false")
	}
	if env.Res.Error == nil || !env.Res.Error.Retryable {
		t.Fatalf("expected retryable error, got %+v", env.Res.Error)
	}
}

func TestParseUnknownTypeIgnored(t *testing.T) {
	env, err := Parse([]byte(`{"type":"future_frame","field":1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Kind != KindUnknown {
		t.Fatalf("kind = %v, want unknown", env.Kind)
	}
}

func TestParseMalformedReturnsError(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestHelloAckRoundTrip(t *testing.T) {
	data, err := MarshalHelloAck()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Kind != KindHelloAck {
		t.Fatalf("kind = %v, want hello_ack", env.Kind)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	data, err := MarshalPing()
	if err != nil {
		t.Fatalf("marshal ping: %v", err)
	}
	env, err := Parse(data)
	if err != nil || env.Kind != KindPing {
		t.Fatalf("parse ping: env=%+v err=%v", env, err)
	}

	data, err = MarshalPong(1234)
	if err != nil {
		t.Fatalf("marshal pong: %v", err)
	}
	env, err = Parse(data)
	if err != nil || env.Kind != KindPong || env.Pong.T != 1234 {
		t.Fatalf("parse pong: env=%+v err=%v", env, err)
	}
}

func TestBridgeErrorErrorString(t *testing.T) {
	e := NoClient("ws://127.0.0.1:8766")
	if e.Error() == "" {
		t.Fatalf("expected non-empty error string")
	}
}
