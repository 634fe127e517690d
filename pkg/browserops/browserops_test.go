package browserops

import (
	"context"
	"testing"

	"github.com/localbridge/browserbridge/pkg/wire"
)

func TestStubReportsNotImplementedForKnownCommands(t *testing.T) {
	s := NewStub()
	for _, cmd := range []string{CmdListTabs, CmdOpenURL, CmdScreenshot} {
		_, err := s.Handle(context.Background(), cmd, nil)
		if err == nil {
			t.Fatalf("%s: expected an error from the stub handler", cmd)
		}
		be, ok := err.(*wire.BridgeError)
		if !ok {
			t.Fatalf("%s: expected a *wire.BridgeError, got %T", cmd, err)
		}
		if be.Reason != "not_implemented" {
			t.Errorf("%s: got reason %q, want not_implemented", cmd, be.Reason)
		}
	}
}

func TestStubReportsUnknownCommand(t *testing.T) {
	s := NewStub()
	_, err := s.Handle(context.Background(), "notACommand", nil)
	be, ok := err.(*wire.BridgeError)
	if !ok {
		t.Fatalf("expected a *wire.BridgeError, got %T", err)
	}
	if be.Reason != "unknown_command" {
		t.Errorf("got reason %q, want unknown_command", be.Reason)
	}
}
