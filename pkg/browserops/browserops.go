// Package browserops defines the boundary between the bridge and the
// actual browser automation the extension performs. Three of the
// facade's operations (list_tabs, open_url, screenshot) bottom out in a
// Handler; artifact_cleanup is a local directory scan that never reaches
// one. This package only
// carries the interface plus a stub implementation, since driving a
// real browser's extension APIs happens in the extension itself, not
// in this process.
package browserops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/localbridge/browserbridge/pkg/wire"
)

// Handler executes one named browser operation with its raw JSON
// params and returns a raw JSON result.
type Handler interface {
	Handle(ctx context.Context, cmd string, params json.RawMessage) (json.RawMessage, error)
}

// Known command names, matching the cmd field the dispatcher puts on
// the wire (the facade translates its snake_case tool names to these
// before calling through).
const (
	CmdListTabs   = "listTabs"
	CmdOpenURL    = "openUrl"
	CmdScreenshot = "screenshot"
)

// Stub is a Handler that reports every operation as not implemented.
// It exists so the supervisor and dispatcher can be exercised end to
// end without a real browser extension attached; a production
// extension replaces it with one backed by the extension APIs
// (tabs.query, tabs.create, tabs.captureVisibleTab).
type Stub struct{}

// NewStub returns the not-implemented Handler.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Handle(_ context.Context, cmd string, _ json.RawMessage) (json.RawMessage, error) {
	switch cmd {
	case CmdListTabs, CmdOpenURL, CmdScreenshot:
		return nil, &wire.BridgeError{
			Message: fmt.Sprintf("%s is not implemented by this bridge build", cmd),
			Reason:  "not_implemented",
			Code:    "NOT_IMPLEMENTED",
		}
	default:
		return nil, &wire.BridgeError{
			Message: fmt.Sprintf("unknown command %q", cmd),
			Reason:  "unknown_command",
			Code:    "UNKNOWN_COMMAND",
		}
	}
}
