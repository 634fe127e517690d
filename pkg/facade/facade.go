// Package facade implements the four tool-call operations exposed to
// the MCP host: list_tabs, open_url, screenshot and artifact_cleanup.
// It validates and defaults arguments, translates snake_case tool
// names into the camelCase commands the wire protocol uses, and
// forwards everything but artifact_cleanup (a purely local directory
// scan) to an injected Caller.
package facade

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/localbridge/browserbridge/pkg/artifact"
	"github.com/localbridge/browserbridge/pkg/wire"
)

// Caller is the subset of *dispatcher.Dispatcher the facade needs,
// kept as an interface so facade tests don't need a real dispatcher or
// socket.
type Caller interface {
	Call(ctx context.Context, cmd string, params json.RawMessage, timeout time.Duration) ([]byte, *wire.BridgeError)
}

// Facade wires validated tool calls to a Caller and to the local
// artifact directory.
type Facade struct {
	caller Caller

	mu                 sync.RWMutex
	defaultOpenTimeout time.Duration
	defaultArtifactDir string
}

// New constructs a Facade. defaultOpenTimeout and defaultArtifactDir
// come from config (defaults: 15s, the platform cache directory).
func New(caller Caller, defaultOpenTimeout time.Duration, defaultArtifactDir string) *Facade {
	return &Facade{caller: caller, defaultOpenTimeout: defaultOpenTimeout, defaultArtifactDir: defaultArtifactDir}
}

// ApplyRuntimeConfig updates the defaults a running Facade hands out to
// new calls, without disturbing calls already in flight. Used by
// `browserbridge serve` on SIGHUP or config file change.
func (f *Facade) ApplyRuntimeConfig(defaultOpenTimeout time.Duration, defaultArtifactDir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if defaultOpenTimeout > 0 {
		f.defaultOpenTimeout = defaultOpenTimeout
	}
	if defaultArtifactDir != "" {
		f.defaultArtifactDir = defaultArtifactDir
	}
}

func (f *Facade) openTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultOpenTimeout
}

func (f *Facade) artifactDir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultArtifactDir
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ListTabs has no arguments and returns the extension's raw tab array.
func (f *Facade) ListTabs(ctx context.Context) (json.RawMessage, *wire.BridgeError) {
	return f.caller.Call(ctx, "listTabs", nil, f.openTimeout())
}

// openURLArgs mirrors the open_url tool's argument table. json tags use
// camelCase to match both the tool's own argument names and the wire
// command's params shape, so validated args can be re-marshaled as-is.
type openURLArgs struct {
	URL             string `json:"url"`
	Match           string `json:"match"`
	ReuseIfExists   *bool  `json:"reuseIfExists"`
	OpenIfMissing   *bool  `json:"openIfMissing"`
	FocusWindow     *bool  `json:"focusWindow"`
	ActivateTab     *bool  `json:"activateTab"`
	WaitForComplete *bool  `json:"waitForComplete"`
	TimeoutMs       int    `json:"timeoutMs"`
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(b bool) *bool { return &b }

// validURL reports whether raw parses as an absolute http(s) URL. A
// non-empty but malformed url argument (missing scheme/host, or not
// parseable at all) is rejected terminally rather than forwarded to the
// extension, which would otherwise fail the tab-match step in a much
// more confusing way.
func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// OpenURL validates args (raw JSON tool arguments) against the
// open_url argument table, applies every documented default, and
// forwards the call as the wire protocol's openUrl command.
func (f *Facade) OpenURL(ctx context.Context, args json.RawMessage) (json.RawMessage, *wire.BridgeError) {
	var a openURLArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, wire.InvalidURL("malformed open_url arguments")
		}
	}

	if a.URL == "" {
		a.URL = "http://localhost:5173/"
	}
	if !validURL(a.URL) {
		return nil, wire.InvalidURL(a.URL)
	}
	if a.Match != "prefix" && a.Match != "exact" {
		a.Match = "prefix"
	}
	a.ReuseIfExists = boolPtr(boolOrDefault(a.ReuseIfExists, true))
	a.OpenIfMissing = boolPtr(boolOrDefault(a.OpenIfMissing, true))
	a.FocusWindow = boolPtr(boolOrDefault(a.FocusWindow, true))
	a.ActivateTab = boolPtr(boolOrDefault(a.ActivateTab, true))
	a.WaitForComplete = boolPtr(boolOrDefault(a.WaitForComplete, true))
	if a.TimeoutMs == 0 {
		a.TimeoutMs = int(f.openTimeout() / time.Millisecond)
	}
	a.TimeoutMs = clampInt(a.TimeoutMs, 1000, 120000)

	params, err := json.Marshal(a)
	if err != nil {
		return nil, &wire.BridgeError{Message: "encoding open_url arguments: " + err.Error(), Reason: "internal_error"}
	}

	timeout := clampDuration(time.Duration(a.TimeoutMs)*time.Millisecond, time.Second, 120*time.Second)
	return f.caller.Call(ctx, "openUrl", params, timeout)
}

// screenshotArgs mirrors the screenshot tool's argument table: every
// open_url field except reuseIfExists, plus capture-specific knobs.
type screenshotArgs struct {
	URL             string `json:"url"`
	Match           string `json:"match"`
	OpenIfMissing   *bool  `json:"openIfMissing"`
	FocusWindow     *bool  `json:"focusWindow"`
	ActivateTab     *bool  `json:"activateTab"`
	WaitForComplete *bool  `json:"waitForComplete"`
	TimeoutMs       int    `json:"timeoutMs"`
	ExtraWaitMs     int    `json:"extraWaitMs"`
	Format          string `json:"format"`
	JPEGQuality     int    `json:"jpegQuality"`
	ReturnMode      string `json:"returnMode"`
	ArtifactDir     string `json:"artifactDir"`
}

// Screenshot validates args against the screenshot argument table and
// forwards the call as the wire protocol's screenshot command. In
// "artifact" return mode, it attaches local file metadata to whatever
// path the extension reports via pkg/artifact.Describe.
func (f *Facade) Screenshot(ctx context.Context, args json.RawMessage) (json.RawMessage, *wire.BridgeError) {
	var a screenshotArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, wire.InvalidURL("malformed screenshot arguments")
		}
	}

	if a.URL == "" {
		a.URL = "http://localhost:5173/"
	}
	if !validURL(a.URL) {
		return nil, wire.InvalidURL(a.URL)
	}
	if a.Match != "prefix" && a.Match != "exact" {
		a.Match = "prefix"
	}
	a.OpenIfMissing = boolPtr(boolOrDefault(a.OpenIfMissing, true))
	a.FocusWindow = boolPtr(boolOrDefault(a.FocusWindow, true))
	a.ActivateTab = boolPtr(boolOrDefault(a.ActivateTab, true))
	a.WaitForComplete = boolPtr(boolOrDefault(a.WaitForComplete, true))
	if a.TimeoutMs == 0 {
		a.TimeoutMs = int(f.openTimeout() / time.Millisecond)
	}
	a.TimeoutMs = clampInt(a.TimeoutMs, 1000, 120000)
	if a.ExtraWaitMs == 0 {
		a.ExtraWaitMs = 250
	}
	a.ExtraWaitMs = clampInt(a.ExtraWaitMs, 0, 10000)
	if a.Format != "png" && a.Format != "jpeg" {
		a.Format = "png"
	}
	if a.JPEGQuality == 0 {
		a.JPEGQuality = 80
	}
	a.JPEGQuality = clampInt(a.JPEGQuality, 0, 100)
	if a.ReturnMode != "artifact" && a.ReturnMode != "image" {
		a.ReturnMode = "artifact"
	}
	if a.ArtifactDir == "" {
		a.ArtifactDir = f.artifactDir()
	}

	params, err := json.Marshal(a)
	if err != nil {
		return nil, &wire.BridgeError{Message: "encoding screenshot arguments: " + err.Error(), Reason: "internal_error"}
	}

	timeout := clampDuration(time.Duration(a.TimeoutMs)*time.Millisecond, time.Second, 120*time.Second)
	result, callErr := f.caller.Call(ctx, "screenshot", params, timeout)
	if callErr != nil {
		return nil, callErr
	}
	if a.ReturnMode != "artifact" {
		return result, nil
	}
	return f.enrichArtifactDescriptor(result)
}

type rawArtifactResult struct {
	Path string `json:"path"`
}

// enrichArtifactDescriptor re-stats the path the extension reported so
// the size/mtime the caller sees reflects what is actually on disk,
// rather than trusting whatever the extension claims.
func (f *Facade) enrichArtifactDescriptor(result json.RawMessage) (json.RawMessage, *wire.BridgeError) {
	var raw rawArtifactResult
	if err := json.Unmarshal(result, &raw); err != nil || raw.Path == "" {
		return result, nil
	}
	desc, err := artifact.Describe(raw.Path)
	if err != nil {
		return result, nil
	}
	enriched, err := json.Marshal(desc)
	if err != nil {
		return result, nil
	}
	return enriched, nil
}

// artifactCleanupArgs mirrors the artifact_cleanup tool's argument
// table.
type artifactCleanupArgs struct {
	MaxAgeHours int    `json:"maxAgeHours"`
	ArtifactDir string `json:"artifactDir"`
}

// ArtifactCleanup is the one facade operation that never reaches the
// extension: it scans a local directory directly, since artifact files
// already live on the MCP host's filesystem once the extension has
// written them.
func (f *Facade) ArtifactCleanup(_ context.Context, args json.RawMessage) (json.RawMessage, *wire.BridgeError) {
	var a artifactCleanupArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, wire.InvalidURL("malformed artifact_cleanup arguments")
		}
	}
	if a.MaxAgeHours == 0 {
		a.MaxAgeHours = 24
	}
	a.MaxAgeHours = clampInt(a.MaxAgeHours, 1, 87600)
	if a.ArtifactDir == "" {
		a.ArtifactDir = f.artifactDir()
	}

	result, err := artifact.Cleanup(a.ArtifactDir, time.Duration(a.MaxAgeHours)*time.Hour)
	if err != nil {
		return nil, &wire.BridgeError{Message: "scanning artifact directory: " + err.Error(), Reason: "internal_error"}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, &wire.BridgeError{Message: "encoding cleanup result: " + err.Error(), Reason: "internal_error"}
	}
	return encoded, nil
}
