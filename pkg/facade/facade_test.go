package facade

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/localbridge/browserbridge/pkg/wire"
)

type capturingCaller struct {
	gotCmd     string
	gotParams  json.RawMessage
	gotTimeout time.Duration
	result     json.RawMessage
	err        *wire.BridgeError
}

func (c *capturingCaller) Call(_ context.Context, cmd string, params json.RawMessage, timeout time.Duration) ([]byte, *wire.BridgeError) {
	c.gotCmd = cmd
	c.gotParams = params
	c.gotTimeout = timeout
	return c.result, c.err
}

func TestListTabsTranslatesCommandName(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`[]`)}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	result, err := f.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotCmd != "listTabs" {
		t.Errorf("got cmd %q, want listTabs", caller.gotCmd)
	}
	if string(result) != "[]" {
		t.Errorf("got result %s", result)
	}
}

func TestOpenURLAppliesDefaults(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`{}`)}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	_, err := f.OpenURL(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotCmd != "openUrl" {
		t.Fatalf("got cmd %q, want openUrl", caller.gotCmd)
	}

	var sent openURLArgs
	if err := json.Unmarshal(caller.gotParams, &sent); err != nil {
		t.Fatalf("unmarshaling sent params: %v", err)
	}
	if sent.URL != "http://localhost:5173/" {
		t.Errorf("got default url %q", sent.URL)
	}
	if sent.Match != "prefix" {
		t.Errorf("got default match %q, want prefix", sent.Match)
	}
	if !boolOrDefault(sent.ReuseIfExists, false) {
		t.Error("expected reuseIfExists to default true")
	}
	if sent.TimeoutMs != 15000 {
		t.Errorf("got default timeoutMs %d, want 15000", sent.TimeoutMs)
	}
	if caller.gotTimeout != 15*time.Second {
		t.Errorf("got call timeout %v, want 15s", caller.gotTimeout)
	}
}

func TestOpenURLClampsTimeout(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`{}`)}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	args, _ := json.Marshal(map[string]any{"timeoutMs": 999999})
	if _, err := f.OpenURL(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotTimeout != 120*time.Second {
		t.Fatalf("got timeout %v, want clamped 120s", caller.gotTimeout)
	}
}

func TestOpenURLRejectsMalformedArgs(t *testing.T) {
	f := New(&capturingCaller{}, 15*time.Second, "/tmp/artifacts")
	_, err := f.OpenURL(context.Background(), json.RawMessage(`{not json`))
	if err == nil || err.Reason != wire.ReasonInvalidURL {
		t.Fatalf("expected an invalid_url error, got %v", err)
	}
}

func TestOpenURLRejectsMalformedURLString(t *testing.T) {
	f := New(&capturingCaller{}, 15*time.Second, "/tmp/artifacts")
	args, _ := json.Marshal(map[string]any{"url": "not a url"})
	_, err := f.OpenURL(context.Background(), args)
	if err == nil || err.Reason != wire.ReasonInvalidURL {
		t.Fatalf("expected an invalid_url error, got %v", err)
	}
}

func TestScreenshotRejectsMalformedURLString(t *testing.T) {
	f := New(&capturingCaller{}, 15*time.Second, "/tmp/artifacts")
	args, _ := json.Marshal(map[string]any{"url": "ftp://example.com/file"})
	_, err := f.Screenshot(context.Background(), args)
	if err == nil || err.Reason != wire.ReasonInvalidURL {
		t.Fatalf("expected an invalid_url error, got %v", err)
	}
}

func TestOpenURLNormalizesUnknownMatchMode(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`{}`)}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	args, _ := json.Marshal(map[string]any{"match": "fuzzy"})
	if _, err := f.OpenURL(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sent openURLArgs
	json.Unmarshal(caller.gotParams, &sent)
	if sent.Match != "prefix" {
		t.Errorf("got match %q, want fallback to prefix", sent.Match)
	}
}

func TestScreenshotAppliesDefaultsAndArtifactDir(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`{"path":""}`)}
	f := New(caller, 15*time.Second, "/var/cache/browserbridge")

	_, err := f.Screenshot(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotCmd != "screenshot" {
		t.Fatalf("got cmd %q, want screenshot", caller.gotCmd)
	}

	var sent screenshotArgs
	json.Unmarshal(caller.gotParams, &sent)
	if sent.Format != "png" {
		t.Errorf("got format %q, want png", sent.Format)
	}
	if sent.JPEGQuality != 80 {
		t.Errorf("got jpegQuality %d, want 80", sent.JPEGQuality)
	}
	if sent.ReturnMode != "artifact" {
		t.Errorf("got returnMode %q, want artifact", sent.ReturnMode)
	}
	if sent.ArtifactDir != "/var/cache/browserbridge" {
		t.Errorf("got artifactDir %q, want default", sent.ArtifactDir)
	}
}

func TestScreenshotEnrichesArtifactDescriptorWhenPathExists(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/shot.png"
	if err := writeTestFile(path, "pngbytes"); err != nil {
		t.Fatal(err)
	}

	caller := &capturingCaller{result: mustMarshal(map[string]string{"path": path})}
	f := New(caller, 15*time.Second, dir)

	result, err := f.Screenshot(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var desc struct {
		Path      string `json:"path"`
		SizeBytes int64  `json:"sizeBytes"`
	}
	if err := json.Unmarshal(result, &desc); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if desc.Path != path {
		t.Errorf("got path %q, want %q", desc.Path, path)
	}
	if desc.SizeBytes != int64(len("pngbytes")) {
		t.Errorf("got size %d, want %d", desc.SizeBytes, len("pngbytes"))
	}
}

func TestScreenshotImageReturnModeSkipsEnrichment(t *testing.T) {
	caller := &capturingCaller{result: mustMarshal(map[string]string{"data": "base64data"})}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	args, _ := json.Marshal(map[string]any{"returnMode": "image"})
	result, err := f.Screenshot(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]string
	json.Unmarshal(result, &out)
	if out["data"] != "base64data" {
		t.Fatalf("expected raw result to pass through unmodified, got %v", out)
	}
}

func TestScreenshotPropagatesCallerError(t *testing.T) {
	caller := &capturingCaller{err: wire.NoClient("ws://127.0.0.1:8766")}
	f := New(caller, 15*time.Second, "/tmp/artifacts")

	_, err := f.Screenshot(context.Background(), nil)
	if err == nil || err.Reason != wire.ReasonNoClient {
		t.Fatalf("expected the caller's error to propagate, got %v", err)
	}
}

func TestArtifactCleanupNeverCallsCaller(t *testing.T) {
	dir := t.TempDir()
	caller := &capturingCaller{}
	f := New(caller, 15*time.Second, dir)

	result, err := f.ArtifactCleanup(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotCmd != "" {
		t.Fatalf("artifact_cleanup should never reach the caller, got cmd %q", caller.gotCmd)
	}
	var out struct {
		Scanned int `json:"scanned"`
	}
	json.Unmarshal(result, &out)
	if out.Scanned != 0 {
		t.Errorf("expected an empty directory to scan 0 files, got %d", out.Scanned)
	}
}

func TestArtifactCleanupClampsMaxAgeHours(t *testing.T) {
	dir := t.TempDir()
	f := New(&capturingCaller{}, 15*time.Second, dir)

	args, _ := json.Marshal(map[string]any{"maxAgeHours": -5})
	if _, err := f.ArtifactCleanup(context.Background(), args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyRuntimeConfigUpdatesDefaults(t *testing.T) {
	caller := &capturingCaller{result: json.RawMessage(`[]`)}
	f := New(caller, 15*time.Second, "/tmp/old")

	f.ApplyRuntimeConfig(30*time.Second, "/tmp/new")

	if _, err := f.ListTabs(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.gotTimeout != 30*time.Second {
		t.Errorf("got timeout %v, want updated 30s", caller.gotTimeout)
	}
	if f.artifactDir() != "/tmp/new" {
		t.Errorf("got artifact dir %q, want updated", f.artifactDir())
	}
}

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
