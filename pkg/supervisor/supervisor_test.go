package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/localbridge/browserbridge/pkg/browserops"
	bblog "github.com/localbridge/browserbridge/pkg/log"
	"github.com/localbridge/browserbridge/pkg/wire"
)

// fakeDispatcherServer accepts one hello and lets the test drive cmd/res
// frames directly, standing in for the real dispatcher in these tests.
type fakeDispatcherServer struct {
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newFakeDispatcherServer() *fakeDispatcherServer {
	return &fakeDispatcherServer{connCh: make(chan *websocket.Conn, 1)}
}

func (f *fakeDispatcherServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	env, err := wire.Parse(data)
	if err != nil || env.Kind != wire.KindHello {
		conn.Close()
		return
	}
	ack, _ := wire.MarshalHelloAck()
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		conn.Close()
		return
	}
	f.connCh <- conn
}

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, cmd string, params json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"echo": cmd})
}

func TestSupervisorConnectsAndExecutesCommand(t *testing.T) {
	fake := newFakeDispatcherServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	sv := New(Options{
		Seeds:   []string{wsURL},
		Handler: echoHandler{},
		Logger:  bblog.ForService("supervisor-test"),
	})
	sv.Start()
	defer sv.Stop()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-fake.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never connected to fake dispatcher")
	}
	defer serverConn.Close()

	cmdFrame, _ := wire.MarshalCmd(wire.Cmd{ID: "req-1", Cmd: "listTabs"})
	if err := serverConn.WriteMessage(websocket.TextMessage, cmdFrame); err != nil {
		t.Fatalf("writing cmd: %v", err)
	}

	_ = serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("reading res: %v", err)
	}
	env, err := wire.Parse(data)
	if err != nil || env.Kind != wire.KindRes {
		t.Fatalf("expected a res frame, got kind=%v err=%v", env.Kind, err)
	}
	if !env.Res.OK {
		t.Fatalf("expected ok=true, got error %v", env.Res.Error)
	}
	if env.Res.ID != "req-1" {
		t.Fatalf("got id %s, want req-1", env.Res.ID)
	}
}

func TestSupervisorRejectsDuplicateCommandID(t *testing.T) {
	fake := newFakeDispatcherServer()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	sv := New(Options{
		Seeds:   []string{wsURL},
		Handler: echoHandler{},
		Logger:  bblog.ForService("supervisor-test-dup"),
	})
	sv.Start()
	defer sv.Stop()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-fake.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never connected")
	}
	defer serverConn.Close()

	cmdFrame, _ := wire.MarshalCmd(wire.Cmd{ID: "dup-1", Cmd: "listTabs"})
	_ = serverConn.WriteMessage(websocket.TextMessage, cmdFrame)
	_ = serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := serverConn.ReadMessage(); err != nil {
		t.Fatalf("reading first res: %v", err)
	}

	_ = serverConn.WriteMessage(websocket.TextMessage, cmdFrame)
	_, data, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("reading second res: %v", err)
	}
	env, err := wire.Parse(data)
	if err != nil || env.Kind != wire.KindRes {
		t.Fatalf("expected res frame, got kind=%v err=%v", env.Kind, err)
	}
	if env.Res.OK {
		t.Fatal("expected the duplicate id to be rejected")
	}
	if env.Res.Error == nil || env.Res.Error.Reason != wire.ReasonDuplicateRequestID {
		t.Fatalf("expected duplicate_request_id reason, got %+v", env.Res.Error)
	}
}

func TestSupervisorDefaultsToStubHandler(t *testing.T) {
	sv := New(Options{})
	if _, ok := sv.opts.Handler.(*browserops.Stub); !ok {
		t.Fatalf("expected New to default to browserops.Stub, got %T", sv.opts.Handler)
	}
}
