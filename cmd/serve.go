package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/localbridge/browserbridge/pkg/config"
	"github.com/localbridge/browserbridge/pkg/dispatcher"
	"github.com/localbridge/browserbridge/pkg/facade"
	bblog "github.com/localbridge/browserbridge/pkg/log"
	"github.com/localbridge/browserbridge/pkg/wire"
)

// ServeCommand creates the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the bridge dispatcher and the stdin/stdout tool-call loop",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("debug") {
				bblog.SetGlobalDebug(true)
			}
			return serve(ctx, c.String("config"))
		},
	}
}

// rpcRequest is one line of the stdin protocol this command speaks: a
// minimal stand-in for the actual MCP stdio transport, which lives
// outside this process. Each line names one of the four tool-call
// operations and carries its raw arguments.
type rpcRequest struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

type rpcResponse struct {
	ID     string            `json:"id"`
	OK     bool              `json:"ok"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *wire.BridgeError `json:"error,omitempty"`
}

// serve starts the dispatcher, wraps it in the tool-call facade, and
// drives that facade from line-delimited JSON read on stdin, writing
// one response line per request on stdout.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := bblog.ForService("serve")

	var cfgMu sync.RWMutex
	current := cfg

	opts := dispatcher.Options{
		Host:               cfg.Host,
		Logger:             bblog.ForService("dispatcher"),
		HeartbeatInterval:  cfg.HeartbeatInterval.Duration,
		PongTimeout:        cfg.PongTimeout.Duration,
		RetryJitterMax:     cfg.RetryJitterMax.Duration,
		RetryWaitForClient: cfg.RetryWaitForClient.Duration,
	}

	// Bind the configured port, moving on to the next one in
	// [port, port+5) while the current one is in use.
	var d *dispatcher.Dispatcher
	var externalURL string
	for port := cfg.Port; port < cfg.Port+5; port++ {
		opts.Port = port
		d = dispatcher.New(opts)
		externalURL, err = d.Start()
		var inUse *dispatcher.PortInUseError
		if err == nil || !errors.As(err, &inUse) {
			break
		}
		log.Warnf("port %d in use, trying the next one", port)
	}
	if err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	defer d.Stop()
	log.Infof("dispatcher listening on %s", externalURL)

	debugSrv := startDebugServer(cfg.Port, d, log)
	if debugSrv != nil {
		defer debugSrv.Close()
	}

	f := facade.New(d, cfg.DefaultOpenTimeout.Duration, cfg.ArtifactDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(configPath); err != nil {
			log.Warnf("failed to watch config file %s: %v", configPath, err)
		}
	}

	done := make(chan struct{})
	go runRPCLoop(ctx, f, log, done)

	for {
		select {
		case <-done:
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := reloadServeConfig(configPath, &cfgMu, &current, f); err != nil {
					log.Warnf("config reload failed: %v", err)
				} else {
					log.Infof("config reloaded")
				}
			default:
				log.Infof("shutting down")
				return nil
			}
		case event, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				time.Sleep(100 * time.Millisecond)
				if err := reloadServeConfig(configPath, &cfgMu, &current, f); err != nil {
					log.Warnf("config reload after file change failed: %v", err)
				} else {
					log.Infof("config reloaded after file change")
				}
			}
		}
	}
}

// startDebugServer binds a loopback-only HTTP listener serving the live
// dispatcher's Stats() as JSON on /stats, so `browserbridge status` (a
// separate process with no other channel into this one) can report
// connected-client and pending-request counts. Best-effort: a bind
// failure (e.g. the derived port is also taken) just disables the
// snapshot, it never fails serve.
func startDebugServer(port int, d *dispatcher.Dispatcher, log *bblog.Logger) *http.Server {
	addr := fmt.Sprintf("127.0.0.1:%d", config.DebugPort(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Warnf("debug stats server disabled: %v", err)
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Stats())
	})
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warnf("debug stats server stopped: %v", err)
		}
	}()
	log.Infof("debug stats available on http://%s/stats", addr)
	return srv
}

// watcherEvents returns w.Events, or a nil channel (which blocks
// forever in a select) if the watcher failed to start.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

// reloadServeConfig applies the subset of configuration that can change
// without rebinding the listener: the artifact directory and the
// facade's default timeout. Host and port changes require a restart.
func reloadServeConfig(configPath string, mu *sync.RWMutex, current **config.Config, f *facade.Facade) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	*current = newCfg
	f.ApplyRuntimeConfig(newCfg.DefaultOpenTimeout.Duration, newCfg.ArtifactDir)
	return nil
}

// runRPCLoop reads one rpcRequest per line from stdin and writes one
// rpcResponse per line to stdout until stdin closes.
func runRPCLoop(ctx context.Context, f *facade.Facade, log *bblog.Logger, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warnf("malformed request line: %v", err)
			continue
		}
		resp := handleRPCRequest(ctx, f, req)
		if err := enc.Encode(resp); err != nil {
			log.Errorf("writing response: %v", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("reading stdin: %v", err)
	}
}

func handleRPCRequest(ctx context.Context, f *facade.Facade, req rpcRequest) rpcResponse {
	var result json.RawMessage
	var callErr *wire.BridgeError

	switch req.Tool {
	case "list_tabs":
		result, callErr = f.ListTabs(ctx)
	case "open_url":
		result, callErr = f.OpenURL(ctx, req.Args)
	case "screenshot":
		result, callErr = f.Screenshot(ctx, req.Args)
	case "artifact_cleanup":
		result, callErr = f.ArtifactCleanup(ctx, req.Args)
	default:
		callErr = &wire.BridgeError{Message: fmt.Sprintf("unknown tool %q", req.Tool), Reason: "unknown_tool", Code: "UNKNOWN_TOOL"}
	}

	if callErr != nil {
		return rpcResponse{ID: req.ID, OK: false, Error: callErr}
	}
	return rpcResponse{ID: req.ID, OK: true, Result: result}
}
