package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/localbridge/browserbridge/pkg/config"
	"github.com/localbridge/browserbridge/pkg/dispatcher"
	"github.com/localbridge/browserbridge/pkg/kvstore"
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				Background(lipgloss.Color("235")).
				Padding(0, 1).
				Margin(0, 0, 1, 0)

	statusOKStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))

	statusBadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	statusFieldStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// StatusCommand creates the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the dispatcher bind address and the supervisor's last sticky endpoint",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "clear the persisted sticky endpoint",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStatus(c.String("config"), c.Bool("reset"))
		},
	}
}

func showStatus(configPath string, reset bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := kvstore.Open(config.GetDefaultKVPath())
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	if reset {
		if err := store.Delete(kvstore.KeyStickyEndpoint); err != nil {
			return fmt.Errorf("clearing sticky endpoint: %w", err)
		}
		fmt.Println("Sticky endpoint cleared.")
		return nil
	}

	fmt.Println(statusTitleStyle.Render("browserbridge status"))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("%s %s\n", statusFieldStyle.Render("configured bind address:"), addr)
	fmt.Printf("%s %s\n", statusFieldStyle.Render("reachable:"), reachability(addr))

	sticky, ok, err := store.Get(kvstore.KeyStickyEndpoint)
	if err != nil {
		return fmt.Errorf("reading sticky endpoint: %w", err)
	}
	if ok {
		fmt.Printf("%s %s\n", statusFieldStyle.Render("sticky endpoint:"), sticky)
	} else {
		fmt.Printf("%s %s\n", statusFieldStyle.Render("sticky endpoint:"), "none recorded yet")
	}

	userURL, ok, err := store.Get(kvstore.KeyUserConfiguredURL)
	if err != nil {
		return fmt.Errorf("reading user-configured URL: %w", err)
	}
	if ok {
		fmt.Printf("%s %s\n", statusFieldStyle.Render("user-configured URL:"), userURL)
	}

	fmt.Printf("%s %s\n", statusFieldStyle.Render("artifact directory:"), cfg.ArtifactDir)

	if stats, ok := fetchDebugStats(cfg.Port); ok {
		fmt.Printf("%s %d\n", statusFieldStyle.Render("connected extension clients:"), stats.ConnectedClients)
		fmt.Printf("%s %d\n", statusFieldStyle.Render("pending requests:"), stats.PendingRequests)
	}

	return nil
}

// fetchDebugStats asks a running `serve` process's debug HTTP server for
// its live dispatcher snapshot. ok is false whenever nothing is running
// or reachable there, which is the common case when status is run with
// no serve process up; that's not an error, just nothing to show.
func fetchDebugStats(port int) (dispatcher.Stats, bool) {
	url := fmt.Sprintf("http://127.0.0.1:%d/stats", config.DebugPort(port))
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(url)
	if err != nil {
		return dispatcher.Stats{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return dispatcher.Stats{}, false
	}
	var stats dispatcher.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return dispatcher.Stats{}, false
	}
	return stats, true
}

// reachability does a best-effort TCP dial to see whether something is
// listening on addr; it does not perform the hello/hello_ack handshake,
// since a closed dispatcher still leaves the port bound in some
// deployments (systemd socket activation, a restarting process).
func reachability(addr string) string {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return statusBadStyle.Render("no")
	}
	_ = conn.Close()
	return statusOKStyle.Render("yes")
}
