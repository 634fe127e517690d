// Package config loads the bridge daemon's settings: bind host/port,
// dispatcher timing knobs, the artifact directory, and the KV store
// path. Settings come from a TOML file (with an embedded sample
// template, written by `browserbridge init`) and can be overridden by
// the environment variables listed below, which take precedence over
// the file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Duration marshals as a Go duration string ("10s") in TOML instead of a
// raw integer.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config holds every knob the dispatcher and supervisor accept, plus
// the facade's validation defaults.
type Config struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	HeartbeatInterval    Duration `toml:"heartbeat_interval"`
	PongTimeout          Duration `toml:"pong_timeout"`
	RetryJitterMax       Duration `toml:"retry_jitter_max"`
	RetryWaitForClient   Duration `toml:"retry_wait_for_client"`
	DefaultOpenTimeout   Duration `toml:"default_open_timeout"`
	ArtifactDir          string   `toml:"artifact_dir"`
	EndpointAdvertiseSet []string `toml:"endpoint_hosts"`
}

// GetDefaultConfig returns the hard-coded defaults for heartbeat/pong
// timing and the facade's screenshot timeout.
func GetDefaultConfig() *Config {
	return &Config{
		Host:               defaultBindHost(),
		Port:               8766,
		HeartbeatInterval:  Duration{10 * time.Second},
		PongTimeout:        Duration{25 * time.Second},
		RetryJitterMax:     Duration{100 * time.Millisecond},
		RetryWaitForClient: Duration{1200 * time.Millisecond},
		DefaultOpenTimeout: Duration{15 * time.Second},
		ArtifactDir:        GetDefaultArtifactDir(),
	}
}

// LoadConfig reads configPath if present (otherwise returns defaults),
// then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := GetDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = GetDefaultArtifactDir()
	}
	return cfg, nil
}

// applyEnvOverrides implements the recognized environment variables:
// WS_HOST, WS_PORT, WS_ENDPOINT_HOSTS.
func applyEnvOverrides(cfg *Config) {
	if h := os.Getenv("WS_HOST"); h != "" {
		cfg.Host = h
	}
	if p := os.Getenv("WS_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil && port >= 1 && port <= 65535 {
			cfg.Port = port
		}
	}
	if hosts := os.Getenv("WS_ENDPOINT_HOSTS"); hosts != "" {
		var list []string
		for _, h := range strings.Split(hosts, ",") {
			h = strings.TrimSpace(h)
			if h != "" {
				list = append(list, h)
			}
		}
		if len(list) > 0 {
			cfg.EndpointAdvertiseSet = list
		}
	}
}

// defaultBindHost detects WSL: under WSL, bind 0.0.0.0 instead of
// 127.0.0.1 so a Windows-side browser extension can reach the
// Linux-side dispatcher.
func defaultBindHost() string {
	if runtime.GOOS != "linux" {
		return "127.0.0.1"
	}
	if os.Getenv("WSL_DISTRO_NAME") != "" || os.Getenv("WSL_INTEROP") != "" {
		return "0.0.0.0"
	}
	if release, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		if strings.Contains(strings.ToLower(string(release)), "microsoft") {
			return "0.0.0.0"
		}
	}
	return "127.0.0.1"
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(configPath, data, 0o644)
}

// SaveTemplateConfig writes the embedded commented sample, with its
// placeholder artifact directory replaced by the real default, so a
// freshly initialized config file is both valid and documented.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	artifactDir := c.ArtifactDir
	if artifactDir == "" {
		artifactDir = GetDefaultArtifactDir()
	}
	template := strings.Replace(configTemplate, "/home/user/.cache/browserbridge/artifacts", artifactDir, 1)
	return os.WriteFile(configPath, []byte(template), 0o644)
}

// GetDefaultArtifactDir resolves an XDG-aware cache directory for
// screenshots and other disposable artifacts.
func GetDefaultArtifactDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "./artifacts"
		}
		cacheDir = filepath.Join(homeDir, ".cache")
	}
	dir := filepath.Join(cacheDir, "browserbridge", "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "./artifacts"
	}
	return dir
}

// GetConfigDir returns the configuration directory for the bridge.
func GetConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	dir := filepath.Join(configDir, "browserbridge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "."
	}
	return dir
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// GetDefaultKVPath returns the default sqlite-backed KV store path used
// for the sticky endpoint and user-configured URL.
func GetDefaultKVPath() string {
	return filepath.Join(GetConfigDir(), "state.db")
}

// DebugPort derives the loopback-only port `serve` exposes the live
// dispatcher snapshot on from the configured bind port, so `status` can
// find it without either command needing its own persisted setting.
func DebugPort(port int) int {
	return port + 1000
}
