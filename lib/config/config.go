// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "DCTRANSFER_CONFIG"

// Config is the master configuration for dctransfer.
type Config struct {
	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`

	// Signaling configures the relay.
	Signaling SignalingConfig `yaml:"signaling"`

	// ICE lists STUN/TURN servers.
	ICE ICEConfig `yaml:"ice"`

	// Transfer configures outbound transfers.
	Transfer TransferConfig `yaml:"transfer"`

	// Probe configures round-trip measurement.
	Probe ProbeConfig `yaml:"probe"`

	// Metrics configures the Prometheus exporter.
	Metrics MetricsConfig `yaml:"metrics"`

	// Report configures persisted transfer reports.
	Report ReportConfig `yaml:"report"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// SignalingConfig configures the signaling relay.
type SignalingConfig struct {
	// RelayURL is the websocket URL peers connect to.
	// Default: ws://localhost:8080/
	RelayURL string `yaml:"relay_url"`

	// Listen is the address the relay command binds.
	// Default: :8080
	Listen string `yaml:"listen"`
}

// ICEConfig configures connectivity checks.
type ICEConfig struct {
	// Servers is empty by default: host candidates only.
	Servers []ICEServer `yaml:"servers"`
}

// ICEServer is one STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// TransferConfig configures outbound transfers.
type TransferConfig struct {
	// ChunkSize is the chunk length in bytes including the 4-byte
	// sequence header.
	// Default: 16384
	ChunkSize int `yaml:"chunk_size"`

	// Connections is the number of transfer connections.
	// Default: 1
	Connections int `yaml:"connections"`

	// ChannelsPerConnection is the number of data channels per
	// connection.
	// Default: 1
	ChannelsPerConnection int `yaml:"channels_per_connection"`

	// Ordered selects ordered, reliable channels.
	// Default: true
	Ordered bool `yaml:"ordered"`

	// PollingInterval paces buffer polling where the transport has no
	// buffered-amount-low event, and the sender's drain check.
	// Default: 10ms
	PollingInterval time.Duration `yaml:"polling_interval"`

	// SafetyLimitMB caps a channel's buffered amount. Zero means the
	// transport's own limit, or 512 with SafetyLimitWorkaround.
	SafetyLimitMB float64 `yaml:"safety_limit_mb"`

	// SafetyLimitWorkaround applies the 512 MiB limit when no explicit
	// limit is set.
	SafetyLimitWorkaround bool `yaml:"safety_limit_workaround"`

	// VerifyPayload announces the payload digest so the receiver
	// counts corrupted chunks.
	VerifyPayload bool `yaml:"verify_payload"`

	// ProgressInterval is the progress reporting period.
	// Default: 500ms
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// ProbeConfig configures ping-pong probing.
type ProbeConfig struct {
	Enabled bool `yaml:"enabled"`

	// Mode is shared, dedicated-channel or dedicated-connection.
	// Default: shared
	Mode string `yaml:"mode"`

	// SendingPeriod is the interval between probes.
	// Default: 100ms
	SendingPeriod time.Duration `yaml:"sending_period"`

	// MetricsPeriod is the RTT window length.
	// Default: 1s
	MetricsPeriod time.Duration `yaml:"metrics_period"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	// Listen is the exporter address. Empty disables the exporter.
	Listen string `yaml:"listen"`

	// Path is the HTTP path metrics are served on.
	// Default: /metrics
	Path string `yaml:"path"`
}

// ReportConfig configures persisted reports.
type ReportConfig struct {
	// Directory receives one report file per transfer. Empty disables
	// reports.
	Directory string `yaml:"directory"`

	// Compress writes zstd-compressed reports (.cbor.zst).
	Compress bool `yaml:"compress"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	probeModes = []string{"shared", "dedicated-channel", "dedicated-connection"}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Signaling: SignalingConfig{
			RelayURL: "ws://localhost:8080/",
			Listen:   ":8080",
		},
		Transfer: TransferConfig{
			ChunkSize:             16384,
			Connections:           1,
			ChannelsPerConnection: 1,
			Ordered:               true,
			PollingInterval:       10 * time.Millisecond,
			ProgressInterval:      500 * time.Millisecond,
		},
		Probe: ProbeConfig{
			Mode:          "shared",
			SendingPeriod: 100 * time.Millisecond,
			MetricsPeriod: time.Second,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Load loads configuration from the file named by DCTRANSFER_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your dctransfer.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// [Default] and expands variables. It does not validate; callers
// apply flag overrides first and then call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Signaling.RelayURL = expandVars(c.Signaling.RelayURL, vars)
	c.Report.Directory = expandVars(c.Report.Directory, vars)
	for i := range c.ICE.Servers {
		c.ICE.Servers[i].Username = expandVars(c.ICE.Servers[i].Username, vars)
		c.ICE.Servers[i].Credential = expandVars(c.ICE.Servers[i].Credential, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	if c.Signaling.RelayURL != "" {
		parsed, err := url.Parse(c.Signaling.RelayURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("signaling.relay_url: %w", err))
		case parsed.Scheme != "ws" && parsed.Scheme != "wss":
			errs = append(errs, fmt.Errorf("signaling.relay_url must use ws or wss, got %q", parsed.Scheme))
		}
	}

	for i, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d].urls is required", i))
		}
		for _, serverURL := range server.URLs {
			if !strings.HasPrefix(serverURL, "stun:") && !strings.HasPrefix(serverURL, "turn:") && !strings.HasPrefix(serverURL, "turns:") {
				errs = append(errs, fmt.Errorf("ice.servers[%d]: %q is not a stun:, turn: or turns: URL", i, serverURL))
			}
		}
	}

	transfer := c.Transfer
	if transfer.ChunkSize <= 4 {
		errs = append(errs, fmt.Errorf("transfer.chunk_size must exceed the 4-byte header, got %d", transfer.ChunkSize))
	}
	if transfer.Connections < 1 {
		errs = append(errs, fmt.Errorf("transfer.connections must be at least 1"))
	}
	if transfer.ChannelsPerConnection < 1 {
		errs = append(errs, fmt.Errorf("transfer.channels_per_connection must be at least 1"))
	}
	if transfer.PollingInterval <= 0 {
		errs = append(errs, fmt.Errorf("transfer.polling_interval must be positive"))
	}
	if transfer.SafetyLimitMB < 0 {
		errs = append(errs, fmt.Errorf("transfer.safety_limit_mb must not be negative"))
	}
	if transfer.ProgressInterval <= 0 {
		errs = append(errs, fmt.Errorf("transfer.progress_interval must be positive"))
	}

	if !slices.Contains(probeModes, c.Probe.Mode) {
		errs = append(errs, fmt.Errorf("probe.mode must be one of: %v", probeModes))
	}
	if c.Probe.SendingPeriod <= 0 {
		errs = append(errs, fmt.Errorf("probe.sending_period must be positive"))
	}
	if c.Probe.MetricsPeriod <= 0 {
		errs = append(errs, fmt.Errorf("probe.metrics_period must be positive"))
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /"))
	}

	return errors.Join(errs...)
}
