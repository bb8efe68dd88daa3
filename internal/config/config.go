// Package config loads the daemon configuration from config.yaml in the
// metronom configuration directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/internal/runner"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/energylab/metronom/pkg/operations"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "config.yaml"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	Reply   ReplyConfig   `yaml:"reply_server"`
	Timing  TimingConfig  `yaml:"timing"`
	Failure FailureConfig `yaml:"failure"`
	Sound   SoundConfig   `yaml:"sound"`
	// Proxy is the default proxy of network, web and ftp operations.
	Proxy string `yaml:"proxy,omitempty"`
	// ScriptDir resolves relative script operation files. Defaults to
	// the scenarios directory.
	ScriptDir string `yaml:"script_dir,omitempty"`
}

type DaemonConfig struct {
	// TCPPort is the control port used when no unix socket or named pipe
	// is available. The web server listens on TCPPort+1.
	TCPPort   int  `yaml:"tcp_port"`
	ListenAll bool `yaml:"listen_all"`
	Debug     bool `yaml:"debug"`
	// LogFile receives JSON logs. Empty means <config dir>/metronom.log.
	LogFile string `yaml:"log_file,omitempty"`
}

type ReplyConfig struct {
	Host          string `yaml:"host"`
	TCPPort       int    `yaml:"tcp_port"`
	KeepAlivePort int    `yaml:"keepalive_port"`
	UDPPort       int    `yaml:"udp_port"`
	TimeoutMs     int    `yaml:"timeout_ms"`
}

type TimingConfig struct {
	DefaultPauseMs     int64 `yaml:"default_pause_ms"`
	SetupGraceMs       int64 `yaml:"setup_grace_ms"`
	MinPauseMs         int64 `yaml:"min_pause_ms"`
	StartupDelayMs     int64 `yaml:"startup_delay_ms"`
	FinishedIntervalMs int64 `yaml:"finished_interval_ms"`
	FailureIntervalMs  int64 `yaml:"failure_interval_ms"`
	SyncEdges          int   `yaml:"sync_edges"`
	SyncEdgeDeltaMs    int64 `yaml:"sync_edge_delta_ms"`
	HandshakeTimeoutMs int64 `yaml:"handshake_timeout_ms"`
	HandshakePollMs    int64 `yaml:"handshake_poll_ms"`
}

// FailureConfig holds the failure policy per run mode, "halt" or "continue".
type FailureConfig struct {
	Continuous string `yaml:"continuous"`
	Resumable  string `yaml:"resumable"`
}

type SoundConfig struct {
	// Command is a text-to-speech command line such as "espeak -s 150".
	// Empty logs cues instead.
	Command string `yaml:"command,omitempty"`
	Bell    bool   `yaml:"bell"`
}

// Default returns the built-in configuration.
func Default() *Config {
	t := runner.DefaultTiming()
	return &Config{
		Daemon: DaemonConfig{TCPPort: common.DefaultTCPPort},
		Reply: ReplyConfig{
			Host:          "127.0.0.1",
			TCPPort:       operations.DefaultTCPPort,
			KeepAlivePort: operations.DefaultTCPKeepAlivePort,
			UDPPort:       operations.DefaultUDPPort,
			TimeoutMs:     5000,
		},
		Timing: TimingConfig{
			DefaultPauseMs:     t.DefaultPauseMs,
			SetupGraceMs:       t.SetupGrace.Milliseconds(),
			MinPauseMs:         t.MinPauseMs,
			StartupDelayMs:     t.StartupDelayMs,
			FinishedIntervalMs: t.FinishedInterval.Milliseconds(),
			FailureIntervalMs:  t.FailureInterval.Milliseconds(),
			SyncEdges:          t.SyncEdges,
			SyncEdgeDeltaMs:    t.SyncEdgeDelta.Milliseconds(),
			HandshakeTimeoutMs: t.HandshakeTimeout.Milliseconds(),
			HandshakePollMs:    t.HandshakePoll.Milliseconds(),
		},
		Failure: FailureConfig{
			Continuous: runner.HaltOnFailure.String(),
			Resumable:  runner.ContinueOnFailure.String(),
		},
	}
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(metrolib.ConfigDir, FileName)
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// ApplyEnv overrides fields from the environment variables in common.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(common.TCPPortEnv); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, common.TCPPortEnv, v)
		}
		c.Daemon.TCPPort = p
	}
	if v, ok := lookup(common.DebugEnv); ok {
		c.Daemon.Debug = v == "1"
	}
	if v, ok := lookup(common.ReplyHostEnv); ok && v != "" {
		c.Reply.Host = v
	}
	if v, ok := lookup(common.ProxyEnv); ok {
		c.Proxy = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Daemon.TCPPort < 1 || c.Daemon.TCPPort > 65534 {
		return fmt.Errorf("%w: daemon.tcp_port %d out of range", ErrInvalidConfig, c.Daemon.TCPPort)
	}
	if c.Timing.MinPauseMs < 1 {
		return fmt.Errorf("%w: timing.min_pause_ms must be positive", ErrInvalidConfig)
	}
	if c.Timing.HandshakePollMs < 1 {
		return fmt.Errorf("%w: timing.handshake_poll_ms must be positive", ErrInvalidConfig)
	}
	for _, p := range []string{c.Failure.Continuous, c.Failure.Resumable} {
		if _, err := ParsePolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// ParsePolicy maps "halt" and "continue" to a failure policy.
func ParsePolicy(s string) (runner.FailurePolicy, error) {
	switch s {
	case "halt", "":
		return runner.HaltOnFailure, nil
	case "continue":
		return runner.ContinueOnFailure, nil
	}
	return 0, fmt.Errorf("%w: failure policy %q, expected halt or continue", ErrInvalidConfig, s)
}

// RunnerTiming converts the timing section.
func (c *Config) RunnerTiming() runner.Timing {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	t := c.Timing
	return runner.Timing{
		DefaultPauseMs:   t.DefaultPauseMs,
		SetupGrace:       ms(t.SetupGraceMs),
		MinPauseMs:       t.MinPauseMs,
		StartupDelayMs:   t.StartupDelayMs,
		FinishedInterval: ms(t.FinishedIntervalMs),
		FailureInterval:  ms(t.FailureIntervalMs),
		SyncEdges:        t.SyncEdges,
		SyncEdgeDelta:    ms(t.SyncEdgeDeltaMs),
		HandshakeTimeout: ms(t.HandshakeTimeoutMs),
		HandshakePoll:    ms(t.HandshakePollMs),
	}
}

// Policies returns the continuous and resumable failure policies.
func (c *Config) Policies() (continuous, resumable runner.FailurePolicy) {
	continuous, _ = ParsePolicy(c.Failure.Continuous)
	resumable, _ = ParsePolicy(c.Failure.Resumable)
	return continuous, resumable
}

// OperationDeps returns the operation dependencies described by c.
func (c *Config) OperationDeps() operations.Deps {
	return operations.Deps{
		Reply: operations.ReplyServer{
			Host:          c.Reply.Host,
			TCPPort:       c.Reply.TCPPort,
			KeepAlivePort: c.Reply.KeepAlivePort,
			UDPPort:       c.Reply.UDPPort,
		},
		Proxy:         c.Proxy,
		ScriptDir:     c.ScriptDir,
		SocketTimeout: time.Duration(c.Reply.TimeoutMs) * time.Millisecond,
	}
}
