package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/downfa11-org/logship/util"
	"gopkg.in/yaml.v3"
)

// Roles a process can run.
const (
	RolePrimary      = "primary"
	RoleReplica      = "replica"
	RoleRelay        = "relay"
	RoleReplicaRelay = "replica+relay"
)

// Config is the construction-time configuration of every role. There is no
// dynamic reload.
type Config struct {
	Role     string        `yaml:"role" json:"role"`
	LogLevel util.LogLevel `yaml:"log_level" json:"log_level"`

	// Primary listener
	BindAddr string `yaml:"bind_addr" json:"bind.addr"`
	Port     int    `yaml:"port" json:"port"`

	// Replica connection
	PrimaryAddr string `yaml:"primary_addr" json:"primary.addr"`
	NodeID      uint32 `yaml:"node_id" json:"node.id"`
	ServerSide  bool   `yaml:"server_side" json:"server.side"`
	AllowPull   bool   `yaml:"allow_pull" json:"allow.pull"`

	// Shared secret, compared for plain equality.
	Password string `yaml:"password" json:"password"`

	// Segment storage and retention
	LogDir             string `yaml:"log_dir" json:"log.dir"`
	SegmentSize        int64  `yaml:"segment_size" json:"segment.size"`
	RetentionHours     int    `yaml:"retention_hours" json:"retention.hours"`
	CleanupIntervalSec int    `yaml:"cleanup_interval_sec" json:"cleanup.interval.sec"`

	// Protocol timing
	HeartbeatIntervalMS int   `yaml:"heartbeat_interval_ms" json:"heartbeat.interval.ms"`
	HeartbeatTimeoutMS  int   `yaml:"heartbeat_timeout_ms" json:"heartbeat.timeout.ms"`
	PullIntervalMS      int   `yaml:"pull_interval_ms" json:"pull.interval.ms"`
	ReconnectDelayMS    int   `yaml:"reconnect_delay_ms" json:"reconnect.delay.ms"`
	MaxPushBytes        int64 `yaml:"max_push_bytes" json:"max.push.bytes"`
	RelayPollIntervalMS int   `yaml:"relay_poll_interval_ms" json:"relay.poll.interval.ms"`

	// Observability
	EnableExporter bool `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int  `yaml:"exporter_port" json:"exporter.port"`
}

// LoadConfig builds the configuration from flags, an optional YAML/JSON file,
// and LOGSHIP_* environment variables, in that order of increasing priority
// except that explicitly set flags override the file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(flag.CommandLine, os.Args[1:])
}

func LoadConfigFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	def := Defaults()

	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	logLevelStr := fs.String("log-level", def.LogLevel.String(), "Log Level (debug, info, warn, error)")

	fs.StringVar(&cfg.Role, "role", def.Role, "Role to run: primary, replica, relay, replica+relay")
	fs.StringVar(&cfg.BindAddr, "bind", def.BindAddr, "Primary bind address")
	fs.IntVar(&cfg.Port, "port", def.Port, "Primary port")
	fs.StringVar(&cfg.PrimaryAddr, "primary", def.PrimaryAddr, "Primary address for replicas (host:port)")
	fs.StringVar(&cfg.Password, "password", def.Password, "Shared replication secret")
	fs.StringVar(&cfg.LogDir, "log-dir", def.LogDir, "Directory for segments and cursor files")
	fs.Int64Var(&cfg.SegmentSize, "segment-size", def.SegmentSize, "Segment size limit in bytes")
	fs.IntVar(&cfg.RetentionHours, "retention-hours", def.RetentionHours, "Retention window for finalized segments")
	fs.IntVar(&cfg.CleanupIntervalSec, "cleanup-interval", def.CleanupIntervalSec, "Retention check interval in seconds")
	nodeID := fs.Uint("node-id", uint(def.NodeID), "Node identifier")
	fs.BoolVar(&cfg.ServerSide, "server-side", def.ServerSide, "Let the primary decide this replica's start position")
	fs.BoolVar(&cfg.AllowPull, "allow-pull", def.AllowPull, "Enable pulling on the replica")
	fs.IntVar(&cfg.HeartbeatIntervalMS, "heartbeat-interval-ms", def.HeartbeatIntervalMS, "Ping and liveness sweep interval")
	fs.IntVar(&cfg.HeartbeatTimeoutMS, "heartbeat-timeout-ms", def.HeartbeatTimeoutMS, "Idle time after which a connection is closed")
	fs.IntVar(&cfg.PullIntervalMS, "pull-interval-ms", def.PullIntervalMS, "Replica pull tick")
	fs.IntVar(&cfg.ReconnectDelayMS, "reconnect-delay-ms", def.ReconnectDelayMS, "Replica reconnect delay")
	fs.Int64Var(&cfg.MaxPushBytes, "max-push-bytes", def.MaxPushBytes, "Byte cap of one push batch")
	fs.IntVar(&cfg.RelayPollIntervalMS, "relay-poll-interval-ms", def.RelayPollIntervalMS, "Relay poll tick")
	fs.BoolVar(&cfg.EnableExporter, "exporter", def.EnableExporter, "Enable Prometheus exporter")
	fs.IntVar(&cfg.ExporterPort, "exporter-port", def.ExporterPort, "Exporter port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.NodeID = uint32(*nodeID)
	cfg.LogLevel = util.ParseLogLevel(*logLevelStr)

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath != "" {
		explicit := cfg.snapshotExplicit(fs)
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
		explicit(cfg)
	}

	applyEnvOverrides(cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// snapshotExplicit captures the flags set on the command line so they can be
// re-applied after the config file is read.
func (cfg *Config) snapshotExplicit(fs *flag.FlagSet) func(*Config) {
	saved := *cfg
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	return func(c *Config) {
		apply := map[string]func(){
			"role":                   func() { c.Role = saved.Role },
			"log-level":              func() { c.LogLevel = saved.LogLevel },
			"bind":                   func() { c.BindAddr = saved.BindAddr },
			"port":                   func() { c.Port = saved.Port },
			"primary":                func() { c.PrimaryAddr = saved.PrimaryAddr },
			"password":               func() { c.Password = saved.Password },
			"log-dir":                func() { c.LogDir = saved.LogDir },
			"segment-size":           func() { c.SegmentSize = saved.SegmentSize },
			"retention-hours":        func() { c.RetentionHours = saved.RetentionHours },
			"cleanup-interval":       func() { c.CleanupIntervalSec = saved.CleanupIntervalSec },
			"node-id":                func() { c.NodeID = saved.NodeID },
			"server-side":            func() { c.ServerSide = saved.ServerSide },
			"allow-pull":             func() { c.AllowPull = saved.AllowPull },
			"heartbeat-interval-ms":  func() { c.HeartbeatIntervalMS = saved.HeartbeatIntervalMS },
			"heartbeat-timeout-ms":   func() { c.HeartbeatTimeoutMS = saved.HeartbeatTimeoutMS },
			"pull-interval-ms":       func() { c.PullIntervalMS = saved.PullIntervalMS },
			"reconnect-delay-ms":     func() { c.ReconnectDelayMS = saved.ReconnectDelayMS },
			"max-push-bytes":         func() { c.MaxPushBytes = saved.MaxPushBytes },
			"relay-poll-interval-ms": func() { c.RelayPollIntervalMS = saved.RelayPollIntervalMS },
			"exporter":               func() { c.EnableExporter = saved.EnableExporter },
			"exporter-port":          func() { c.ExporterPort = saved.ExporterPort },
		}
		for name := range set {
			if fn, ok := apply[name]; ok {
				fn()
			}
		}
	}
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Role:                RolePrimary,
		LogLevel:            util.LogLevelInfo,
		BindAddr:            "0.0.0.0",
		Port:                19288,
		PrimaryAddr:         "127.0.0.1:19288",
		NodeID:              1,
		AllowPull:           true,
		Password:            "password",
		LogDir:              "logs",
		SegmentSize:         200 * 1024 * 1024,
		RetentionHours:      168,
		CleanupIntervalSec:  3600,
		HeartbeatIntervalMS: 30000,
		HeartbeatTimeoutMS:  65000,
		PullIntervalMS:      1000,
		ReconnectDelayMS:    1000,
		MaxPushBytes:        512 * 1024,
		RelayPollIntervalMS: 1000,
		EnableExporter:      false,
		ExporterPort:        9100,
	}
}

func (cfg *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)
}

func (cfg *Config) Retention() time.Duration {
	return time.Duration(cfg.RetentionHours) * time.Hour
}

func (cfg *Config) CleanupInterval() time.Duration {
	return time.Duration(cfg.CleanupIntervalSec) * time.Second
}

func (cfg *Config) HeartbeatInterval() time.Duration {
	return time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond
}

func (cfg *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(cfg.HeartbeatTimeoutMS) * time.Millisecond
}

func (cfg *Config) PullInterval() time.Duration {
	return time.Duration(cfg.PullIntervalMS) * time.Millisecond
}

func (cfg *Config) ReconnectDelay() time.Duration {
	return time.Duration(cfg.ReconnectDelayMS) * time.Millisecond
}

func (cfg *Config) RelayPollInterval() time.Duration {
	return time.Duration(cfg.RelayPollIntervalMS) * time.Millisecond
}

func (cfg *Config) RunsPrimary() bool {
	return cfg.Role == RolePrimary
}

func (cfg *Config) RunsReplica() bool {
	return cfg.Role == RoleReplica || cfg.Role == RoleReplicaRelay
}

func (cfg *Config) RunsRelay() bool {
	return cfg.Role == RoleRelay || cfg.Role == RoleReplicaRelay
}
