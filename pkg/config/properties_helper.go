package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/logship/util"
)

func (cfg *Config) Normalize() {
	def := Defaults()

	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	switch cfg.Role {
	case RolePrimary, RoleReplica, RoleRelay, RoleReplicaRelay:
	case "":
		cfg.Role = def.Role
	default:
		util.Warn("Invalid role '%s', defaulting to '%s'", cfg.Role, def.Role)
		cfg.Role = def.Role
	}

	if strings.TrimSpace(cfg.BindAddr) == "" {
		cfg.BindAddr = def.BindAddr
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = def.Port
	}
	if strings.TrimSpace(cfg.PrimaryAddr) == "" {
		cfg.PrimaryAddr = def.PrimaryAddr
	}
	if cfg.NodeID == 0 {
		cfg.NodeID = def.NodeID
	}

	// segment storage & retention
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = def.LogDir
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = def.SegmentSize
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = def.RetentionHours
	}
	if cfg.CleanupIntervalSec <= 0 {
		cfg.CleanupIntervalSec = def.CleanupIntervalSec
	}

	// protocol timing
	if cfg.HeartbeatIntervalMS <= 0 {
		cfg.HeartbeatIntervalMS = def.HeartbeatIntervalMS
	}
	if cfg.HeartbeatTimeoutMS <= 0 {
		cfg.HeartbeatTimeoutMS = def.HeartbeatTimeoutMS
	}
	if cfg.HeartbeatTimeoutMS <= cfg.HeartbeatIntervalMS {
		fmt.Fprintf(os.Stderr,
			"warning: HeartbeatTimeoutMS (%d ms) <= HeartbeatIntervalMS (%d ms), adjusting timeout to twice the interval plus 5s\n",
			cfg.HeartbeatTimeoutMS, cfg.HeartbeatIntervalMS,
		)
		cfg.HeartbeatTimeoutMS = cfg.HeartbeatIntervalMS*2 + 5000
	}
	if cfg.PullIntervalMS <= 0 {
		cfg.PullIntervalMS = def.PullIntervalMS
	}
	if cfg.ReconnectDelayMS <= 0 {
		cfg.ReconnectDelayMS = def.ReconnectDelayMS
	}
	if cfg.MaxPushBytes <= 0 {
		cfg.MaxPushBytes = def.MaxPushBytes
	}
	if cfg.RelayPollIntervalMS <= 0 {
		cfg.RelayPollIntervalMS = def.RelayPollIntervalMS
	}

	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = def.ExporterPort
	}
}

// Validate rejects configurations a role cannot start with.
func (cfg *Config) Validate() error {
	if cfg.RunsReplica() && !strings.Contains(cfg.PrimaryAddr, ":") {
		return fmt.Errorf("primary address %q must be host:port", cfg.PrimaryAddr)
	}
	if cfg.Password == "" && (cfg.RunsPrimary() || cfg.RunsReplica()) {
		return fmt.Errorf("replication password must not be empty")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideEnvString(&cfg.Role, "LOGSHIP_ROLE")
	overrideEnvString(&cfg.BindAddr, "LOGSHIP_BIND")
	overrideEnvInt(&cfg.Port, "LOGSHIP_PORT")
	overrideEnvString(&cfg.PrimaryAddr, "LOGSHIP_PRIMARY")
	overrideEnvString(&cfg.Password, "LOGSHIP_PASSWORD")
	overrideEnvString(&cfg.LogDir, "LOGSHIP_LOG_DIR")
	overrideEnvInt64(&cfg.SegmentSize, "LOGSHIP_SEGMENT_SIZE")
	overrideEnvInt(&cfg.RetentionHours, "LOGSHIP_RETENTION_HOURS")
	overrideEnvUint32(&cfg.NodeID, "LOGSHIP_NODE_ID")
	overrideEnvBool(&cfg.ServerSide, "LOGSHIP_SERVER_SIDE")
	overrideEnvBool(&cfg.AllowPull, "LOGSHIP_ALLOW_PULL")
	overrideEnvBool(&cfg.EnableExporter, "LOGSHIP_EXPORTER")
	overrideEnvInt(&cfg.ExporterPort, "LOGSHIP_EXPORTER_PORT")
	if v := os.Getenv("LOGSHIP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvInt64(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt64(v, *target)
	}
}

func overrideEnvUint32(target *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseUint32(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
