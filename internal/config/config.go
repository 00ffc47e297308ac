// Package config assembles runtime settings from defaults, an optional
// JSON file, and command-line flags, in that order of precedence.
package config

import (
	"time"

	"github.com/castmir/vaultmesh/internal/common"
)

// S3Settings configures the S3 snapshot backend. Only read when
// CloudBackend is "s3". BaseEndpoint supports MinIO-style deployments.
type S3Settings struct {
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// Config holds runtime settings for the vault client.
type Config struct {
	// AppID namespaces rooms at the tracker; peers with a different id
	// never meet.
	AppID       string
	TrackerURLs []string

	DatabasePath string
	SessionPath  string

	// CloudBackend selects the snapshot store: "drive" or "s3".
	CloudBackend string
	S3           S3Settings

	HeartbeatInterval time.Duration
	MonitorInterval   time.Duration
	DebounceQuiet     time.Duration
	JoinCooldown      time.Duration
	ProbeTimeout      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.AppID = common.AppName
	c.TrackerURLs = []string{"ws://127.0.0.1:8787/ws"}
	c.DatabasePath = "vaultmesh.db"
	c.SessionPath = "session.json"
	c.CloudBackend = "drive"
	c.HeartbeatInterval = 30 * time.Second
	c.MonitorInterval = 2 * time.Minute
	c.DebounceQuiet = 2 * time.Second
	c.JoinCooldown = 2 * time.Second
	c.ProbeTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
