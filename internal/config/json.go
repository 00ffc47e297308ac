package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/castmir/vaultmesh/internal/flagx"
	"github.com/castmir/vaultmesh/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies
// on timex.Duration so JSON can specify intervals either as strings like
// "30s" or as integer nanoseconds.
type JsonConfig struct {
	AppID        string   `json:"app_id"`
	TrackerURLs  []string `json:"tracker_urls"`
	DatabasePath string   `json:"database_path"`
	SessionPath  string   `json:"session_path"`
	CloudBackend string   `json:"cloud_backend"`

	S3 struct {
		Region       string `json:"region"`
		Bucket       string `json:"bucket"`
		Prefix       string `json:"prefix"`
		AccessKey    string `json:"access_key"`
		SecretKey    string `json:"secret_key"`
		BaseEndpoint string `json:"base_endpoint"`
	} `json:"s3"`

	HeartbeatInterval timex.Duration `json:"heartbeat_interval"`
	MonitorInterval   timex.Duration `json:"monitor_interval"`
	DebounceQuiet     timex.Duration `json:"debounce_quiet"`
	JoinCooldown      timex.Duration `json:"join_cooldown"`
	ProbeTimeout      timex.Duration `json:"probe_timeout"`
}

// parseJson overlays cfg with values from the JSON file named by the -c
// or -config flag. Absent file path means no overlay; unset JSON fields
// keep their current values. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.AppID != "" {
		cfg.AppID = jc.AppID
	}
	if len(jc.TrackerURLs) > 0 {
		cfg.TrackerURLs = jc.TrackerURLs
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SessionPath != "" {
		cfg.SessionPath = jc.SessionPath
	}
	if jc.CloudBackend != "" {
		cfg.CloudBackend = jc.CloudBackend
	}
	if jc.S3.Bucket != "" {
		cfg.S3 = S3Settings{
			Region:       jc.S3.Region,
			Bucket:       jc.S3.Bucket,
			Prefix:       jc.S3.Prefix,
			AccessKey:    jc.S3.AccessKey,
			SecretKey:    jc.S3.SecretKey,
			BaseEndpoint: jc.S3.BaseEndpoint,
		}
	}
	if jc.HeartbeatInterval.Duration != 0 {
		cfg.HeartbeatInterval = time.Duration(jc.HeartbeatInterval.Duration)
	}
	if jc.MonitorInterval.Duration != 0 {
		cfg.MonitorInterval = time.Duration(jc.MonitorInterval.Duration)
	}
	if jc.DebounceQuiet.Duration != 0 {
		cfg.DebounceQuiet = time.Duration(jc.DebounceQuiet.Duration)
	}
	if jc.JoinCooldown.Duration != 0 {
		cfg.JoinCooldown = time.Duration(jc.JoinCooldown.Duration)
	}
	if jc.ProbeTimeout.Duration != 0 {
		cfg.ProbeTimeout = time.Duration(jc.ProbeTimeout.Duration)
	}
}
