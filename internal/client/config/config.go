package config

import (
	"path/filepath"
	"time"
)

// DefaultExportIterations is the PBKDF2 iteration count used for new exports.
const DefaultExportIterations = 310_000

// Config holds runtime settings for the myid CLI.
//
// Intervals are plain time.Duration values; the JSON layer accepts either
// strings like "30s" or integer nanoseconds.
type Config struct {
	DataDir      string
	DatabaseFile string

	RemoteBaseURL       string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration

	LogLevel         string
	ExportIterations int

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "myid_data"
	c.DatabaseFile = "myid.db"
	c.RemoteBaseURL = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.LogLevel = "info"
	c.ExportIterations = DefaultExportIterations
	c.S3Region = "us-east-1"
}

// DatabasePath joins DataDir and DatabaseFile.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}

// SyncEnabled reports whether a remote endpoint is configured.
func (c *Config) SyncEnabled() bool {
	return c.RemoteBaseURL != ""
}

// S3Enabled reports whether exports can be uploaded to a bucket.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config (if any), then MYID_* environment variables, then the remaining
// flags. Later sources win.
// args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
