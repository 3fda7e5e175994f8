package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/myid/internal/flagx"
	"github.com/dmitrijs2005/myid/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk representation. Zero values mean "not set" and
// leave the current value untouched.
type JsonConfig struct {
	DataDir             string         `json:"data_dir"`
	DatabaseFile        string         `json:"database_file"`
	RemoteBaseURL       string         `json:"remote_base_url"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	LogLevel            string         `json:"log_level"`
	ExportIterations    int            `json:"export_iterations"`
	S3Endpoint          string         `json:"s3_endpoint"`
	S3Region            string         `json:"s3_region"`
	S3Bucket            string         `json:"s3_bucket"`
	S3AccessKey         string         `json:"s3_access_key"`
	S3SecretKey         string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with the file named by -c/-config. No flag means
// nothing to do. Comments and trailing commas are allowed.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc JsonConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabaseFile, jc.DatabaseFile)
	setString(&cfg.RemoteBaseURL, jc.RemoteBaseURL)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)

	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval.Duration > 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.ExportIterations > 0 {
		cfg.ExportIterations = jc.ExportIterations
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
