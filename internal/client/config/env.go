package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the config layer reads.
const EnvPrefix = "MYID_"

// DotenvFile is read from the working directory when present. Variables
// already set in the process environment take precedence over it.
var DotenvFile = ".env"

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// envLookup merges the dotenv file at path under the process environment.
// A missing file is not an error.
func envLookup(path string, environ lookupFunc) (lookupFunc, error) {
	file := map[string]string{}
	if path != "" {
		m, err := godotenv.Read(path)
		switch {
		case err == nil:
			file = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := environ(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// parseEnv overlays cfg with MYID_* variables. It runs after the JSON file
// and before flags, so S3 credentials can stay out of both.
func parseEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("DATA_DIR", &cfg.DataDir)
	str("DATABASE_FILE", &cfg.DatabaseFile)
	str("REMOTE_BASE_URL", &cfg.RemoteBaseURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("S3_ENDPOINT", &cfg.S3Endpoint)
	str("S3_REGION", &cfg.S3Region)
	str("S3_BUCKET", &cfg.S3Bucket)
	str("S3_ACCESS_KEY", &cfg.S3AccessKey)
	str("S3_SECRET_KEY", &cfg.S3SecretKey)

	if v, ok := lookup(EnvPrefix + "SYNC_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSYNC_INTERVAL: %w", EnvPrefix, err)
		}
		cfg.SyncInterval = d
	}
	if v, ok := lookup(EnvPrefix + "EXPORT_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sEXPORT_ITERATIONS: %w", EnvPrefix, err)
		}
		cfg.ExportIterations = n
	}
	return nil
}

func loadEnv(cfg *Config) error {
	lookup, err := envLookup(DotenvFile, os.LookupEnv)
	if err != nil {
		return err
	}
	return parseEnv(cfg, lookup)
}
