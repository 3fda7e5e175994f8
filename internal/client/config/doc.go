// Package config loads runtime configuration for the myid CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory holding the SQLite database
//	-r string   base URL of the remote sync endpoint (empty disables sync)
//	-i int      online status check interval (seconds)
//	-l string   log level: debug, info, warn, error
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds. Absent keys keep their default:
//
//	{
//	  "data_dir": "/home/ada/.myid",
//	  "database_file": "myid.db",
//	  "remote_base_url": "https://sync.example.com/api",
//	  "online_check_interval": "3s",
//	  "sync_interval": "30s",
//	  "log_level": "debug",
//	  "export_iterations": 310000,
//	  "s3_endpoint": "http://127.0.0.1:9000",
//	  "s3_region": "us-east-1",
//	  "s3_bucket": "myid-backups",
//	  "s3_access_key": "minioadmin",
//	  "s3_secret_key": "minioadmin"
//	}
package config
