package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/myid/internal/flagx"
)

var knownFlags = []string{"-d", "-r", "-i", "-l"}

// parseFlags overlays cfg with -d, -r, -i and -l. Other arguments are
// filtered out first so foreign flags never cause a parse error.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("myid", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.RemoteBaseURL, "r", cfg.RemoteBaseURL, "remote sync base URL")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return err
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	return nil
}
