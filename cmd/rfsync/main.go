// Command rfsync is the offline sync engine CLI for the ReviewFlow client.
//
// It manages the device database: the read cache, the durable mutation
// queue, the mirrored review collection and preferences, plus the daemon
// that drains queued mutations to the remote API whenever connectivity
// allows.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reviewflow/offline/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rfsync",
	Short: "Offline cache and sync engine for ReviewFlow",
	Long: `rfsync keeps the ReviewFlow client working without connectivity.

Reads are served from a local SQLite cache; writes are recorded in a
durable queue and replayed against the remote API once the network is
back. See 'rfsync daemon' for the long-running sync process.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default rfsync.yaml)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a prefixed logger, routed through rotated files when
// the config names a log file.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

// fatalf prints an error the way the rest of the CLI does and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
