package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewflow/offline/internal/config"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the long-lived sync process.

The daemon:
  1. Probes connectivity on an interval
  2. Drains the mutation queue on startup, on enqueue and on reconnect
  3. Sweeps expired cache entries periodically
  4. Reloads the config file on change

It runs until interrupted (SIGINT/SIGTERM).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		logger := newLogger(cfg, "[daemon] ")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.Close()

		e.monitor.Start(ctx)
		defer e.monitor.Stop()

		if err := e.coord.Start(ctx); err != nil {
			fatalf("start sync coordinator: %v", err)
		}
		defer e.coord.Stop()

		if cfg.SweepInterval > 0 {
			go e.cache.RunSweeper(ctx, cfg.SweepInterval)
		}

		if configPath != "" {
			err := watchConfig(configPath, logger)
			if err != nil {
				logger.Printf("Config watch disabled: %v", err)
			}
		}

		logger.Printf("Daemon started (db=%s, api=%s)", cfg.DBPath, cfg.APIBaseURL)

		<-ctx.Done()
		logger.Printf("Shutdown signal received")
	},
}

// watchConfig logs config file changes. Interval changes take effect on
// the next daemon restart; the watch exists so operators can confirm a
// deployed edit parsed cleanly.
func watchConfig(path string, logger *log.Logger) error {
	return config.Watch(path,
		func(cfg *config.Config) {
			logger.Printf("Config reloaded (probe_interval=%v, max_retries=%d); restart to apply interval changes",
				cfg.ProbeInterval, cfg.MaxRetries)
		},
		func(err error) {
			logger.Printf("Config reload failed, keeping previous settings: %v", err)
		})
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
