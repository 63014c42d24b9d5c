package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the mutation queue once, right now",
	Long: `Run drain passes until the queue settles.

Each pending action is delivered in enqueue order; failures consume the
action's retry budget exactly as the daemon's background drains do.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		ctx := context.Background()
		e, err := openEngine(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.Close()

		before, err := e.queue.Count(ctx)
		if err != nil {
			fatalf("count queue: %v", err)
		}
		if before == 0 {
			fmt.Println("Queue is empty, nothing to sync")
			return
		}

		if err := e.coord.DrainNow(ctx); err != nil {
			fatalf("drain: %v", err)
		}

		after, err := e.queue.Count(ctx)
		if err != nil {
			fatalf("count queue: %v", err)
		}
		fmt.Printf("Synced %d of %d pending actions (%d remaining)\n", before-after, before, after)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
