package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/reviewflow/offline/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the pending mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions in drain order",
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

		actions, err := e.queue.Pending(ctx)
		if err != nil {
			fatalf("list queue: %v", err)
		}

		if len(actions) == 0 {
			fmt.Println("Queue is empty")
			return
		}

		for _, a := range actions {
			fmt.Printf("%s  %-6s  %-40s  retries=%d  enqueued=%s\n",
				a.ID, a.Kind, a.Endpoint, a.RetryCount, a.EnqueuedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

var queueCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of pending actions",
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

		n, err := e.queue.Count(ctx)
		if err != nil {
			fatalf("count queue: %v", err)
		}
		fmt.Println(n)
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <create|update|delete> <endpoint> [payload-file]",
	Short: "Enqueue a remote mutation",
	Long: `Enqueue a remote mutation without going through the application.

The payload is read from the given file, or from stdin when the file is
"-". Delete actions take no payload.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		kind := queue.Kind(args[0])
		endpoint := args[1]

		var payload []byte
		if len(args) == 3 {
			if args[2] == "-" {
				payload, err = io.ReadAll(os.Stdin)
			} else {
				payload, err = os.ReadFile(args[2])
			}
			if err != nil {
				fatalf("read payload: %v", err)
			}
		}

		ctx := context.Background()
		e, err := openEngine(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.Close()

		id, err := e.queue.Enqueue(ctx, kind, endpoint, payload)
		if err != nil {
			fatalf("enqueue: %v", err)
		}
		fmt.Printf("Enqueued %s\n", id)
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueCountCmd)
	queueCmd.AddCommand(queueAddCmd)
	rootCmd.AddCommand(queueCmd)
}
