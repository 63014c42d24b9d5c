package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Work with the locally mirrored review collection",
}

var reviewsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the remote collection and replace the local snapshot",
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

		n, err := e.mirror.Refresh(ctx)
		if err != nil {
			fatalf("refresh reviews: %v", err)
		}
		fmt.Printf("Mirrored %d reviews\n", n)
	},
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored reviews (works offline)",
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

		rs, err := e.mirror.List(ctx)
		if err != nil {
			fatalf("list reviews: %v", err)
		}
		if len(rs) == 0 {
			fmt.Println("No mirrored reviews; run 'rfsync reviews refresh' while online")
			return
		}

		for _, r := range rs {
			date := ""
			if r.ReviewDate != nil {
				date = r.ReviewDate.Format("2006-01-02")
			}
			fmt.Printf("#%-6d %-12s %d★  %-10s %-9s  %s\n",
				r.ID, r.Platform, r.Rating, date, r.ResponseStatus, truncate(r.Content, 60))
		}
	},
}

var reviewsRespondCmd = &cobra.Command{
	Use:   "respond <review-id> <response>",
	Short: "Queue a response to a review (delivered when online)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		var reviewID int64
		if _, err := fmt.Sscanf(args[0], "%d", &reviewID); err != nil {
			fatalf("invalid review id %q", args[0])
		}

		ctx := context.Background()
		e, err := openEngine(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.Close()

		id, err := e.mirror.QueueResponse(ctx, reviewID, args[1])
		if err != nil {
			fatalf("queue response: %v", err)
		}
		fmt.Printf("Queued response as %s\n", id)
	},
}

// truncate shortens s for one-line table output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	reviewsCmd.AddCommand(reviewsRefreshCmd)
	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsRespondCmd)
	rootCmd.AddCommand(reviewsCmd)
}
