package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var cacheTTL time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local read cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a cached payload",
	Args:  cobra.ExactArgs(1),
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

		payload, ok, err := e.cache.Get(ctx, args[0])
		if err != nil {
			fatalf("cache get: %v", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "(miss)")
			os.Exit(1)
		}
		os.Stdout.Write(payload)
		fmt.Println()
	},
}

var cachePutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a payload in the cache",
	Args:  cobra.ExactArgs(2),
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

		if err := e.cache.Put(ctx, args[0], []byte(args[1]), cacheTTL); err != nil {
			fatalf("cache put: %v", err)
		}
	},
}

var cacheDelCmd = &cobra.Command{
	Use:   "del <key>",
	Short: "Invalidate a cache entry",
	Args:  cobra.ExactArgs(1),
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

		if err := e.cache.Invalidate(ctx, args[0]); err != nil {
			fatalf("cache del: %v", err)
		}
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove all expired cache entries",
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

		n, err := e.cache.ClearExpired(ctx)
		if err != nil {
			fatalf("cache sweep: %v", err)
		}
		fmt.Printf("Swept %d expired entries\n", n)
	},
}

func init() {
	cachePutCmd.Flags().DurationVar(&cacheTTL, "ttl", 0, "entry lifetime (0 = never expires)")

	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cachePutCmd)
	cacheCmd.AddCommand(cacheDelCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
