package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write durable device preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a preference value",
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

		value, ok, err := e.store.GetPreference(ctx, args[0])
		if err != nil {
			fatalf("get preference: %v", err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "(not set)")
			os.Exit(1)
		}
		fmt.Println(value)
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference value",
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

		if err := e.store.SetPreference(ctx, args[0], args[1]); err != nil {
			fatalf("set preference: %v", err)
		}
	},
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	rootCmd.AddCommand(prefsCmd)
}
