package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resetAll bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return failed records to pending for re-upload",
	Long: `Return failed records to pending so the next cycle retries them.
With --all, uploaded records are reset too, forcing a full re-upload.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustSetup()
		defer log.Sync()

		ctx := context.Background()
		store := mustStore(ctx, cfg)
		defer store.Close()

		var (
			n   int64
			err error
		)
		if resetAll {
			n, err = store.ResetAllTerminal(ctx)
		} else {
			n, err = store.ResetFailed(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resetting records: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reset %d record(s) to pending\n", n)
	},
}

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all tracked records and upload logs",
	Long: `Delete every tracked record and all upload logs. The next cycle
re-ingests everything from scratch. Requires --force.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !clearForce {
			fmt.Fprintln(os.Stderr, "Error: clear deletes all tracking data; pass --force to confirm")
			os.Exit(1)
		}

		cfg, log := mustSetup()
		defer log.Sync()

		ctx := context.Background()
		store := mustStore(ctx, cfg)
		defer store.Close()

		n, err := store.ClearAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing store: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d record(s)\n", n)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "also reset uploaded records")
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "confirm deletion of all tracking data")
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(clearCmd)
}
