package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record tracking statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustSetup()
		defer log.Sync()

		ctx := context.Background()
		store := mustStore(ctx, cfg)
		defer store.Close()

		stats, err := store.Statistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error collecting statistics: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Record tracking statistics (%s)\n", stats.GeneratedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Total:    %d\n", stats.Totals.Total)
		fmt.Printf("  Pending:  %d\n", stats.Totals.Pending)
		fmt.Printf("  Uploaded: %d\n", stats.Totals.Uploaded)
		fmt.Printf("  Failed:   %d\n", stats.Totals.Failed)

		if len(stats.PerPerson) > 0 {
			fmt.Println("\nPer person:")
			for _, p := range stats.PerPerson {
				fmt.Printf("  %-24s total=%-5d pending=%-5d uploaded=%-5d failed=%d\n",
					p.Person, p.Total, p.Pending, p.Uploaded, p.Failed)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
