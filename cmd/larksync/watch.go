package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the snapshot directory and sync on changes",
	Long: `Watch the calendar snapshot directory and run a sync cycle whenever
snapshot files change, after a short debounce. Cycles read from the snapshot
files only; the calendar source is never contacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustSetup()
		defer log.Sync()

		lock := mustLock(cfg)
		defer lock.Release()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := mustStore(ctx, cfg)
		defer store.Close()

		s := buildSyncer(cfg, store, log, false)

		handler := func(ctx context.Context) {
			report, err := s.RunCycle(ctx)
			if err != nil {
				log.Error("cycle failed", zap.Error(err))
				return
			}
			log.Info("watch cycle finished",
				zap.String("batch_id", report.BatchID),
				zap.Int("ingested", report.Ingested),
				zap.Int("uploaded", report.Uploaded),
				zap.Int("failed", report.Failed))
		}

		w, err := watch.New(cfg.Calendar.SnapshotDir, cfg.Sync.Debounce, handler, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start watcher: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.Calendar.SnapshotDir)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: watcher stopped: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Watcher stopped")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
