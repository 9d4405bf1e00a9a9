package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/sched"
)

var scheduleImmediate bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync cycles on the configured cron schedule",
	Long: `Start the scheduler and run a full sync cycle at each configured time
(default: workday mornings). Scheduled cycles skip weekends.

With --immediate one cycle runs right away before the schedule takes over.
The process holds the instance lock for its whole lifetime, so only one
scheduler (or one-shot run) can be active at a time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := mustSetup()
		defer log.Sync()

		lock := mustLock(cfg)
		defer lock.Release()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := mustStore(ctx, cfg)
		defer store.Close()

		s := buildSyncer(cfg, store, log, true)

		cycle := func(ctx context.Context) {
			report, err := s.RunCycle(ctx)
			if err != nil {
				log.Error("cycle failed", zap.Error(err))
				return
			}
			log.Info("scheduled cycle finished",
				zap.String("batch_id", report.BatchID),
				zap.Int("uploaded", report.Uploaded),
				zap.Int("failed", report.Failed))
		}

		if scheduleImmediate {
			log.Info("running immediate cycle")
			cycle(ctx)
		}

		runner := sched.New(log, ctx)
		if _, err := runner.Add(cfg.Sync.Cron, sched.WorkdaysOnly(log, cycle)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid cron expression %q: %v\n", cfg.Sync.Cron, err)
			os.Exit(1)
		}

		runner.Start()
		if next := runner.Next(); !next.IsZero() {
			fmt.Printf("Scheduler running, next cycle at %s (Ctrl+C to stop)\n",
				next.Format("2006-01-02 15:04:05"))
		}

		<-ctx.Done()
		runner.Stop()
		fmt.Println("Scheduler stopped")
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleImmediate, "immediate", false, "run one cycle immediately on startup")
	rootCmd.AddCommand(scheduleCmd)
}
