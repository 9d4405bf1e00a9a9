// Command larksync pulls calendar events from the Lark calendar API,
// deduplicates them against a local tracking database and uploads new or
// changed records to a Lark Bitable table in batches.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/bitable"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/calendar"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/config"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/lark"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/lockfile"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/logging"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/syncer"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/tracker"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "larksync",
	Short: "Sync Lark calendar events into a Bitable table",
	Long: `larksync tracks calendar events in a local SQLite database and uploads
pending records to a Lark Bitable table in batches. Records are keyed by
their stable event_id; a content change resets a record for re-upload,
while unchanged events are never re-submitted.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml, ./config/config.yaml)")
}

// mustSetup loads config and builds the logger; any failure is fatal.
func mustSetup() (*config.Config, *zap.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}

	return cfg, log
}

// mustStore opens the tracking database and initializes its schema.
// Failure here is fatal: no cycle can proceed without the store.
func mustStore(ctx context.Context, cfg *config.Config) *tracker.Store {
	store, err := tracker.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening tracking database: %v\n", err)
		os.Exit(1)
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return store
}

// mustLock acquires the single-instance lock, held for the process life.
func mustLock(cfg *config.Config) *lockfile.Lock {
	lock, err := lockfile.Acquire(cfg.Lock.Path)
	if err != nil {
		if err == lockfile.ErrHeld {
			fmt.Fprintf(os.Stderr, "Error: another larksync instance is already running (lock: %s)\n", cfg.Lock.Path)
		} else {
			fmt.Fprintf(os.Stderr, "Error acquiring lock: %v\n", err)
		}
		os.Exit(1)
	}
	return lock
}

// buildSyncer assembles a syncer over the store. With live set, the
// calendar API is fetched (and snapshotted); otherwise only the snapshot
// directory feeds ingestion.
func buildSyncer(cfg *config.Config, store *tracker.Store, log *zap.Logger, live bool) *syncer.Syncer {
	httpc := &http.Client{Timeout: cfg.Sync.Timeout}

	tokens := lark.NewTokenSource(cfg.Lark.AppID, cfg.Lark.AppSecret, cfg.Lark.BaseURL, httpc, log)
	uploader := bitable.NewClient(cfg.Lark.BaseURL, cfg.Bitable.AppToken, cfg.Bitable.TableID, tokens, httpc, log)

	var sources []syncer.Source
	if live {
		client := lark.NewClient(cfg.Lark.BaseURL, httpc, log)
		sources = append(sources, lark.NewEventSource(
			client, cfg.Calendar.TokenFile, cfg.Calendar.SnapshotDir,
			cfg.Calendar.WindowMonths, log))
	} else {
		sources = append(sources, &calendar.SnapshotSource{Dir: cfg.Calendar.SnapshotDir})
	}

	return syncer.New(store, uploader, sources, log, syncer.Options{
		BatchSize: cfg.Sync.BatchSize,
		Timeout:   cfg.Sync.Timeout,
	})
}

// printReport writes the cycle summary for operators.
func printReport(report syncer.Report) {
	fmt.Printf("\nCycle %s\n", report.BatchID)
	fmt.Printf("  Ingested: %d\n", report.Ingested)
	fmt.Printf("  Skipped:  %d\n", report.Skipped)
	fmt.Printf("  Uploaded: %d\n", report.Uploaded)
	fmt.Printf("  Failed:   %d\n", report.Failed)
	fmt.Printf("  Batches:  %d\n", report.Batches)
}
