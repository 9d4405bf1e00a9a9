package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PersonEvents groups the raw events fetched for one person's calendar,
// tagged with an opaque reference to the snapshot they came from.
type PersonEvents struct {
	Person    string
	SourceRef string
	Events    []RawEvent
}

// snapshotEnvelope mirrors the calendar API response that snapshots persist:
// the event list lives under data.items.
type snapshotEnvelope struct {
	Data struct {
		Items []RawEvent `json:"items"`
	} `json:"data"`
}

// ReadSnapshot parses one persisted calendar payload.
func ReadSnapshot(path string) ([]RawEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", filepath.Base(path), err)
	}

	return env.Data.Items, nil
}

// WriteSnapshot persists a person's raw events in the same envelope shape
// the calendar API returns, so snapshots round-trip through ReadSnapshot.
func WriteSnapshot(path string, events []RawEvent) error {
	var env snapshotEnvelope
	env.Data.Items = events

	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// PersonFromSnapshot derives the owning person's name from a snapshot file
// path. Snapshots are written one per person, named after the person.
func PersonFromSnapshot(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SnapshotSource reads previously fetched calendar snapshots from a
// directory. It lets ingestion run against persisted payloads without
// touching the calendar API.
type SnapshotSource struct {
	Dir string
}

// Fetch reads every *.json and *.txt snapshot in the directory. A snapshot
// that fails to parse is skipped: its error is joined into the returned
// error while the remaining snapshots are still returned, so one corrupt
// file does not block the batch.
func (s *SnapshotSource) Fetch(ctx context.Context) ([]PersonEvents, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var (
		out  []PersonEvents
		errs []error
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".txt" {
			continue
		}

		path := filepath.Join(s.Dir, entry.Name())
		events, err := ReadSnapshot(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		out = append(out, PersonEvents{
			Person:    PersonFromSnapshot(path),
			SourceRef: path,
			Events:    events,
		})
	}

	return out, errors.Join(errs...)
}
