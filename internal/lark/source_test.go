package lark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/calendar"
)

func writeTokenFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "feishu_data.json")
	payload := `{"oauth":{"token":{"access_token":"u-token"}}}`
	if err := os.WriteFile(path, []byte(payload), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	return path
}

func TestEventSourceFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v4/calendars", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"calendar_list": []map[string]string{
					{"calendar_id": "cal-1", "summary": "Alice Chen"},
					{"calendar_id": "cal-2", "summary": "Bob Wu"},
				},
			},
		})
	})
	mux.HandleFunc("/calendar/v4/calendars/cal-1/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"items": []map[string]interface{}{
					{
						"event_id":   "evt-1",
						"summary":    "standup",
						"status":     "confirmed",
						"start_time": map[string]string{"timestamp": "1750000000"},
					},
				},
			},
		})
	})
	// cal-2 is broken: the source skips it and keeps going.
	mux.HandleFunc("/calendar/v4/calendars/cal-2/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 190002,
			"msg":  "calendar not found",
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	tokenFile := writeTokenFile(t, dir)
	snapshotDir := filepath.Join(dir, "snapshots")

	client := NewClient(server.URL, server.Client(), nil)
	src := NewEventSource(client, tokenFile, snapshotDir, 2, nil)

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Fetch() = %d sources, want 1 (broken calendar skipped)", len(got))
	}
	pe := got[0]
	if pe.Person != "Alice Chen" || len(pe.Events) != 1 {
		t.Errorf("person events = %+v", pe)
	}

	// The fetch leaves a snapshot behind that round-trips through the
	// snapshot reader.
	snapPath := filepath.Join(snapshotDir, "Alice Chen.json")
	if pe.SourceRef != snapPath {
		t.Errorf("SourceRef = %q, want %q", pe.SourceRef, snapPath)
	}
	events, err := calendar.ReadSnapshot(snapPath)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if len(events) != 1 || events[0].EventID != "evt-1" {
		t.Errorf("snapshot events = %+v", events)
	}
}

func TestEventSourceMissingToken(t *testing.T) {
	client := NewClient("http://unused", http.DefaultClient, nil)
	src := NewEventSource(client, filepath.Join(t.TempDir(), "absent.json"), "", 2, nil)

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Fetch() error = nil without a token file")
	}
}
