package lark

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListCalendars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendar/v4/calendars" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer u-token" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"calendar_list": []map[string]string{
					{"calendar_id": "cal-1", "summary": "Alice Chen", "type": "primary", "role": "owner"},
					{"calendar_id": "cal-2", "summary": "Team Events", "type": "shared", "role": "reader"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)
	cals, err := client.ListCalendars(context.Background(), "u-token")
	if err != nil {
		t.Fatalf("ListCalendars() error = %v", err)
	}
	if len(cals) != 2 {
		t.Fatalf("ListCalendars() = %d calendars, want 2", len(cals))
	}
	if cals[0].CalendarID != "cal-1" || cals[0].Summary != "Alice Chen" {
		t.Errorf("first calendar = %+v", cals[0])
	}
}

func TestListEvents(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendar/v4/calendars/cal-1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("start_time") != "1748736000" {
			t.Errorf("start_time = %q", q.Get("start_time"))
		}
		if q.Get("page_size") != "1000" {
			t.Errorf("page_size = %q", q.Get("page_size"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"items": []map[string]interface{}{
					{
						"event_id":   "evt-1",
						"summary":    "standup",
						"status":     "confirmed",
						"start_time": map[string]string{"timestamp": "1750000000", "timezone": "Asia/Shanghai"},
						"end_time":   map[string]string{"timestamp": "1750001800", "timezone": "Asia/Shanghai"},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)
	events, err := client.ListEvents(context.Background(), "u-token", "cal-1", from, to)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ListEvents() = %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.EventID != "evt-1" || ev.StartTime.Timestamp != "1750000000" {
		t.Errorf("event = %+v", ev)
	}
}

func TestGetJSONEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 99991668,
			"msg":  "user token expired",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)
	if _, err := client.ListCalendars(context.Background(), "stale"); err == nil {
		t.Error("ListCalendars() error = nil, want envelope rejection")
	}
}

func TestGetJSONHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)
	if _, err := client.ListCalendars(context.Background(), "u-token"); err == nil {
		t.Error("ListCalendars() error = nil, want HTTP failure")
	}
}

func TestLoadUserToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feishu_data.json")
	payload := `{"oauth":{"token":{"access_token":"u-live-token","refresh_token":"r-1"}}}`
	if err := os.WriteFile(path, []byte(payload), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	token, err := LoadUserToken(path)
	if err != nil {
		t.Fatalf("LoadUserToken() error = %v", err)
	}
	if token != "u-live-token" {
		t.Errorf("LoadUserToken() = %q", token)
	}
}

func TestLoadUserTokenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadUserToken(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadUserToken(missing) error = nil")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"oauth":{}}`), 0600)
	if _, err := LoadUserToken(empty); err == nil {
		t.Error("LoadUserToken(no token) error = nil")
	}

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte("not json"), 0600)
	if _, err := LoadUserToken(garbage); err == nil {
		t.Error("LoadUserToken(garbage) error = nil")
	}
}
