// Package calendar defines the source event model and the normalization
// rules that decide which raw calendar events become tracked records.
package calendar

import (
	"strconv"
	"strings"
	"time"
)

// StatusCancelled is the source-side status of an event that was cancelled
// after creation. Cancelled events are never tracked.
const StatusCancelled = "cancelled"

// RawTime is the wire shape of a calendar instant. Exactly one of Timestamp
// (epoch seconds, as a decimal string) or Date (YYYY-MM-DD) is expected;
// all-day events carry Date, timed events carry Timestamp.
type RawTime struct {
	Timestamp string `json:"timestamp,omitempty"`
	Date      string `json:"date,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// IsZero reports whether no time information is present at all.
func (t RawTime) IsZero() bool {
	return t.Timestamp == "" && t.Date == ""
}

// ResolveMillis converts the raw instant to epoch milliseconds.
//
// A Timestamp is epoch seconds scaled to milliseconds. A Date is parsed as
// midnight UTC of that calendar day. The second return value is false when
// neither field is present or the present field cannot be parsed.
func (t RawTime) ResolveMillis() (int64, bool) {
	if t.Timestamp != "" {
		secs, err := strconv.ParseInt(strings.TrimSpace(t.Timestamp), 10, 64)
		if err != nil {
			return 0, false
		}
		return secs * 1000, true
	}
	if t.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", t.Date, time.UTC)
		if err != nil {
			return 0, false
		}
		return day.UnixMilli(), true
	}
	return 0, false
}

// RawEvent is a single calendar occurrence as returned by the source API.
// Only the fields the tracker cares about are modeled.
type RawEvent struct {
	EventID     string  `json:"event_id"`
	Summary     string  `json:"summary"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	StartTime   RawTime `json:"start_time"`
	EndTime     RawTime `json:"end_time"`
}

// SkipReason explains why a raw event was excluded from tracking.
// Exclusion is a normal outcome, not an error.
type SkipReason int

const (
	// SkipNone means the event was accepted.
	SkipNone SkipReason = iota
	// SkipCancelled means the source marked the event cancelled.
	SkipCancelled
	// SkipEmptySummary means the title is empty after trimming.
	SkipEmptySummary
	// SkipNoStartTime means the start instant could not be resolved.
	SkipNoStartTime
)

// String returns a human-readable reason.
func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "accepted"
	case SkipCancelled:
		return "cancelled"
	case SkipEmptySummary:
		return "empty summary"
	case SkipNoStartTime:
		return "unresolved start time"
	default:
		return "unknown"
	}
}

// Event is a normalized calendar occurrence ready for tracking.
//
// EndMillis is nil when the source carried no resolvable end time. The
// fallback to StartMillis is applied when building upload payloads, not
// here, so the stored record reflects what the source actually said.
type Event struct {
	EventID     string
	Person      string
	Summary     string
	StartMillis int64
	EndMillis   *int64
	Fingerprint string
}

// Normalize converts a raw event owned by person into a tracked Event, or
// reports the reason it was excluded. Rules are applied in order: cancelled
// status, empty trimmed title, unresolvable start time.
func Normalize(raw RawEvent, person string) (Event, SkipReason) {
	if raw.Status == StatusCancelled {
		return Event{}, SkipCancelled
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		return Event{}, SkipEmptySummary
	}

	startMs, ok := raw.StartTime.ResolveMillis()
	if !ok {
		return Event{}, SkipNoStartTime
	}

	var endMs *int64
	if ms, ok := raw.EndTime.ResolveMillis(); ok {
		endMs = &ms
	}

	return Event{
		EventID:     raw.EventID,
		Person:      person,
		Summary:     raw.Summary,
		StartMillis: startMs,
		EndMillis:   endMs,
		Fingerprint: Fingerprint(raw),
	}, SkipNone
}

// Window returns the ingestion time range for a run starting at now: from
// the first instant of the current month through the last second of the
// month `months` ahead, in now's location.
func Window(now time.Time, months int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	// Day 0 of month+N+1 is the last day of month+N.
	endDay := time.Date(now.Year(), now.Month()+time.Month(months)+1, 0, 0, 0, 0, 0, now.Location())
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 23, 59, 59, 0, now.Location())
	return start, end
}
