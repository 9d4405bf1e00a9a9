package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintPayload is the canonical serialization for change detection.
// Field order is fixed (alphabetical by key) so the digest is stable across
// process restarts and independent of how the raw event was assembled.
// The raw time shapes are digested as-is: a switch between timestamp and
// date representation counts as a content change even when both resolve to
// the same instant.
type fingerprintPayload struct {
	Description string             `json:"description"`
	EndTime     fingerprintInstant `json:"end_time"`
	StartTime   fingerprintInstant `json:"start_time"`
	Status      string             `json:"status"`
	Summary     string             `json:"summary"`
}

type fingerprintInstant struct {
	Date      string `json:"date,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// Fingerprint computes the deterministic content digest of a raw event over
// the fields that define "meaningful content": summary, start, end, status
// and description. Two events with equal fingerprints are treated as
// unchanged by the record store.
func Fingerprint(raw RawEvent) string {
	payload := fingerprintPayload{
		Description: raw.Description,
		EndTime:     canonicalInstant(raw.EndTime),
		StartTime:   canonicalInstant(raw.StartTime),
		Status:      raw.Status,
		Summary:     raw.Summary,
	}

	// Marshal cannot fail for a tree of plain strings.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalInstant(t RawTime) fingerprintInstant {
	return fingerprintInstant{
		Date:      t.Date,
		Timestamp: t.Timestamp,
		Timezone:  t.Timezone,
	}
}
