package tracker

import "time"

// Status is the upload state of a tracked record.
type Status string

const (
	// StatusPending marks a record waiting to be uploaded.
	StatusPending Status = "pending"
	// StatusUploaded marks a record confirmed by the remote table.
	StatusUploaded Status = "uploaded"
	// StatusFailed marks a record whose last upload attempt failed.
	// Failed records are retried only after an explicit reset.
	StatusFailed Status = "failed"
)

// Record is one tracked calendar event, keyed by its stable EventID.
type Record struct {
	EventID      string
	Person       string
	Summary      string
	StartMillis  int64
	EndMillis    *int64
	SourceRef    string
	Fingerprint  string
	Status       Status
	UploadTime   *time.Time
	UploadResult string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Incoming carries the fields ingestion writes for a record. Upload state
// is owned by the store and never set by callers.
type Incoming struct {
	EventID     string
	Person      string
	Summary     string
	StartMillis int64
	EndMillis   *int64
	SourceRef   string
	Fingerprint string
}

// UpsertResult reports what Upsert did with an incoming record.
type UpsertResult int

const (
	// UpsertUnchanged means the record existed with an identical
	// fingerprint; nothing was written.
	UpsertUnchanged UpsertResult = iota
	// UpsertInserted means a new record was created in pending state.
	UpsertInserted
	// UpsertUpdated means the content changed: mutable fields were
	// overwritten and the record was reset to pending.
	UpsertUpdated
)

// String returns a human-readable result name.
func (r UpsertResult) String() string {
	switch r {
	case UpsertUnchanged:
		return "unchanged"
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Attempt is one record's outcome within an upload batch, written to the
// append-only upload log.
type Attempt struct {
	EventID string
	Status  Status
	Result  string
	Error   string
}

// StatusCounts aggregates record counts by upload status.
type StatusCounts struct {
	Total    int
	Pending  int
	Uploaded int
	Failed   int
}

// PersonCounts is the per-person breakdown of StatusCounts.
type PersonCounts struct {
	Person string
	StatusCounts
}

// Statistics is a point-in-time aggregate over the whole store.
type Statistics struct {
	Totals      StatusCounts
	PerPerson   []PersonCounts
	GeneratedAt time.Time
}
