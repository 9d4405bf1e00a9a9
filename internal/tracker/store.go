// Package tracker provides the persistent record store that deduplicates
// calendar events and tracks their upload state.
//
// The store is an embedded SQLite database (WAL mode) with two tables:
//
//   - calendar_records: one row per distinct event_id, carrying a content
//     fingerprint and a pending/uploaded/failed state machine
//   - upload_logs: an append-only audit trail of upload attempts per batch
//
// A record's fingerprint change is the only trigger that resets a
// non-pending record back to pending; re-ingesting identical content is a
// complete no-op.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. Fixed width keeps
// lexicographic ordering of stored timestamps chronological, which the
// created_time ORDER BY relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite connection with record-tracking operations.
// All mutating operations are transactional per event_id.
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the tracking database at path.
//
// The database runs in embedded mode with WAL for concurrent reads. The
// parent directory is created if missing. The caller MUST call Close()
// when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
// Idempotent; safe to call on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calendar_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT UNIQUE NOT NULL,
		person_name TEXT NOT NULL,
		summary TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		source_file TEXT,
		content_fingerprint TEXT NOT NULL,
		upload_status TEXT NOT NULL DEFAULT 'pending',
		upload_time TEXT,
		upload_result TEXT,
		created_time TEXT NOT NULL,
		updated_time TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS upload_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		upload_status TEXT NOT NULL,
		upload_result TEXT,
		error_message TEXT,
		upload_time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_event_id ON calendar_records(event_id);
	CREATE INDEX IF NOT EXISTS idx_records_status ON calendar_records(upload_status);
	CREATE INDEX IF NOT EXISTS idx_records_person ON calendar_records(person_name);
	CREATE INDEX IF NOT EXISTS idx_logs_batch ON upload_logs(batch_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Upsert inserts or updates the record for in.EventID.
//
// A new event_id is inserted in pending state. An existing record with a
// different fingerprint has its mutable fields overwritten and is reset to
// pending with upload_time/upload_result cleared, regardless of its current
// status. An existing record with an identical fingerprint is left
// completely untouched, updated_time included, so repeated ingestion of the
// same content never downgrades an uploaded record.
func (s *Store) Upsert(ctx context.Context, in Incoming) (UpsertResult, error) {
	if in.EventID == "" {
		return UpsertUnchanged, fmt.Errorf("event_id is required")
	}
	if in.Fingerprint == "" {
		return UpsertUnchanged, fmt.Errorf("fingerprint is required")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return UpsertUnchanged, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT content_fingerprint FROM calendar_records WHERE event_id = ?`,
		in.EventID,
	).Scan(&existing)

	now := s.now().UTC().Format(timeLayout)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calendar_records (
				event_id, person_name, summary, start_time, end_time,
				source_file, content_fingerprint, upload_status,
				created_time, updated_time
			) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
			in.EventID, in.Person, in.Summary, in.StartMillis,
			int64PtrToNull(in.EndMillis), in.SourceRef, in.Fingerprint,
			now, now,
		)
		if err != nil {
			return UpsertUnchanged, fmt.Errorf("failed to insert record %s: %w", in.EventID, err)
		}
		if err := tx.Commit(); err != nil {
			return UpsertUnchanged, fmt.Errorf("failed to commit insert: %w", err)
		}
		return UpsertInserted, nil

	case err != nil:
		return UpsertUnchanged, fmt.Errorf("failed to look up record %s: %w", in.EventID, err)

	case existing == in.Fingerprint:
		// Same content: no write at all.
		return UpsertUnchanged, nil

	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE calendar_records SET
				person_name = ?, summary = ?, start_time = ?, end_time = ?,
				source_file = ?, content_fingerprint = ?,
				upload_status = 'pending', upload_time = NULL, upload_result = NULL,
				updated_time = ?
			WHERE event_id = ?`,
			in.Person, in.Summary, in.StartMillis, int64PtrToNull(in.EndMillis),
			in.SourceRef, in.Fingerprint, now, in.EventID,
		)
		if err != nil {
			return UpsertUnchanged, fmt.Errorf("failed to update record %s: %w", in.EventID, err)
		}
		if err := tx.Commit(); err != nil {
			return UpsertUnchanged, fmt.Errorf("failed to commit update: %w", err)
		}
		return UpsertUpdated, nil
	}
}

// PendingFilter configures ListPending.
type PendingFilter struct {
	// Person restricts results to one owner (empty = all).
	Person string
	// Limit caps the number of results (0 = no limit).
	Limit int
}

// ListPending returns pending records ordered by created_time ascending,
// oldest first, so retries preserve first-seen order.
func (s *Store) ListPending(ctx context.Context, filter PendingFilter) ([]*Record, error) {
	conditions := []string{"upload_status = ?"}
	args := []interface{}{string(StatusPending)}

	if filter.Person != "" {
		conditions = append(conditions, "person_name = ?")
		args = append(args, filter.Person)
	}

	query := `
		SELECT event_id, person_name, summary, start_time, end_time,
		       source_file, content_fingerprint, upload_status,
		       upload_time, upload_result, created_time, updated_time
		FROM calendar_records
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_time ASC`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get retrieves a single record by event_id.
// Returns sql.ErrNoRows if the record is not tracked.
func (s *Store) Get(ctx context.Context, eventID string) (*Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT event_id, person_name, summary, start_time, end_time,
		       source_file, content_fingerprint, upload_status,
		       upload_time, upload_result, created_time, updated_time
		FROM calendar_records
		WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s: %w", eventID, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return records[0], nil
}

// MarkUploaded transitions a pending or failed record to uploaded, stamping
// the upload time and result text. Returns false when no row matched, which
// includes records already in uploaded state.
func (s *Store) MarkUploaded(ctx context.Context, eventID, result string) (bool, error) {
	now := s.now().UTC().Format(timeLayout)

	res, err := s.conn.ExecContext(ctx, `
		UPDATE calendar_records SET
			upload_status = 'uploaded',
			upload_time = ?,
			upload_result = ?,
			updated_time = ?
		WHERE event_id = ? AND upload_status IN ('pending', 'failed')`,
		now, result, now, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark record %s uploaded: %w", eventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// MarkFailed transitions a record to failed from any status, recording the
// error text prefixed so failures are recognizable in upload_result.
func (s *Store) MarkFailed(ctx context.Context, eventID, errMsg string) (bool, error) {
	now := s.now().UTC().Format(timeLayout)

	res, err := s.conn.ExecContext(ctx, `
		UPDATE calendar_records SET
			upload_status = 'failed',
			upload_time = ?,
			upload_result = ?,
			updated_time = ?
		WHERE event_id = ?`,
		now, "FAILED: "+errMsg, now, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark record %s failed: %w", eventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// AppendBatchLog writes one immutable upload_logs row per attempt under
// batchID. Entries are audit data only; they are never read back for dedup
// decisions. Callers treat a returned error as a logging problem, not a
// failure of the upload itself.
func (s *Store) AppendBatchLog(ctx context.Context, batchID string, attempts []Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(timeLayout)

	for _, a := range attempts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO upload_logs (batch_id, event_id, upload_status, upload_result, error_message, upload_time)
			VALUES (?, ?, ?, ?, ?, ?)`,
			batchID, a.EventID, string(a.Status), a.Result, a.Error, now,
		)
		if err != nil {
			return fmt.Errorf("failed to append log for %s: %w", a.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch log: %w", err)
	}
	return nil
}

// Statistics computes the on-demand aggregate over all tracked records:
// totals by status plus a per-person breakdown, largest calendars first.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{GeneratedAt: s.now()}

	err := s.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN upload_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN upload_status = 'uploaded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN upload_status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM calendar_records`,
	).Scan(&stats.Totals.Total, &stats.Totals.Pending, &stats.Totals.Uploaded, &stats.Totals.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT
			person_name,
			COUNT(*),
			COALESCE(SUM(CASE WHEN upload_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN upload_status = 'uploaded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN upload_status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM calendar_records
		GROUP BY person_name
		ORDER BY COUNT(*) DESC, person_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute per-person stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc PersonCounts
		if err := rows.Scan(&pc.Person, &pc.Total, &pc.Pending, &pc.Uploaded, &pc.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan per-person stats: %w", err)
		}
		stats.PerPerson = append(stats.PerPerson, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating per-person stats: %w", err)
	}

	return stats, nil
}

// ResetFailed moves every failed record back to pending, clearing its
// upload time and result. Returns the number of records reset.
func (s *Store) ResetFailed(ctx context.Context) (int64, error) {
	return s.resetWhere(ctx, "upload_status = 'failed'")
}

// ResetAllTerminal moves every uploaded and failed record back to pending.
// This forces re-upload of everything on the next cycle; it is the only
// path from uploaded back to pending besides a content change.
func (s *Store) ResetAllTerminal(ctx context.Context) (int64, error) {
	return s.resetWhere(ctx, "upload_status IN ('uploaded', 'failed')")
}

func (s *Store) resetWhere(ctx context.Context, cond string) (int64, error) {
	now := s.now().UTC().Format(timeLayout)

	res, err := s.conn.ExecContext(ctx, `
		UPDATE calendar_records SET
			upload_status = 'pending',
			upload_time = NULL,
			upload_result = NULL,
			updated_time = ?
		WHERE `+cond, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reset records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// ClearAll deletes every tracked record and every upload log entry.
// Destructive and irreversible. Returns the number of records deleted.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM calendar_records")
	if err != nil {
		return 0, fmt.Errorf("failed to clear records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM upload_logs"); err != nil {
		return 0, fmt.Errorf("failed to clear upload logs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clear: %w", err)
	}
	return deleted, nil
}

// scanRecords scans calendar_records rows in the canonical column order.
func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record

	for rows.Next() {
		var (
			rec        Record
			endTime    sql.NullInt64
			sourceRef  sql.NullString
			status     string
			uploadTime sql.NullString
			uploadRes  sql.NullString
			createdAt  string
			updatedAt  string
		)

		err := rows.Scan(
			&rec.EventID,
			&rec.Person,
			&rec.Summary,
			&rec.StartMillis,
			&endTime,
			&sourceRef,
			&rec.Fingerprint,
			&status,
			&uploadTime,
			&uploadRes,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if endTime.Valid {
			v := endTime.Int64
			rec.EndMillis = &v
		}
		rec.SourceRef = sourceRef.String
		rec.Status = Status(status)
		rec.UploadTime = nullStringToTime(uploadTime)
		rec.UploadResult = uploadRes.String

		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			rec.UpdatedAt = t
		}

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

func int64PtrToNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
