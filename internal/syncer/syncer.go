// Package syncer drives one full synchronization cycle:
// ingest → select pending → batch → upload → apply results.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/bitable"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/calendar"
	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/tracker"
)

// defaultBatchSize bounds one transport call when no size is configured.
const defaultBatchSize = 50

// Source yields raw events per person. A source may return partial results
// alongside an error; the events are ingested and the error is reported.
type Source interface {
	Fetch(ctx context.Context) ([]calendar.PersonEvents, error)
}

// Uploader performs one transport call per batch. An error means the call
// itself failed (network, timeout); application-level rejection comes back
// in the Result.
type Uploader interface {
	BatchCreate(ctx context.Context, records []bitable.RecordFields) (bitable.Result, error)
}

// Report aggregates the counts of one cycle. It is informational: failures
// surface through store state, never as per-record errors to the caller.
type Report struct {
	BatchID  string
	Ingested int
	Skipped  int
	Uploaded int
	Failed   int
	Batches  int
}

// Syncer executes cycles against one record store. It runs single-flow:
// the caller guarantees at most one cycle at a time (the CLI holds an
// advisory file lock for the process).
type Syncer struct {
	store     *tracker.Store
	uploader  Uploader
	sources   []Source
	log       *zap.Logger
	batchSize int
	timeout   time.Duration
	now       func() time.Time
}

// Options configures a Syncer.
type Options struct {
	// BatchSize caps records per transport call (default 50).
	BatchSize int
	// Timeout bounds each transport call (0 = rely on the client's own
	// timeout).
	Timeout time.Duration
}

// New creates a Syncer over the given store, uploader and sources.
func New(store *tracker.Store, uploader Uploader, sources []Source, log *zap.Logger, opts Options) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Syncer{
		store:     store,
		uploader:  uploader,
		sources:   sources,
		log:       log,
		batchSize: batchSize,
		timeout:   opts.Timeout,
		now:       time.Now,
	}
}

// RunCycle executes one full cycle and reports aggregate counts.
//
// Ingestion failures of individual records are logged and skipped so one
// bad record cannot block the rest. Upload failures mark the whole chunk
// failed and the cycle moves on to the next chunk. Only the inability to
// select pending records aborts the cycle. Cancellation is honored between
// chunks: an in-flight chunk always completes so its state is never left
// ambiguous.
func (s *Syncer) RunCycle(ctx context.Context) (Report, error) {
	report := Report{BatchID: s.newBatchID()}

	s.ingest(ctx, &report)

	pending, err := s.store.ListPending(ctx, tracker.PendingFilter{})
	if err != nil {
		return report, fmt.Errorf("failed to select pending records: %w", err)
	}
	if len(pending) == 0 {
		s.log.Info("no pending records",
			zap.String("batch_id", report.BatchID),
			zap.Int("ingested", report.Ingested))
		return report, nil
	}

	s.log.Info("uploading pending records",
		zap.String("batch_id", report.BatchID),
		zap.Int("pending", len(pending)),
		zap.Int("batch_size", s.batchSize))

	for start := 0; start < len(pending); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			s.log.Warn("cycle interrupted, remaining records stay pending",
				zap.Int("remaining", len(pending)-start))
			break
		}

		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		s.uploadChunk(ctx, report.BatchID, pending[start:end], &report)
		report.Batches++
	}

	s.log.Info("cycle complete",
		zap.String("batch_id", report.BatchID),
		zap.Int("ingested", report.Ingested),
		zap.Int("skipped", report.Skipped),
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", report.Failed))

	return report, nil
}

// ingest normalizes and upserts every event from every source.
func (s *Syncer) ingest(ctx context.Context, report *Report) {
	for _, src := range s.sources {
		batches, err := src.Fetch(ctx)
		if err != nil {
			s.log.Warn("source fetch incomplete", zap.Error(err))
		}

		for _, pe := range batches {
			for _, raw := range pe.Events {
				ev, skip := calendar.Normalize(raw, pe.Person)
				if skip != calendar.SkipNone {
					if skip == calendar.SkipNoStartTime {
						s.log.Warn("dropping event with unresolved start time",
							zap.String("event_id", raw.EventID),
							zap.String("summary", raw.Summary))
					}
					report.Skipped++
					continue
				}

				result, err := s.store.Upsert(ctx, tracker.Incoming{
					EventID:     ev.EventID,
					Person:      ev.Person,
					Summary:     ev.Summary,
					StartMillis: ev.StartMillis,
					EndMillis:   ev.EndMillis,
					SourceRef:   pe.SourceRef,
					Fingerprint: ev.Fingerprint,
				})
				if err != nil {
					s.log.Warn("failed to ingest record",
						zap.String("event_id", ev.EventID),
						zap.Error(err))
					continue
				}
				if result != tracker.UpsertUnchanged {
					report.Ingested++
				}
			}
		}
	}
}

// uploadChunk submits one chunk in a single transport call and applies the
// all-or-nothing outcome to every record in it. The endpoint reports no
// per-record status, so the chunk wholly succeeds or wholly fails.
func (s *Syncer) uploadChunk(ctx context.Context, batchID string, chunk []*tracker.Record, report *Report) {
	payload := make([]bitable.RecordFields, 0, len(chunk))
	for _, rec := range chunk {
		end := rec.StartMillis
		if rec.EndMillis != nil {
			end = *rec.EndMillis
		}
		payload = append(payload, bitable.RecordFields{
			Summary:   rec.Summary,
			StartTime: rec.StartMillis,
			EndTime:   end,
			Person:    rec.Person,
		})
	}

	// The in-flight call and its state writes are detached from the cycle
	// context: a shutdown signal must not abort a submitted batch, or its
	// outcome is unknowable. Cancellation is honored between chunks by the
	// caller; the per-call timeout still bounds the request.
	stateCtx := context.WithoutCancel(ctx)

	callCtx := stateCtx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(stateCtx, s.timeout)
		defer cancel()
	}

	result, err := s.uploader.BatchCreate(callCtx, payload)

	var attempts []tracker.Attempt
	switch {
	case err == nil && result.Success():
		resultText := fmt.Sprintf("batch upload succeeded (%d records)", len(chunk))
		for _, rec := range chunk {
			ok, err := s.store.MarkUploaded(stateCtx, rec.EventID, resultText)
			if err != nil {
				s.log.Warn("failed to mark record uploaded",
					zap.String("event_id", rec.EventID), zap.Error(err))
				continue
			}
			if !ok {
				s.log.Warn("no matching record to mark uploaded",
					zap.String("event_id", rec.EventID))
				continue
			}
			report.Uploaded++
			attempts = append(attempts, tracker.Attempt{
				EventID: rec.EventID,
				Status:  tracker.StatusUploaded,
				Result:  resultText,
			})
		}

	default:
		errMsg := extractFailure(result, err)
		s.log.Warn("batch upload failed",
			zap.String("batch_id", batchID),
			zap.Int("records", len(chunk)),
			zap.String("error", errMsg))

		for _, rec := range chunk {
			if _, err := s.store.MarkFailed(stateCtx, rec.EventID, errMsg); err != nil {
				s.log.Warn("failed to mark record failed",
					zap.String("event_id", rec.EventID), zap.Error(err))
				continue
			}
			report.Failed++
			attempts = append(attempts, tracker.Attempt{
				EventID: rec.EventID,
				Status:  tracker.StatusFailed,
				Error:   errMsg,
			})
		}
	}

	// Audit logging must never fail the upload it describes.
	if err := s.store.AppendBatchLog(stateCtx, batchID, attempts); err != nil {
		s.log.Warn("failed to append batch log",
			zap.String("batch_id", batchID), zap.Error(err))
	}
}

// extractFailure picks the most specific failure message available.
func extractFailure(result bitable.Result, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case result.Msg != "":
		if result.Code > 0 {
			return fmt.Sprintf("API error code=%d: %s", result.Code, result.Msg)
		}
		return result.Msg
	case result.Code != 0:
		return fmt.Sprintf("API error code=%d", result.Code)
	default:
		return "upload rejected"
	}
}

// newBatchID derives a cycle-unique batch identifier: a timestamp token
// (sortable, human-readable in the audit log) plus a short random suffix.
func (s *Syncer) newBatchID() string {
	return s.now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
