package lark

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/barbarousrabbit/Lark-Calendar-Scheduler/internal/calendar"
)

// EventSource pulls events from every calendar visible to the user token
// and persists a snapshot per person, so later ingestion runs (and the
// watch mode) can work from the same payloads.
type EventSource struct {
	client      *Client
	tokenFile   string
	snapshotDir string
	months      int
	log         *zap.Logger
	now         func() time.Time
}

// NewEventSource creates a source reading the user token from tokenFile,
// covering the current month plus `months` ahead, snapshotting each
// calendar into snapshotDir (skipped when empty).
func NewEventSource(client *Client, tokenFile, snapshotDir string, months int, log *zap.Logger) *EventSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventSource{
		client:      client,
		tokenFile:   tokenFile,
		snapshotDir: snapshotDir,
		months:      months,
		log:         log,
		now:         time.Now,
	}
}

// Fetch lists the user's calendars and pulls events for each within the
// sync window. A calendar that fails to fetch is logged and skipped; the
// remaining calendars still produce events.
func (s *EventSource) Fetch(ctx context.Context) ([]calendar.PersonEvents, error) {
	token, err := LoadUserToken(s.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no usable access token: %w", err)
	}

	calendars, err := s.client.ListCalendars(ctx, token)
	if err != nil {
		return nil, err
	}
	s.log.Info("fetched calendar list", zap.Int("calendars", len(calendars)))

	from, to := calendar.Window(s.now(), s.months)

	var out []calendar.PersonEvents
	for _, cal := range calendars {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		events, err := s.client.ListEvents(ctx, token, cal.CalendarID, from, to)
		if err != nil {
			s.log.Warn("skipping calendar",
				zap.String("calendar_id", cal.CalendarID),
				zap.String("person", cal.Summary),
				zap.Error(err))
			continue
		}

		person := cal.Summary
		if person == "" {
			person = cal.CalendarID
		}

		sourceRef := cal.CalendarID
		if s.snapshotDir != "" {
			path := filepath.Join(s.snapshotDir, person+".json")
			if err := calendar.WriteSnapshot(path, events); err != nil {
				s.log.Warn("failed to write snapshot",
					zap.String("person", person), zap.Error(err))
			} else {
				sourceRef = path
			}
		}

		out = append(out, calendar.PersonEvents{
			Person:    person,
			SourceRef: sourceRef,
			Events:    events,
		})
	}

	return out, nil
}
