package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
	"github.com/eliteGoblin/focusd/kidlock/internal/usage"
)

// Report is the per-package usage summary for a period.
type Report struct {
	Since        time.Time
	Totals       map[string]int64 // minutes per package
	TotalMinutes int64
	Sessions     []domain.Session
	EventCount   int
}

// Reporter aggregates persisted events on demand.
type Reporter struct {
	eventLog domain.EventLog
}

// NewReporter creates a reporter over the event log.
func NewReporter(el domain.EventLog) *Reporter {
	return &Reporter{eventLog: el}
}

// Report aggregates usage recorded since the given time. A session that
// opened before since counts from since onward.
func (r *Reporter) Report(ctx context.Context, since time.Time) (*Report, error) {
	sessions, count, err := r.load(ctx, since)
	if err != nil {
		return nil, err
	}

	totals, total := usage.Totals(sessions)
	return &Report{
		Since:        since,
		Totals:       totals,
		TotalMinutes: total,
		Sessions:     sessions,
		EventCount:   count,
	}, nil
}

// UsedMinutes returns total closed-session minutes since the given time.
func (r *Reporter) UsedMinutes(ctx context.Context, since time.Time) (int64, error) {
	sessions, _, err := r.load(ctx, since)
	if err != nil {
		return 0, err
	}
	_, total := usage.Totals(sessions)
	return total, nil
}

// load reads DefaultLookback further back than since so a session open at
// since still finds its start, then clips sessions to since. The count is
// the number of events at or after since.
func (r *Reporter) load(ctx context.Context, since time.Time) ([]domain.Session, int, error) {
	sinceMillis := since.UnixMilli()
	newest, err := r.eventLog.Query(ctx, since.Add(-DefaultLookback).UnixMilli())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query usage events: %w", err)
	}

	count := 0
	for _, ev := range newest {
		if ev.TimestampMillis >= sinceMillis {
			count++
		}
	}

	events := usage.OldestFirst(newest)
	return usage.Clip(usage.Sessions(events), sinceMillis), count, nil
}
