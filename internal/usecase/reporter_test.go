package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

func TestReporter_Report(t *testing.T) {
	// Stored newest first, as the event log returns them.
	el := &mockEventLog{events: []domain.UsageEvent{
		{PackageName: "pkgB", Kind: domain.KindBackground, TimestampMillis: 480000},
		{PackageName: "pkgB", Kind: domain.KindForeground, TimestampMillis: 120000},
		{PackageName: "pkgA", Kind: domain.KindBackground, TimestampMillis: 120000},
		{PackageName: "pkgA", Kind: domain.KindForeground, TimestampMillis: 0},
	}}

	report, err := NewReporter(el).Report(context.Background(), time.UnixMilli(0))

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pkgA": 2, "pkgB": 6}, report.Totals)
	assert.Equal(t, int64(8), report.TotalMinutes)
	assert.Len(t, report.Sessions, 2)
	assert.Equal(t, 4, report.EventCount)
}

func TestReporter_UsedMinutesRespectsSince(t *testing.T) {
	el := &mockEventLog{events: []domain.UsageEvent{
		{PackageName: "pkgB", Kind: domain.KindBackground, TimestampMillis: 480000},
		{PackageName: "pkgB", Kind: domain.KindForeground, TimestampMillis: 120000},
		{PackageName: "pkgA", Kind: domain.KindBackground, TimestampMillis: 60000},
		{PackageName: "pkgA", Kind: domain.KindForeground, TimestampMillis: 0},
	}}

	used, err := NewReporter(el).UsedMinutes(context.Background(), time.UnixMilli(100000))

	require.NoError(t, err)
	assert.Equal(t, int64(6), used)
}

func TestReporter_SessionAcrossMidnight(t *testing.T) {
	midnight := time.Date(2024, 5, 10, 0, 0, 0, 0, time.Local)
	el := &mockEventLog{events: []domain.UsageEvent{
		{PackageName: "pkgA", Kind: domain.KindBackground, TimestampMillis: midnight.Add(40 * time.Minute).UnixMilli()},
		{PackageName: "pkgA", Kind: domain.KindForeground, TimestampMillis: midnight.Add(-20 * time.Minute).UnixMilli()},
		{PackageName: "pkgB", Kind: domain.KindBackground, TimestampMillis: midnight.Add(-30 * time.Minute).UnixMilli()},
		{PackageName: "pkgB", Kind: domain.KindForeground, TimestampMillis: midnight.Add(-90 * time.Minute).UnixMilli()},
	}}
	reporter := NewReporter(el)

	used, err := reporter.UsedMinutes(context.Background(), midnight)
	require.NoError(t, err)
	assert.Equal(t, int64(40), used)

	report, err := reporter.Report(context.Background(), midnight)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pkgA": 40}, report.Totals)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, midnight.UnixMilli(), report.Sessions[0].StartMillis)
	assert.Equal(t, 1, report.EventCount)
}

func TestReporter_QueryError(t *testing.T) {
	el := &mockEventLog{queryErr: errors.New("boom")}

	_, err := NewReporter(el).Report(context.Background(), time.Now())

	require.Error(t, err)
	assert.ErrorIs(t, err, el.queryErr)
}
