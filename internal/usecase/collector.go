package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// DefaultLookback is how far back each sampling run reaches.
// Overlapping windows are harmless because EventLog.Append is an upsert.
const DefaultLookback = 24 * time.Hour

// Collector copies transitions from the OS usage facility into the event log.
type Collector struct {
	source   domain.EventSource
	eventLog domain.EventLog
	lookback time.Duration
	metrics  domain.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewCollector creates a collector sampling [now-lookback, now] per run.
func NewCollector(
	src domain.EventSource,
	el domain.EventLog,
	lookback time.Duration,
	logger *zap.Logger,
) *Collector {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Collector{
		source:   src,
		eventLog: el,
		lookback: lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (c *Collector) WithMetrics(m domain.Metrics) *Collector {
	c.metrics = m
	return c
}

// Collect runs one sampling pass. A denied source yields an empty, successful
// result: missing permission looks the same as no activity.
func (c *Collector) Collect(ctx context.Context) (*domain.CollectionResult, error) {
	start := c.now()
	result := &domain.CollectionResult{
		SinceMillis: start.Add(-c.lookback).UnixMilli(),
		UntilMillis: start.UnixMilli(),
		ExecutedAt:  start,
	}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
		if c.metrics != nil {
			c.metrics.ObserveCollection(*result)
		}
	}()

	raw, err := c.source.Collect(ctx, result.SinceMillis, result.UntilMillis)
	if errors.Is(err, domain.ErrAccessDenied) {
		c.logger.Debug("usage access not granted, nothing collected")
		result.Denied = true
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to sample usage events: %w", err)
	}

	events := make([]domain.UsageEvent, 0, len(raw))
	for _, ev := range raw {
		if ev.Kind.Tracked() {
			events = append(events, ev)
		}
	}
	result.Sampled = len(events)

	if len(events) == 0 {
		return result, nil
	}

	inserted, err := c.eventLog.Append(ctx, events)
	if err != nil {
		return result, fmt.Errorf("failed to append usage events: %w", err)
	}
	result.Inserted = inserted

	c.logger.Info("usage events collected",
		zap.Int("sampled", result.Sampled),
		zap.Int("inserted", inserted))

	return result, nil
}
