// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
	"github.com/eliteGoblin/focusd/kidlock/internal/policy"
)

// State is the enforcer's evaluation state.
type State int32

const (
	StateIdle State = iota
	StateEvaluating
)

func (s State) String() string {
	if s == StateEvaluating {
		return "EVALUATING"
	}
	return "IDLE"
}

// ScheduleMessage formats the alert sent when a package is used outside the
// permitted window.
func ScheduleMessage(pkg string) string {
	return fmt.Sprintf("%s blocked by schedule", pkg)
}

// Enforcer decides on each foreground change and triggers the lock.
// Evaluations are serialised: one in flight per device.
type Enforcer struct {
	hostPackage string
	config      domain.ConfigStore
	resolver    domain.CategoryResolver
	blocker     domain.Blocker
	notifier    domain.Notifier
	reporter    *Reporter
	metrics     domain.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	state atomic.Int32
}

// NewEnforcer creates an enforcer without the daily budget tier.
func NewEnforcer(
	hostPackage string,
	cs domain.ConfigStore,
	cr domain.CategoryResolver,
	b domain.Blocker,
	n domain.Notifier,
	logger *zap.Logger,
) *Enforcer {
	return &Enforcer{
		hostPackage: hostPackage,
		config:      cs,
		resolver:    cr,
		blocker:     b,
		notifier:    n,
		logger:      logger,
		now:         time.Now,
	}
}

// NewEnforcerWithBudget creates an enforcer that also applies the daily
// limit, reading today's usage through the reporter.
func NewEnforcerWithBudget(
	hostPackage string,
	cs domain.ConfigStore,
	cr domain.CategoryResolver,
	b domain.Blocker,
	n domain.Notifier,
	r *Reporter,
	logger *zap.Logger,
) *Enforcer {
	e := NewEnforcer(hostPackage, cs, cr, b, n, logger)
	e.reporter = r
	return e
}

// WithMetrics attaches a metrics sink.
func (e *Enforcer) WithMetrics(m domain.Metrics) *Enforcer {
	e.metrics = m
	return e
}

// State returns IDLE or EVALUATING.
func (e *Enforcer) State() State {
	return State(e.state.Load())
}

// HandleForeground evaluates the new foreground package and, on denial,
// presents the lock. A denial caused only by the time window also raises a
// schedule notification. Side-effect errors are returned, never retried.
func (e *Enforcer) HandleForeground(ctx context.Context, change domain.ForegroundChange) (*domain.EnforcementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Store(int32(StateEvaluating))
	defer e.state.Store(int32(StateIdle))

	result := e.evaluate(ctx, change)
	defer e.finish(result)

	if result.SelfExcluded || result.Decision.Allowed {
		return result, nil
	}

	if err := e.blocker.PresentLock(ctx, change.PackageName); err != nil {
		e.logger.Warn("failed to present lock",
			zap.String("package", change.PackageName),
			zap.Error(err))
		return result, fmt.Errorf("failed to present lock for %s: %w", change.PackageName, err)
	}
	result.Locked = true

	if result.Decision.Reason == domain.ReasonOutOfWindow {
		if err := e.notifier.Notify(ctx, ScheduleMessage(change.PackageName)); err != nil {
			e.logger.Warn("failed to send schedule notification",
				zap.String("package", change.PackageName),
				zap.Error(err))
			return result, fmt.Errorf("failed to notify for %s: %w", change.PackageName, err)
		}
		result.Notified = true
	}

	return result, nil
}

// Preview evaluates a package at the given time without side effects.
func (e *Enforcer) Preview(ctx context.Context, pkg string, at time.Time) *domain.EnforcementResult {
	return e.evaluate(ctx, domain.ForegroundChange{PackageName: pkg, At: at})
}

func (e *Enforcer) evaluate(ctx context.Context, change domain.ForegroundChange) *domain.EnforcementResult {
	at := change.At
	if at.IsZero() {
		at = e.now()
	}

	result := &domain.EnforcementResult{
		EvaluationID: uuid.NewString(),
		PackageName:  change.PackageName,
		ExecutedAt:   e.now(),
	}

	if change.PackageName == e.hostPackage {
		result.SelfExcluded = true
		result.WindowOK = true
		result.Decision = domain.PolicyDecision{Allowed: true, Reason: domain.ReasonAllowed}
		return result
	}

	// Three independent reads; no snapshot isolation across them.
	rule := e.lockRule(ctx)
	profile := e.childProfile(ctx)
	window := e.timeWindow(ctx)

	result.Category = e.resolver.ResolveCategory(change.PackageName)
	decision := policy.Evaluate(change.PackageName, result.Category, profile.Age, rule)

	if decision.Allowed && decision.Reason != domain.ReasonWhitelisted {
		decision = e.applyBudget(ctx, at, decision)
	}

	result.WindowOK = policy.InWindow(policy.MinuteOfDay(at), window)
	if decision.Allowed && !result.WindowOK {
		decision = domain.PolicyDecision{Allowed: false, Reason: domain.ReasonOutOfWindow}
	}
	result.Decision = decision

	return result
}

func (e *Enforcer) applyBudget(ctx context.Context, at time.Time, decision domain.PolicyDecision) domain.PolicyDecision {
	if e.reporter == nil {
		return decision
	}

	limit, err := e.config.DailyLimit(ctx)
	if err != nil {
		e.logger.Warn("failed to load daily limit, using default", zap.Error(err))
		limit = domain.DefaultDailyLimit()
	}
	if !limit.Enabled() {
		return decision
	}

	used, err := e.reporter.UsedMinutes(ctx, policy.StartOfDay(at))
	if err != nil {
		e.logger.Warn("failed to compute today's usage, skipping budget", zap.Error(err))
		return decision
	}

	if budget := policy.CheckBudget(used, limit); !budget.Allowed {
		return budget
	}
	return decision
}

func (e *Enforcer) lockRule(ctx context.Context) domain.LockRule {
	rule, err := e.config.LockRule(ctx)
	if err != nil {
		e.logger.Warn("failed to load lock rule, using default", zap.Error(err))
		return domain.DefaultLockRule()
	}
	return rule
}

func (e *Enforcer) childProfile(ctx context.Context) domain.ChildProfile {
	profile, err := e.config.ChildProfile(ctx)
	if err != nil {
		e.logger.Warn("failed to load child profile, using default", zap.Error(err))
		return domain.DefaultChildProfile()
	}
	return profile
}

func (e *Enforcer) timeWindow(ctx context.Context) domain.TimeWindow {
	window, err := e.config.TimeWindow(ctx)
	if err != nil {
		e.logger.Warn("failed to load time window, using default", zap.Error(err))
		return domain.DefaultTimeWindow()
	}
	return window
}

func (e *Enforcer) finish(result *domain.EnforcementResult) {
	result.DurationMs = e.now().Sub(result.ExecutedAt).Milliseconds()

	if e.metrics != nil {
		e.metrics.ObserveDecision(*result)
	}

	if result.SelfExcluded {
		e.logger.Debug("ignoring host package", zap.String("package", result.PackageName))
		return
	}

	fields := []zap.Field{
		zap.String("evaluation_id", result.EvaluationID),
		zap.String("package", result.PackageName),
		zap.String("category", result.Category),
		zap.Bool("allowed", result.Decision.Allowed),
		zap.String("reason", string(result.Decision.Reason)),
		zap.Bool("window_ok", result.WindowOK),
		zap.Bool("locked", result.Locked),
		zap.Bool("notified", result.Notified),
	}
	if result.Decision.Allowed {
		e.logger.Debug("foreground allowed", fields...)
		return
	}
	e.logger.Info("foreground denied", fields...)
}
