package domain

import "context"

// EventSource samples the OS usage-tracking facility.
// Implementation: JSON-lines feed written by the platform bridge.
type EventSource interface {
	// Collect returns transitions with since <= timestamp <= until, oldest first.
	// Returns ErrAccessDenied when the facility refuses access.
	Collect(ctx context.Context, sinceMillis, untilMillis int64) ([]UsageEvent, error)
}

// EventLog is the append-only store of normalized events.
type EventLog interface {
	// Append upserts events keyed by (package, kind, timestamp) and returns
	// the number of rows that were new.
	Append(ctx context.Context, events []UsageEvent) (int, error)

	// Query returns events with timestamp >= sinceMillis, newest first.
	Query(ctx context.Context, sinceMillis int64) ([]UsageEvent, error)
}

// ConfigStore provides the active configuration snapshot.
// Every getter returns the documented default when the value is unset.
type ConfigStore interface {
	LockRule(ctx context.Context) (LockRule, error)
	ChildProfile(ctx context.Context) (ChildProfile, error)
	TimeWindow(ctx context.Context) (TimeWindow, error)
	DailyLimit(ctx context.Context) (DailyLimit, error)
}

// ConfigWriter persists configuration delivered by the external channel.
// The enforcement path never writes configuration.
type ConfigWriter interface {
	SetLockRule(ctx context.Context, rule LockRule) error
	SetChildProfile(ctx context.Context, profile ChildProfile) error
	SetTimeWindow(ctx context.Context, window TimeWindow) error
	SetDailyLimit(ctx context.Context, limit DailyLimit) error
}

// ForegroundHandler receives foreground-change notifications.
type ForegroundHandler func(change ForegroundChange)

// ForegroundNotifier delivers OS window-state changes.
// The host owns the delivery thread; the core only registers one handler.
type ForegroundNotifier interface {
	// Register sets the single handler. A later call replaces the earlier one.
	Register(handler ForegroundHandler)

	// Run delivers notifications until ctx is canceled.
	Run(ctx context.Context) error
}

// CategoryResolver looks up package metadata (e.g. "system" vs "user").
type CategoryResolver interface {
	ResolveCategory(pkg string) string
}

// Blocker presents the full-screen lock. Must be idempotent and cheap,
// since it may be invoked repeatedly for the same denial.
type Blocker interface {
	PresentLock(ctx context.Context, pkg string) error
}

// Notifier delivers user-facing alerts for schedule violations.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID.
	Kill(pid int) error

	// ExecutablePath returns the executable path of a running process.
	ExecutablePath(pid int) (string, error)
}

// Metrics records enforcement and collection outcomes.
type Metrics interface {
	ObserveDecision(result EnforcementResult)
	ObserveCollection(result CollectionResult)
	IncDropped()
}
