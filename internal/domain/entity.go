// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrAccessDenied is returned by an EventSource when the OS usage facility
	// refuses access (permission not granted).
	ErrAccessDenied = errors.New("usage access denied")

	// ErrNotFound is returned by stores when a keyed value is absent.
	ErrNotFound = errors.New("not found")
)

// EventKind identifies the type of an OS usage transition.
type EventKind string

const (
	KindForeground EventKind = "ENTER_FOREGROUND"
	KindBackground EventKind = "ENTER_BACKGROUND"
)

// Tracked reports whether the kind takes part in session reconstruction.
// The OS facility reports many other transitions; those are discarded.
func (k EventKind) Tracked() bool {
	return k == KindForeground || k == KindBackground
}

// UsageEvent is a single foreground/background transition.
// Events are immutable once collected.
type UsageEvent struct {
	PackageName     string    `json:"package"`
	Kind            EventKind `json:"kind"`
	TimestampMillis int64     `json:"ts"`
}

// Session is a closed foreground interval derived from a matched event pair.
// Sessions are computed on demand and never persisted.
type Session struct {
	PackageName string
	StartMillis int64
	EndMillis   int64
}

// Valid reports whether the session has a positive duration.
func (s Session) Valid() bool {
	return s.EndMillis > s.StartMillis
}

// DurationMinutes returns the whole minutes spent in the session (truncated).
func (s Session) DurationMinutes() int64 {
	if !s.Valid() {
		return 0
	}
	return (s.EndMillis - s.StartMillis) / 60000
}

// LockRule is the active rule set. An empty Category and a zero MinAge mean
// the respective gate is not configured.
type LockRule struct {
	Category  string   `json:"category,omitempty"`
	MinAge    int      `json:"min_age,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// Blacklisted reports whether pkg is explicitly denied.
func (r LockRule) Blacklisted(pkg string) bool {
	return slices.Contains(r.Blacklist, pkg)
}

// Whitelisted reports whether pkg is explicitly trusted.
func (r LockRule) Whitelisted(pkg string) bool {
	return slices.Contains(r.Whitelist, pkg)
}

// ChildProfile describes the child using the device.
type ChildProfile struct {
	Age int `json:"age"`
}

// TimeWindow is the single daily interval during which access is permitted,
// in minutes since local midnight (0-1439), inclusive on both ends.
type TimeWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// DailyLimit caps foreground minutes per day. Zero disables the cap.
type DailyLimit struct {
	Minutes int `json:"minutes"`
}

// Enabled reports whether a cap is configured.
func (l DailyLimit) Enabled() bool {
	return l.Minutes > 0
}

// Fail-open defaults used whenever configuration is missing.
const (
	DefaultChildAge    = 18
	LastMinuteOfDay    = 24*60 - 1
	DefaultHostPackage = "kidlock"
)

// DefaultLockRule returns the empty rule set, which allows everything.
func DefaultLockRule() LockRule { return LockRule{} }

// DefaultChildProfile returns a profile that passes every age gate.
func DefaultChildProfile() ChildProfile { return ChildProfile{Age: DefaultChildAge} }

// DefaultTimeWindow returns the full-day window.
func DefaultTimeWindow() TimeWindow { return TimeWindow{StartMinute: 0, EndMinute: LastMinuteOfDay} }

// DefaultDailyLimit returns the disabled limit.
func DefaultDailyLimit() DailyLimit { return DailyLimit{} }

// Reason explains a PolicyDecision.
type Reason string

const (
	ReasonBlacklisted    Reason = "BLACKLISTED"
	ReasonWhitelisted    Reason = "WHITELISTED"
	ReasonAgeTooLow      Reason = "AGE_TOO_LOW"
	ReasonCategoryDenied Reason = "CATEGORY_DENIED"
	ReasonOutOfWindow    Reason = "OUT_OF_WINDOW"
	ReasonBudgetExceeded Reason = "BUDGET_EXCEEDED"
	ReasonAllowed        Reason = "ALLOWED"
)

// PolicyDecision is the transient outcome of evaluating one package.
type PolicyDecision struct {
	Allowed bool
	Reason  Reason
}

// ForegroundChange is delivered by the OS whenever the window state changes.
type ForegroundChange struct {
	PackageName string
	At          time.Time
}

// EnforcementResult captures what happened during a single evaluation.
type EnforcementResult struct {
	EvaluationID string
	PackageName  string
	Category     string
	Decision     PolicyDecision
	WindowOK     bool
	SelfExcluded bool
	Locked       bool
	Notified     bool
	ExecutedAt   time.Time
	DurationMs   int64
}

// CollectionResult summarises one EventSource sampling run.
type CollectionResult struct {
	SinceMillis int64
	UntilMillis int64
	Sampled     int
	Inserted    int
	Denied      bool
	ExecutedAt  time.Time
	DurationMs  int64
}
