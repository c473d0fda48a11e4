// Package usage reconstructs foreground sessions from transition events.
// Everything here is pure: no I/O, no clock, no errors.
package usage

import (
	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Sessions pairs foreground/background transitions into closed sessions.
// Events must be ordered oldest first. At most one session is open per
// package: a second ENTER_FOREGROUND overwrites the pending start. A
// background event without an open start is dropped, and sessions still
// open at the end of input are not returned. Sessions with a non-positive
// duration are excluded.
func Sessions(events []domain.UsageEvent) []domain.Session {
	open := make(map[string]int64)
	var sessions []domain.Session

	for _, ev := range events {
		switch ev.Kind {
		case domain.KindForeground:
			open[ev.PackageName] = ev.TimestampMillis
		case domain.KindBackground:
			start, ok := open[ev.PackageName]
			if !ok {
				continue
			}
			delete(open, ev.PackageName)

			s := domain.Session{
				PackageName: ev.PackageName,
				StartMillis: start,
				EndMillis:   ev.TimestampMillis,
			}
			if s.Valid() {
				sessions = append(sessions, s)
			}
		}
	}

	return sessions
}

// MinutesByPackage returns total truncated minutes per package.
// Each session is truncated on its own before summing.
func MinutesByPackage(events []domain.UsageEvent) map[string]int64 {
	byPackage, _ := Totals(Sessions(events))
	return byPackage
}

// TotalMinutes returns minutes across all packages.
func TotalMinutes(events []domain.UsageEvent) int64 {
	_, total := Totals(Sessions(events))
	return total
}

// Totals sums truncated session minutes per package and overall.
func Totals(sessions []domain.Session) (map[string]int64, int64) {
	byPackage := make(map[string]int64)
	var total int64
	for _, s := range sessions {
		m := s.DurationMinutes()
		byPackage[s.PackageName] += m
		total += m
	}
	return byPackage, total
}

// Clip keeps the part of each session at or after sinceMillis. Sessions that
// ended by then are dropped; ones still running have their start moved up.
func Clip(sessions []domain.Session, sinceMillis int64) []domain.Session {
	var out []domain.Session
	for _, s := range sessions {
		if s.StartMillis < sinceMillis {
			s.StartMillis = sinceMillis
		}
		if s.Valid() {
			out = append(out, s)
		}
	}
	return out
}

// OldestFirst returns a reversed copy of a newest-first slice, as returned by
// domain.EventLog.Query. The input is left untouched.
func OldestFirst(newestFirst []domain.UsageEvent) []domain.UsageEvent {
	out := make([]domain.UsageEvent, len(newestFirst))
	for i, ev := range newestFirst {
		out[len(newestFirst)-1-i] = ev
	}
	return out
}
