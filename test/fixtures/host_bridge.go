// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// FakeHostBridge writes the feed files a host OS bridge would produce.
type FakeHostBridge struct {
	Dir string
}

// NewFakeHostBridge creates a bridge writing under dir.
func NewFakeHostBridge(dir string) *FakeHostBridge {
	return &FakeHostBridge{Dir: dir}
}

// UsagePath is the usage feed location.
func (b *FakeHostBridge) UsagePath() string {
	return filepath.Join(b.Dir, "usage.jsonl")
}

// ForegroundPath is the foreground feed location.
func (b *FakeHostBridge) ForegroundPath() string {
	return filepath.Join(b.Dir, "foreground.jsonl")
}

// Session records one foreground session for pkg in the usage feed.
func (b *FakeHostBridge) Session(pkg string, start time.Time, length time.Duration) error {
	return b.appendJSON(b.UsagePath(),
		domain.UsageEvent{PackageName: pkg, Kind: domain.KindForeground, TimestampMillis: start.UnixMilli()},
		domain.UsageEvent{PackageName: pkg, Kind: domain.KindBackground, TimestampMillis: start.Add(length).UnixMilli()},
	)
}

// Foreground announces that pkg came to the foreground at t.
func (b *FakeHostBridge) Foreground(pkg string, t time.Time) error {
	return b.appendJSON(b.ForegroundPath(), map[string]any{
		"package": pkg,
		"ts":      t.UnixMilli(),
	})
}

func (b *FakeHostBridge) appendJSON(path string, records ...any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}
