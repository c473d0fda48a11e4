package config

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/gookit/validate"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Settings is the document accepted by `kidlock config apply`. Sections that
// are absent leave the stored value untouched.
type Settings struct {
	Rule    *domain.LockRule     `json:"rule,omitempty"`
	Profile *domain.ChildProfile `json:"profile,omitempty"`
	Window  *domain.TimeWindow   `json:"window,omitempty"`
	Limit   *domain.DailyLimit   `json:"limit,omitempty"`
}

// settingsCheck carries the rules for the values in a Settings document.
type settingsCheck struct {
	MinAge      int `validate:"min:0"`
	Age         int `validate:"min:0|max:150"`
	StartMinute int `validate:"min:0|max:1439"`
	EndMinute   int `validate:"min:0|max:1439"`
	Minutes     int `validate:"min:0|max:1440"`
}

// LoadSettings reads and validates a settings document.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges. Windows with start after end are accepted;
// they never match.
func (s *Settings) Validate() error {
	var c settingsCheck
	if s.Rule != nil {
		c.MinAge = s.Rule.MinAge
	}
	if s.Profile != nil {
		c.Age = s.Profile.Age
	}
	if s.Window != nil {
		c.StartMinute = s.Window.StartMinute
		c.EndMinute = s.Window.EndMinute
	}
	if s.Limit != nil {
		c.Minutes = s.Limit.Minutes
	}

	v := validate.Struct(&c)
	if !v.Validate() {
		return fmt.Errorf("invalid settings: %w", v.Errors)
	}
	return nil
}

// Apply writes every present section.
func (s *Settings) Apply(ctx context.Context, w domain.ConfigWriter) error {
	if s.Rule != nil {
		if err := w.SetLockRule(ctx, *s.Rule); err != nil {
			return err
		}
	}
	if s.Profile != nil {
		if err := w.SetChildProfile(ctx, *s.Profile); err != nil {
			return err
		}
	}
	if s.Window != nil {
		if err := w.SetTimeWindow(ctx, *s.Window); err != nil {
			return err
		}
	}
	if s.Limit != nil {
		if err := w.SetDailyLimit(ctx, *s.Limit); err != nil {
			return err
		}
	}
	return nil
}

// Current reads the effective settings, defaults included.
func Current(ctx context.Context, cs domain.ConfigStore) (*Settings, error) {
	rule, err := cs.LockRule(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := cs.ChildProfile(ctx)
	if err != nil {
		return nil, err
	}
	window, err := cs.TimeWindow(ctx)
	if err != nil {
		return nil, err
	}
	limit, err := cs.DailyLimit(ctx)
	if err != nil {
		return nil, err
	}
	return &Settings{Rule: &rule, Profile: &profile, Window: &window, Limit: &limit}, nil
}
