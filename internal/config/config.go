// Package config loads kidlock settings from YAML, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. KIDLOCK_LOGGER_LEVEL.
const EnvPrefix = "KIDLOCK"

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required|in:debug,info,warn,error"`
	File  string `mapstructure:"file"`
}

type CollectorConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required|min:1"`
	Lookback time.Duration `mapstructure:"lookback" validate:"required|min:1"`
}

type FeedConfig struct {
	UsagePath      string `mapstructure:"usagePath"`
	ForegroundPath string `mapstructure:"foregroundPath"`
}

type EnforcerConfig struct {
	QueueSize     int      `mapstructure:"queueSize" validate:"required|min:1"`
	LockCommand   []string `mapstructure:"lockCommand"`
	NotifyCommand []string `mapstructure:"notifyCommand"`
}

// CategoryOverride pins the category of one package. A list is used rather
// than a map because package names contain dots.
type CategoryOverride struct {
	Package  string `mapstructure:"package"`
	Category string `mapstructure:"category"`
}

type CategoriesConfig struct {
	CacheSizeMB int                `mapstructure:"cacheSizeMB" validate:"min:0"`
	Overrides   []CategoryOverride `mapstructure:"overrides"`
	SystemDirs  []string           `mapstructure:"systemDirs"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type RetentionConfig struct {
	MaxAge     time.Duration `mapstructure:"maxAge" validate:"required|min:1"`
	ArchiveDir string        `mapstructure:"archiveDir"`
}

type Config struct {
	DataDir     string           `mapstructure:"dataDir" validate:"required"`
	HostPackage string           `mapstructure:"hostPackage" validate:"required"`
	Logger      LoggerConfig     `mapstructure:"logger"`
	Collector   CollectorConfig  `mapstructure:"collector"`
	Feed        FeedConfig       `mapstructure:"feed"`
	Enforcer    EnforcerConfig   `mapstructure:"enforcer"`
	Categories  CategoriesConfig `mapstructure:"categories"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Retention   RetentionConfig  `mapstructure:"retention"`

	// Path is the file the config was read from, empty for defaults only.
	Path string `mapstructure:"-"`
}

// CategoryOverrides returns the overrides keyed by package.
func (c *Config) CategoryOverrides() map[string]string {
	m := make(map[string]string, len(c.Categories.Overrides))
	for _, o := range c.Categories.Overrides {
		m[o.Package] = o.Category
	}
	return m
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", DetectExecMode().DataDir)
	v.SetDefault("hostPackage", domain.DefaultHostPackage)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.file", "")
	v.SetDefault("collector.interval", 15*time.Minute)
	v.SetDefault("collector.lookback", 24*time.Hour)
	v.SetDefault("feed.usagePath", "")
	v.SetDefault("feed.foregroundPath", "")
	v.SetDefault("enforcer.queueSize", 64)
	v.SetDefault("enforcer.lockCommand", []string{})
	v.SetDefault("enforcer.notifyCommand", []string{})
	v.SetDefault("categories.cacheSizeMB", 1)
	v.SetDefault("categories.overrides", []map[string]string{})
	v.SetDefault("categories.systemDirs", []string{})
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
	v.SetDefault("retention.maxAge", 90*24*time.Hour)
	v.SetDefault("retention.archiveDir", "")
}

// Load reads path (optional) and applies KIDLOCK_* environment overrides on
// top of the defaults. Relative locations are resolved against dataDir.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Path = path

	if err := conf.resolvePaths(); err != nil {
		return nil, err
	}
	if err := Validate(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks struct rules.
func Validate(conf *Config) error {
	v := validate.Struct(conf)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}
	for _, o := range conf.Categories.Overrides {
		if o.Package == "" || o.Category == "" {
			return errors.New("invalid config: category override needs package and category")
		}
	}
	return nil
}

func (c *Config) resolvePaths() error {
	dataDir, err := expandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dataDir

	resolve := func(p, fallback string) (string, error) {
		if p == "" {
			return filepath.Join(c.DataDir, fallback), nil
		}
		p, err := expandHome(p)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.DataDir, p)
		}
		return p, nil
	}

	if c.Logger.File, err = resolve(c.Logger.File, "kidlock.log"); err != nil {
		return err
	}
	if c.Feed.UsagePath, err = resolve(c.Feed.UsagePath, filepath.Join("feed", "usage.jsonl")); err != nil {
		return err
	}
	if c.Feed.ForegroundPath, err = resolve(c.Feed.ForegroundPath, filepath.Join("feed", "foreground.jsonl")); err != nil {
		return err
	}
	if c.Retention.ArchiveDir, err = resolve(c.Retention.ArchiveDir, "archive"); err != nil {
		return err
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
