package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kidlock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("KIDLOCK_DATADIR", dataDir)

	conf, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dataDir, conf.DataDir)
	assert.Equal(t, "kidlock", conf.HostPackage)
	assert.Equal(t, "info", conf.Logger.Level)
	assert.Equal(t, filepath.Join(dataDir, "kidlock.log"), conf.Logger.File)
	assert.Equal(t, 15*time.Minute, conf.Collector.Interval)
	assert.Equal(t, 24*time.Hour, conf.Collector.Lookback)
	assert.Equal(t, filepath.Join(dataDir, "feed", "usage.jsonl"), conf.Feed.UsagePath)
	assert.Equal(t, filepath.Join(dataDir, "feed", "foreground.jsonl"), conf.Feed.ForegroundPath)
	assert.Equal(t, 64, conf.Enforcer.QueueSize)
	assert.Equal(t, 1, conf.Categories.CacheSizeMB)
	assert.False(t, conf.Metrics.Enabled)
	assert.Equal(t, 90*24*time.Hour, conf.Retention.MaxAge)
	assert.Equal(t, filepath.Join(dataDir, "archive"), conf.Retention.ArchiveDir)
	assert.Empty(t, conf.Path)
}

func TestLoad_File(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
dataDir: `+dataDir+`
hostPackage: com.example.kidlock
logger:
  level: debug
collector:
  interval: 5m
feed:
  usagePath: bridge/usage.jsonl
  foregroundPath: /var/run/kidlock/fg.jsonl
enforcer:
  queueSize: 8
  lockCommand: ["/usr/bin/lockscreen", "{package}"]
categories:
  cacheSizeMB: 0
  overrides:
    - package: com.example.school
      category: education
metrics:
  enabled: true
  addr: ":9000"
`)

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "com.example.kidlock", conf.HostPackage)
	assert.Equal(t, "debug", conf.Logger.Level)
	assert.Equal(t, 5*time.Minute, conf.Collector.Interval)
	assert.Equal(t, 24*time.Hour, conf.Collector.Lookback)
	assert.Equal(t, filepath.Join(dataDir, "bridge", "usage.jsonl"), conf.Feed.UsagePath)
	assert.Equal(t, "/var/run/kidlock/fg.jsonl", conf.Feed.ForegroundPath)
	assert.Equal(t, 8, conf.Enforcer.QueueSize)
	assert.Equal(t, []string{"/usr/bin/lockscreen", "{package}"}, conf.Enforcer.LockCommand)
	assert.Equal(t, 0, conf.Categories.CacheSizeMB)
	assert.Equal(t, map[string]string{"com.example.school": "education"}, conf.CategoryOverrides())
	assert.True(t, conf.Metrics.Enabled)
	assert.Equal(t, ":9000", conf.Metrics.Addr)
	assert.Equal(t, path, conf.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "dataDir: "+t.TempDir()+"\nlogger:\n  level: debug\n")
	t.Setenv("KIDLOCK_LOGGER_LEVEL", "warn")

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", conf.Logger.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "logger:\n  level: verbose\n"},
		{"zero queue", "enforcer:\n  queueSize: 0\n"},
		{"empty host package", "hostPackage: \"\"\n"},
		{"incomplete override", "categories:\n  overrides:\n    - package: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "dataDir: "+t.TempDir()+"\n"+tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/.kidlock")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".kidlock"), got)

	got, err = expandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
