package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const storeDBName = "kidlock.db"

// Fixed identifiers of the singleton settings rows.
const (
	settingLockRule     = "lock_rule"
	settingChildProfile = "child_profile"
	settingTimeWindow   = "time_window"
	settingDailyLimit   = "daily_limit"
)

// Store implements domain.EventLog, domain.ConfigStore and domain.ConfigWriter
// on a SQLCipher encrypted SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewStore(dataDir string, key []byte) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// SQLite allows one writer; the collector is the only one.
	db.SetMaxOpenConns(1)

	// A wrong key only surfaces on the first real query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		package TEXT NOT NULL,
		kind TEXT NOT NULL,
		ts_millis INTEGER NOT NULL,
		UNIQUE (package, kind, ts_millis)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage_events(ts_millis);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- domain.EventLog implementation ---

// Append upserts events in one transaction. Rows already present are left
// alone, so re-collecting an overlapping window changes nothing.
func (s *Store) Append(ctx context.Context, events []domain.UsageEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO usage_events (package, kind, ts_millis) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		res, err := stmt.ExecContext(ctx, ev.PackageName, string(ev.Kind), ev.TimestampMillis)
		if err != nil {
			return 0, fmt.Errorf("failed to insert usage event for %s: %w", ev.PackageName, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit usage events: %w", err)
	}
	return inserted, nil
}

// Query returns events at or after sinceMillis, newest first. Events sharing
// a millisecond come back in reverse arrival order, so once reversed they
// fold in the order the host reported them.
func (s *Store) Query(ctx context.Context, sinceMillis int64) ([]domain.UsageEvent, error) {
	return s.queryEvents(ctx, `
		SELECT package, kind, ts_millis FROM usage_events
		WHERE ts_millis >= ?
		ORDER BY ts_millis DESC, seq DESC`, sinceMillis)
}

// Before returns events strictly older than beforeMillis, oldest first.
// Used by the retention archiver.
func (s *Store) Before(ctx context.Context, beforeMillis int64) ([]domain.UsageEvent, error) {
	return s.queryEvents(ctx, `
		SELECT package, kind, ts_millis FROM usage_events
		WHERE ts_millis < ?
		ORDER BY ts_millis ASC, seq ASC`, beforeMillis)
}

// DeleteBefore removes events strictly older than beforeMillis.
func (s *Store) DeleteBefore(ctx context.Context, beforeMillis int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage_events WHERE ts_millis < ?`, beforeMillis)
	if err != nil {
		return 0, fmt.Errorf("failed to delete usage events: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage events: %w", err)
	}
	return n, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, arg int64) ([]domain.UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage events: %w", err)
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var ev domain.UsageEvent
		var kind string
		if err := rows.Scan(&ev.PackageName, &kind, &ev.TimestampMillis); err != nil {
			return nil, fmt.Errorf("failed to scan usage event row: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage events: %w", err)
	}
	return events, nil
}

// --- domain.ConfigStore implementation ---

// LockRule returns the stored rule set or the allow-all default.
func (s *Store) LockRule(ctx context.Context) (domain.LockRule, error) {
	rule := domain.DefaultLockRule()
	err := s.getSetting(ctx, settingLockRule, &rule)
	return rule, err
}

// ChildProfile returns the stored profile or the default profile.
func (s *Store) ChildProfile(ctx context.Context) (domain.ChildProfile, error) {
	profile := domain.DefaultChildProfile()
	err := s.getSetting(ctx, settingChildProfile, &profile)
	return profile, err
}

// TimeWindow returns the stored window or the full day.
func (s *Store) TimeWindow(ctx context.Context) (domain.TimeWindow, error) {
	window := domain.DefaultTimeWindow()
	err := s.getSetting(ctx, settingTimeWindow, &window)
	return window, err
}

// DailyLimit returns the stored limit or the disabled limit.
func (s *Store) DailyLimit(ctx context.Context) (domain.DailyLimit, error) {
	limit := domain.DefaultDailyLimit()
	err := s.getSetting(ctx, settingDailyLimit, &limit)
	return limit, err
}

// getSetting decodes the row into dst. A missing row leaves dst untouched
// and is not an error.
func (s *Store) getSetting(ctx context.Context, key string, dst any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// --- domain.ConfigWriter implementation ---

func (s *Store) SetLockRule(ctx context.Context, rule domain.LockRule) error {
	return s.setSetting(ctx, settingLockRule, rule)
}

func (s *Store) SetChildProfile(ctx context.Context, profile domain.ChildProfile) error {
	return s.setSetting(ctx, settingChildProfile, profile)
}

func (s *Store) SetTimeWindow(ctx context.Context, window domain.TimeWindow) error {
	return s.setSetting(ctx, settingTimeWindow, window)
}

func (s *Store) SetDailyLimit(ctx context.Context, limit domain.DailyLimit) error {
	return s.setSetting(ctx, settingDailyLimit, limit)
}

func (s *Store) setSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Ensure Store implements the storage interfaces.
var (
	_ domain.EventLog     = (*Store)(nil)
	_ domain.ConfigStore  = (*Store)(nil)
	_ domain.ConfigWriter = (*Store)(nil)
)
