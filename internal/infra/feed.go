package infra

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// maxFeedLine bounds a single JSON line in either feed.
const maxFeedLine = 64 * 1024

// FeedEventSource implements domain.EventSource over the usage feed: a
// JSON-lines file written by the host OS bridge, one domain.UsageEvent per
// line. A missing feed yields no events; an unreadable one is reported as
// domain.ErrAccessDenied.
type FeedEventSource struct {
	path   string
	logger *zap.Logger
}

// NewFeedEventSource creates an event source reading path.
func NewFeedEventSource(path string, logger *zap.Logger) *FeedEventSource {
	return &FeedEventSource{path: path, logger: logger}
}

// Collect returns tracked events with since <= ts <= until, in feed order.
func (s *FeedEventSource) Collect(ctx context.Context, since, until int64) ([]domain.UsageEvent, error) {
	f, err := os.Open(s.path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, nil
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("usage feed %s: %w", s.path, domain.ErrAccessDenied)
		}
		return nil, fmt.Errorf("failed to open usage feed: %w", err)
	}
	defer f.Close()

	var events []domain.UsageEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxFeedLine)
	line := 0
	for scanner.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev domain.UsageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Debug("skipping malformed usage line",
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		if !ev.Kind.Tracked() || ev.PackageName == "" {
			continue
		}
		if ev.TimestampMillis < since || ev.TimestampMillis > until {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage feed: %w", err)
	}
	return events, nil
}

// foregroundLine is one record of the foreground feed.
type foregroundLine struct {
	PackageName     string `json:"package"`
	TimestampMillis int64  `json:"ts"`
}

// FeedForegroundNotifier implements domain.ForegroundNotifier by tailing the
// foreground feed. Only lines appended after Run starts are delivered. A
// truncated or recreated feed is read again from the start.
type FeedForegroundNotifier struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	handler domain.ForegroundHandler
	offset  int64
	partial []byte
}

// NewFeedForegroundNotifier creates a notifier tailing path.
func NewFeedForegroundNotifier(path string, logger *zap.Logger) *FeedForegroundNotifier {
	return &FeedForegroundNotifier{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Register sets the handler, replacing any earlier one. It is called
// synchronously from Run and must not block.
func (n *FeedForegroundNotifier) Register(h domain.ForegroundHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

// Run watches the feed until ctx is cancelled.
func (n *FeedForegroundNotifier) Run(ctx context.Context) error {
	dir := filepath.Dir(n.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create feed directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation and rotation of the file are seen.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if info, err := os.Stat(n.path); err == nil {
		n.offset = info.Size()
	}

	n.logger.Info("watching foreground feed", zap.String("path", n.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(n.path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				n.offset = 0
				n.partial = nil
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				if err := n.drain(); err != nil {
					n.logger.Warn("failed to read foreground feed", zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			n.logger.Warn("feed watcher error", zap.Error(err))
		}
	}
}

// drain reads everything appended since the last offset and dispatches
// complete lines.
func (n *FeedForegroundNotifier) drain() error {
	f, err := os.Open(n.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < n.offset {
		n.offset = 0
		n.partial = nil
	}
	if _, err := f.Seek(n.offset, io.SeekStart); err != nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(f, info.Size()-n.offset))
	if err != nil {
		return err
	}
	n.offset += int64(len(data))

	buf := append(n.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		n.dispatch(buf[:i])
		buf = buf[i+1:]
	}
	if len(buf) > maxFeedLine {
		buf = nil
	}
	n.partial = append([]byte(nil), buf...)
	return nil
}

func (n *FeedForegroundNotifier) dispatch(raw []byte) {
	if len(raw) == 0 {
		return
	}
	var rec foregroundLine
	if err := json.Unmarshal(raw, &rec); err != nil || rec.PackageName == "" {
		n.logger.Debug("skipping malformed foreground line", zap.ByteString("line", raw))
		return
	}

	at := n.now()
	if rec.TimestampMillis > 0 {
		at = time.UnixMilli(rec.TimestampMillis)
	}
	change := domain.ForegroundChange{PackageName: rec.PackageName, At: at}

	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()
	if h != nil {
		h(change)
	}
}

// Ensure feed adapters implement the domain interfaces.
var (
	_ domain.EventSource        = (*FeedEventSource)(nil)
	_ domain.ForegroundNotifier = (*FeedForegroundNotifier)(nil)
)
