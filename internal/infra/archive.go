package infra

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// ArchiveSource is the part of the store the archiver needs.
type ArchiveSource interface {
	Before(ctx context.Context, beforeMillis int64) ([]domain.UsageEvent, error)
	DeleteBefore(ctx context.Context, beforeMillis int64) (int, error)
}

// ArchiveResult describes one prune run.
type ArchiveResult struct {
	BeforeMillis int64
	Archived     int
	Deleted      int
	Path         string
}

// Archiver moves old usage events out of the store into zstd-compressed
// JSON-lines files. Events are only deleted after the archive is on disk.
type Archiver struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewArchiver creates an archiver writing into dir.
func NewArchiver(dir string) (*Archiver, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Archiver{dir: dir, encoder: encoder, decoder: decoder}, nil
}

// Archive writes every event older than before to a new archive file and
// then deletes them from src. Nothing is written when there is nothing old.
func (a *Archiver) Archive(ctx context.Context, src ArchiveSource, before time.Time) (*ArchiveResult, error) {
	cutoff := before.UnixMilli()
	result := &ArchiveResult{BeforeMillis: cutoff}

	events, err := src.Before(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to read old events: %w", err)
	}
	if len(events) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	compressed := a.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()/2))

	if err := os.MkdirAll(a.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	path := filepath.Join(a.dir, fmt.Sprintf("usage-%d-%d.jsonl.zst",
		events[0].TimestampMillis, events[len(events)-1].TimestampMillis))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0600); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	result.Archived = len(events)
	result.Path = path

	deleted, err := src.DeleteBefore(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("archived to %s but failed to delete: %w", path, err)
	}
	result.Deleted = deleted
	return result, nil
}

// ReadArchive decodes an archive file back into events.
func (a *Archiver) ReadArchive(path string) ([]domain.UsageEvent, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	raw, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive: %w", err)
	}

	var events []domain.UsageEvent
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 4096), maxFeedLine)
	for scanner.Scan() {
		var ev domain.UsageEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("corrupt archive line: %w", err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Close releases encoder and decoder resources.
func (a *Archiver) Close() error {
	a.decoder.Close()
	return a.encoder.Close()
}
