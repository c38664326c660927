package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-speech/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenDisabled(t *testing.T) {
	cfg := config.JournalConfig{Enabled: false, RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if s.Persistent() {
		t.Fatalf("disabled journal reports persistence")
	}
	s.RecordSpoken("dropped")
	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("disabled journal returned %d entries", len(entries))
	}
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{Enabled: true, RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if s.Persistent() {
		t.Fatalf("ephemeral journal reports persistence")
	}
}

func TestRecordAndRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Enabled:       true,
		Path:          filepath.Join(tmp, "journal.db"),
		RetentionMode: "persistent",
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.RecordSpoken("hello there")
	s.RecordParam("rate", 7)
	s.RecordVoice("en-GB")
	s.RecordStop(3)

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	// Newest first.
	if entries[0].Kind != KindStop || entries[0].Discarded != 3 {
		t.Fatalf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].Kind != KindVoice || entries[1].Voice != "en-GB" {
		t.Fatalf("unexpected voice entry: %+v", entries[1])
	}
	if entries[2].Kind != KindParam || entries[2].Param != "rate" || entries[2].Value != 7 {
		t.Fatalf("unexpected param entry: %+v", entries[2])
	}
	if entries[3].Kind != KindSpoken || entries[3].Text != "hello there" {
		t.Fatalf("unexpected spoken entry: %+v", entries[3])
	}
}

func TestPruneByMaxEntries(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Enabled:       true,
		Path:          filepath.Join(tmp, "journal.db"),
		RetentionMode: "persistent",
		MaxEntries:    2,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, text := range []string{"one", "two", "three", "four"} {
		s.RecordSpoken(text)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after prune, got %d", len(entries))
	}
	if entries[0].Text != "four" || entries[1].Text != "three" {
		t.Fatalf("prune kept the wrong entries: %+v", entries)
	}
}

func TestPruneByAge(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Enabled:       true,
		Path:          filepath.Join(tmp, "journal.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	s.RecordSpoken("old entry")

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	s.RecordSpoken("new entry")
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after prune, got %d", len(entries))
	}
	if entries[0].Text != "new entry" {
		t.Fatalf("prune kept the wrong entry: %+v", entries[0])
	}
}
