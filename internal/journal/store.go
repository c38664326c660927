package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-speech/internal/config"
	_ "modernc.org/sqlite"
)

// Kind labels a journal entry.
type Kind string

const (
	KindSpoken Kind = "spoken"
	KindParam  Kind = "param"
	KindVoice  Kind = "voice"
	KindStop   Kind = "stop"
)

// Entry is one recorded speech event. Which fields carry data depends
// on Kind: Text for spoken entries, Param and Value for parameter
// changes, Voice for voice changes, Discarded for stops.
type Entry struct {
	ID        int64
	Kind      Kind
	Text      string
	Param     string
	Value     int
	Voice     string
	Discarded int
	CreatedAt time.Time
}

// Store keeps a SQLite-backed record of what the speech node did.
// With journaling disabled or retention set to ephemeral no database
// is opened and every write is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "journal"))
	if !cfg.Enabled || cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    text TEXT,
    param TEXT,
    value INTEGER,
    voice TEXT,
    discarded INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Persistent reports whether entries actually reach disk.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Append writes one entry.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if s.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries(kind, text, param, value, voice, discarded, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Text, e.Param, e.Value, e.Voice, e.Discarded, e.CreatedAt)
	return err
}

// Recent retrieves up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, text, param, value, voice, discarded, created_at
		 FROM entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var created string
		if err := rows.Scan(&e.ID, &kind, &e.Text, &e.Param, &e.Value, &e.Voice, &e.Discarded, &created); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies the configured retention: entries older than
// RetentionDays go first, then everything beyond the newest MaxEntries.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxEntries > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM entries WHERE id IN (
			SELECT id FROM entries ORDER BY id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// RecordSpoken, RecordParam, RecordVoice and RecordStop adapt the
// store to the worker's journal hook. Failures are logged rather than
// returned; the speech path never fails because the journal did.

func (s *Store) RecordSpoken(text string) {
	s.record(Entry{Kind: KindSpoken, Text: text})
}

func (s *Store) RecordParam(param string, value int) {
	s.record(Entry{Kind: KindParam, Param: param, Value: value})
}

func (s *Store) RecordVoice(voice string) {
	s.record(Entry{Kind: KindVoice, Voice: voice})
}

func (s *Store) RecordStop(discarded int) {
	s.record(Entry{Kind: KindStop, Discarded: discarded})
}

func (s *Store) record(e Entry) {
	if s.db == nil {
		return
	}
	if err := s.Append(context.Background(), e); err != nil {
		s.log.Warn("journal append failed",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()))
	}
}
