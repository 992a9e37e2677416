// Package gallery keeps saved canvas compositions in a SQLite database.
package gallery

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("gallery entry not found")
	ErrNotPNG   = errors.New("gallery image is not a PNG")
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const (
	maxAuthorLen = 64
	maxLabelLen  = 128
)

const schema = `
CREATE TABLE IF NOT EXISTS gallery (
	id         TEXT PRIMARY KEY,
	author     TEXT NOT NULL,
	label      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	size       INTEGER NOT NULL,
	png        BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gallery_created_at ON gallery(created_at);
`

// Entry is one saved image without its bytes.
type Entry struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// Store is a SQLite-backed gallery.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery database: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize gallery database: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) > n {
		s = string([]rune(s)[:n])
	}
	return s
}

// Save stores png with its author and label. Blank authors become "anon".
func (s *Store) Save(ctx context.Context, author, label string, png []byte) (Entry, error) {
	if !bytes.HasPrefix(png, pngSignature) {
		return Entry{}, ErrNotPNG
	}
	author = clip(author, maxAuthorLen)
	if author == "" {
		author = "anon"
	}

	e := Entry{
		ID:        uuid.NewString(),
		Author:    author,
		Label:     clip(label, maxLabelLen),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Size:      len(png),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gallery (id, author, label, created_at, size, png) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Author, e.Label, e.CreatedAt.UnixMilli(), e.Size, png)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to save gallery entry: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, author, label, created_at, size FROM gallery ORDER BY created_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Author, &e.Label, &created, &e.Size); err != nil {
			return nil, fmt.Errorf("failed to scan gallery entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gallery: %w", err)
	}
	return entries, nil
}

// Get returns an entry and its image bytes.
func (s *Store) Get(ctx context.Context, id string) (Entry, []byte, error) {
	var e Entry
	var created int64
	var png []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author, label, created_at, size, png FROM gallery WHERE id = ?`, id,
	).Scan(&e.ID, &e.Author, &e.Label, &created, &e.Size, &png)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, nil, fmt.Errorf("failed to get gallery entry: %w", err)
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, png, nil
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gallery`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count gallery: %w", err)
	}
	return n, nil
}
