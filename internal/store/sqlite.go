package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one row of download history, keyed by the download id handed
// back to the submitting client.
type Record struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Quality      string    `json:"quality"`
	AudioOnly    bool      `json:"audio_only"`
	Status       string    `json:"status"`
	Percent      float64   `json:"percent"`
	Filename     string    `json:"filename,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store wraps an sql.DB and provides typed helpers for download history.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and ensures
// schema.
func Open(path string) (*Store, error) {
	// Pragmas: busy timeout and WAL for better concurrency.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Conservative limits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS downloads (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    quality TEXT,
    audio_only INTEGER NOT NULL DEFAULT 0,
    status TEXT,
    percent REAL NOT NULL DEFAULT 0,
    filename TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
CREATE INDEX IF NOT EXISTS idx_downloads_created_at ON downloads(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// CreateDownload inserts a new history row for an accepted submission.
func (s *Store) CreateDownload(ctx context.Context, id, url, quality string, audioOnly bool) error {
	audio := 0
	if audioOnly {
		audio = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO downloads (id, url, quality, audio_only, status, percent)
VALUES (?, ?, ?, ?, 'starting', 0)
ON CONFLICT(id) DO NOTHING`, id, url, quality, audio)
	return err
}

// UpdateProgress merges the latest progress snapshot into a history row.
func (s *Store) UpdateProgress(ctx context.Context, id, status string, percent float64, filename, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE downloads
SET status = ?, percent = ?,
    filename = CASE WHEN ? != '' THEN ? ELSE filename END,
    error_message = CASE WHEN ? != '' THEN ? ELSE error_message END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, status, percent, filename, filename, errMsg, errMsg, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDownload returns the history row for id.
func (s *Store) GetDownload(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, url, quality, audio_only, status, percent,
       COALESCE(filename, ''), COALESCE(error_message, ''),
       created_at, updated_at
FROM downloads WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFilter narrows and orders history listings.
type ListFilter struct {
	Status string // starting|downloading|finished|error; empty for all
	Sort   string // created_at|percent|status; default created_at
	Order  string // asc|desc; default desc
	Limit  int    // default 100
}

// ListDownloads returns history rows matching the filter.
func (s *Store) ListDownloads(ctx context.Context, f ListFilter) ([]Record, error) {
	sortCol := "created_at"
	switch f.Sort {
	case "percent", "status":
		sortCol = f.Sort
	}
	order := "DESC"
	if f.Order == "asc" {
		order = "ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := `
SELECT id, url, quality, audio_only, status, percent,
       COALESCE(filename, ''), COALESCE(error_message, ''),
       created_at, updated_at
FROM downloads`
	args := []any{}
	if f.Status != "" {
		q += " WHERE status = ?"
		args = append(args, f.Status)
	}
	q += fmt.Sprintf(" ORDER BY %s %s LIMIT ?", sortCol, order)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var audio int
	if err := row.Scan(&rec.ID, &rec.URL, &rec.Quality, &audio, &rec.Status,
		&rec.Percent, &rec.Filename, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.AudioOnly = audio != 0
	return &rec, nil
}
