// Package history keeps an audit log of artwork changes in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Change is one applied (or dry-run) artwork change
type Change struct {
	ID                int64     `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	ItemTitle         string    `json:"item_title"`
	ItemID            string    `json:"item_id"`
	MediaType         string    `json:"media_type"`
	PosterChanged     bool      `json:"poster_changed"`
	BackgroundChanged bool      `json:"background_changed"`
	Source            string    `json:"source"`
	DryRun            bool      `json:"dry_run"`
	OldPosterURL      string    `json:"old_poster_url,omitempty"`
	NewPosterURL      string    `json:"new_poster_url,omitempty"`
	OldBackgroundURL  string    `json:"old_background_url,omitempty"`
	NewBackgroundURL  string    `json:"new_background_url,omitempty"`
}

// Stats summarises applied changes. Dry runs are excluded.
type Stats struct {
	TotalChanges       int            `json:"total_changes"`
	PostersChanged     int            `json:"posters_changed"`
	BackgroundsChanged int            `json:"backgrounds_changed"`
	UniqueItems        int            `json:"unique_items"`
	BySource           map[string]int `json:"by_source"`
}

// Option configures a Log
type Option func(*Log)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Log is the SQLite backed change history
type Log struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the history database at path
func Open(path string, logger zerolog.Logger, opts ...Option) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer at a time
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	l := &Log{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends a change. A zero Timestamp is set to now.
func (l *Log) Record(ctx context.Context, c Change) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = l.now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO changes (
			timestamp, item_title, item_id, media_type,
			poster_changed, background_changed, source, dry_run,
			old_poster_url, new_poster_url, old_background_url, new_background_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Timestamp.UnixNano(), c.ItemTitle, c.ItemID, c.MediaType,
		c.PosterChanged, c.BackgroundChanged, c.Source, c.DryRun,
		c.OldPosterURL, c.NewPosterURL, c.OldBackgroundURL, c.NewBackgroundURL,
	)
	if err != nil {
		return fmt.Errorf("record change for %q: %w", c.ItemTitle, err)
	}
	return nil
}

const selectColumns = `SELECT id, timestamp, item_title, item_id, media_type,
	poster_changed, background_changed, source, dry_run,
	old_poster_url, new_poster_url, old_background_url, new_background_url
	FROM changes`

// Recent returns up to limit changes, newest first
func (l *Log) Recent(ctx context.Context, limit int, skipDryRun bool) ([]Change, error) {
	query := selectColumns
	if skipDryRun {
		query += ` WHERE dry_run = 0`
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`

	return l.query(ctx, query, limit)
}

// ByItem returns every change recorded for a media server item id
func (l *Log) ByItem(ctx context.Context, itemID string) ([]Change, error) {
	return l.query(ctx, selectColumns+` WHERE item_id = ? ORDER BY timestamp DESC, id DESC`, itemID)
}

// Between returns changes recorded in [start, end]
func (l *Log) Between(ctx context.Context, start, end time.Time) ([]Change, error) {
	return l.query(ctx, selectColumns+` WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp DESC, id DESC`,
		start.UnixNano(), end.UnixNano())
}

// Stats summarises non dry-run changes
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(poster_changed), 0),
			COALESCE(SUM(background_changed), 0),
			COUNT(DISTINCT item_id)
		FROM changes WHERE dry_run = 0`,
	).Scan(&s.TotalChanges, &s.PostersChanged, &s.BackgroundsChanged, &s.UniqueItems)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(source, ''), 'unknown'), COUNT(*)
		FROM changes WHERE dry_run = 0
		GROUP BY 1`)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats by source: %w", err)
	}
	defer rows.Close()

	s.BySource = make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats by source: %w", err)
		}
		s.BySource[source] = count
	}
	return s, rows.Err()
}

// Cleanup deletes changes older than the given number of days and returns
// how many were removed
func (l *Log) Cleanup(ctx context.Context, days int) (int64, error) {
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour)

	res, err := l.db.ExecContext(ctx, `DELETE FROM changes WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup history: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info().Int64("removed", n).Int("days", days).Msg("Pruned change history")
	}
	return n, nil
}

func (l *Log) query(ctx context.Context, query string, args ...any) ([]Change, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c                                  Change
			ts                                 int64
			itemID, mediaType, source          sql.NullString
			oldPoster, newPoster, oldBg, newBg sql.NullString
		)
		if err := rows.Scan(&c.ID, &ts, &c.ItemTitle, &itemID, &mediaType,
			&c.PosterChanged, &c.BackgroundChanged, &source, &c.DryRun,
			&oldPoster, &newPoster, &oldBg, &newBg); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Timestamp = time.Unix(0, ts).UTC()
		c.ItemID = itemID.String
		c.MediaType = mediaType.String
		c.Source = source.String
		c.OldPosterURL = oldPoster.String
		c.NewPosterURL = newPoster.String
		c.OldBackgroundURL = oldBg.String
		c.NewBackgroundURL = newBg.String
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
