// Package backup remembers an item's artwork before posterarr replaces it
// so the change can be undone.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/plex"
	"github.com/s0up4200/posterarr/snapshot"
)

const snapshotKind = "backups"

// ErrNoBackup is returned when an item has no stored backup
var ErrNoBackup = errors.New("no backup for item")

// Entry is the artwork an item had before its first change
type Entry struct {
	ItemID        string `json:"item_rating_key"`
	Title         string `json:"item_title"`
	MediaType     string `json:"media_type"`
	PosterURL     string `json:"poster_url,omitempty"`
	BackgroundURL string `json:"background_url,omitempty"`

	// Unix seconds, fractional
	Timestamp float64 `json:"timestamp"`
}

// Time returns when the backup was taken
func (e Entry) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store holds backups keyed by media server item id
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates an empty store
func New(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  logger.With().Str("component", "backup").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backup stores the item's current artwork. The first backup of an item is
// kept so a restore returns the artwork it had before posterarr touched it.
// It reports whether a new backup was taken.
func (s *Store) Backup(item art.MediaItem) bool {
	if item.ID == "" || (item.PosterURL == "" && item.BackgroundURL == "") {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[item.ID]; ok {
		return false
	}

	s.entries[item.ID] = Entry{
		ItemID:        item.ID,
		Title:         item.Title,
		MediaType:     string(item.Type),
		PosterURL:     item.PosterURL,
		BackgroundURL: item.BackgroundURL,
		Timestamp:     float64(s.now().UnixNano()) / float64(time.Second),
	}
	return true
}

// Get returns the backup for an item
func (s *Store) Get(itemID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[itemID]
	return e, ok
}

// List returns every backup, newest first
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		default:
			return strings.Compare(a.ItemID, b.ItemID)
		}
	})
	return out
}

// Remove deletes an item's backup and reports whether one existed
func (s *Store) Remove(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[itemID]; !ok {
		return false
	}
	delete(s.entries, itemID)
	return true
}

// Cleanup removes backups older than the given number of days
func (s *Store) Cleanup(days int) int {
	cutoff := float64(s.now().Add(-time.Duration(days)*24*time.Hour).UnixNano()) / float64(time.Second)

	s.mu.Lock()
	removed := 0
	for id, e := range s.entries {
		if e.Timestamp < cutoff {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Cleaned up old backups")
	}
	return removed
}

// Len returns the number of stored backups
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Restore uploads the backed up artwork for an item. The backup is kept
// until Remove is called.
func (s *Store) Restore(ctx context.Context, uploader plex.Uploader, itemID string) (Entry, error) {
	e, ok := s.Get(itemID)
	if !ok {
		return Entry{}, fmt.Errorf("%w %s", ErrNoBackup, itemID)
	}

	if e.PosterURL != "" {
		if err := uploader.UploadPoster(ctx, e.ItemID, e.PosterURL); err != nil {
			return e, fmt.Errorf("failed to restore poster for %q: %w", e.Title, err)
		}
		s.logger.Info().Str("title", e.Title).Msg("Restored poster")
	}

	if e.BackgroundURL != "" {
		if err := uploader.UploadBackground(ctx, e.ItemID, e.BackgroundURL); err != nil {
			return e, fmt.Errorf("failed to restore background for %q: %w", e.Title, err)
		}
		s.logger.Info().Str("title", e.Title).Msg("Restored background")
	}

	return e, nil
}

// Save writes the store to path
func (s *Store) Save(path string) error {
	s.mu.RLock()
	data := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		data[k] = v
	}
	s.mu.RUnlock()

	return snapshot.Write(path, snapshotKind, data)
}

// Load merges the backups saved at path. A missing file is not an error.
// Backups already in memory win.
func (s *Store) Load(path string) error {
	var data map[string]Entry
	if err := snapshot.Read(path, snapshotKind, &data); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load backups: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range data {
		if _, ok := s.entries[k]; ok {
			continue
		}
		if v.ItemID == "" {
			v.ItemID = k
		}
		s.entries[k] = v
	}
	return nil
}
