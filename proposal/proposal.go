// Package proposal queues artwork changes for manual approval.
package proposal

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/s0up4200/posterarr/snapshot"
)

const snapshotKind = "proposals"

// Proposal is a change found while approval mode is on
type Proposal struct {
	ID                   string    `json:"id"`
	ItemID               string    `json:"item_id"`
	Title                string    `json:"title"`
	MediaType            string    `json:"media_type,omitempty"`
	CurrentPosterURL     string    `json:"current_poster_url,omitempty"`
	NewPosterURL         string    `json:"new_poster_url,omitempty"`
	CurrentBackgroundURL string    `json:"current_background_url,omitempty"`
	NewBackgroundURL     string    `json:"new_background_url,omitempty"`
	Source               string    `json:"source,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Queue holds pending proposals in insertion order
type Queue struct {
	mu    sync.Mutex
	items []Proposal
	now   func() time.Time
}

// Option configures a Queue
type Option func(*Queue)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates an empty queue
func New(opts ...Option) *Queue {
	q := &Queue{now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add queues p and returns it with its id and creation time set. A pending
// proposal for the same item is replaced.
func (q *Queue) Add(p Proposal) Proposal {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, existing := range q.items {
		if existing.ItemID == p.ItemID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	q.items = append(q.items, p)
	return p
}

// List returns the pending proposals, oldest first
func (q *Queue) List() []Proposal {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Proposal, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending proposals
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take removes and returns the proposals with the given ids. With no ids
// every proposal is taken. Unknown ids are ignored.
func (q *Queue) Take(ids ...string) []Proposal {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) == 0 {
		out := q.items
		q.items = nil
		if out == nil {
			out = []Proposal{}
		}
		return out
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	taken := []Proposal{}
	kept := q.items[:0]
	for _, p := range q.items {
		if _, ok := want[p.ID]; ok {
			taken = append(taken, p)
			continue
		}
		kept = append(kept, p)
	}
	q.items = kept
	return taken
}

// Save writes the queue to path
func (q *Queue) Save(path string) error {
	return snapshot.Write(path, snapshotKind, q.List())
}

// Load appends the proposals saved at path. A missing file is not an error.
func (q *Queue) Load(path string) error {
	var items []Proposal
	if err := snapshot.Read(path, snapshotKind, &items); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load proposals: %w", err)
	}

	for _, p := range items {
		q.Add(p)
	}
	return nil
}
