// Package quota counts provider requests per UTC calendar day
package quota

import (
	"sort"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// DefaultLimits are the daily request caps of the artwork providers.
// Providers not listed are unlimited.
var DefaultLimits = map[string]int{
	"tmdb": 1000,
	"omdb": 1000,
}

// Usage describes one provider's consumption for the current day
type Usage struct {
	Provider  string `json:"provider"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Limited   bool   `json:"limited"`
}

// Tracker holds per-provider per-day counters
type Tracker struct {
	mu     sync.Mutex
	counts map[string]map[string]int
	limits map[string]int
	now    func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLimit sets the daily limit for provider. Zero means unlimited.
func WithLimit(provider string, limit int) Option {
	return func(t *Tracker) {
		if limit <= 0 {
			delete(t.limits, provider)
			return
		}
		t.limits[provider] = limit
	}
}

// New creates a tracker using DefaultLimits
func New(opts ...Option) *Tracker {
	t := &Tracker{
		counts: make(map[string]map[string]int),
		limits: make(map[string]int, len(DefaultLimits)),
		now:    time.Now,
	}
	for p, l := range DefaultLimits {
		t.limits[p] = l
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) today() string {
	return t.now().UTC().Format(dateLayout)
}

// Increment records one request for provider
func (t *Tracker) Increment(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.today()
	days, ok := t.counts[provider]
	if !ok {
		days = make(map[string]int)
		t.counts[provider] = days
	}
	days[day]++
}

// Usage returns today's request count for provider
func (t *Tracker) Usage(provider string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[provider][t.today()]
}

// Remaining returns the requests left today. limited is false for
// providers without a cap.
func (t *Tracker) Remaining(provider string) (n int, limited bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(provider)
}

func (t *Tracker) remaining(provider string) (int, bool) {
	limit, ok := t.limits[provider]
	if !ok {
		return 0, false
	}
	return max(0, limit-t.counts[provider][t.today()]), true
}

// Exceeded reports whether provider has used up today's quota
func (t *Tracker) Exceeded(provider string) bool {
	n, limited := t.Remaining(provider)
	return limited && n <= 0
}

// Stats returns today's usage for every provider that has a limit or
// made a request, sorted by provider
func (t *Tracker) Stats() []Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]struct{})
	for p := range t.limits {
		seen[p] = struct{}{}
	}
	for p := range t.counts {
		seen[p] = struct{}{}
	}

	day := t.today()
	out := make([]Usage, 0, len(seen))
	for p := range seen {
		u := Usage{Provider: p, Used: t.counts[p][day]}
		u.Remaining, u.Limited = t.remaining(p)
		if u.Limited {
			u.Limit = t.limits[p]
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Cleanup drops counters older than keepDays days
func (t *Tracker) Cleanup(keepDays int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().UTC().AddDate(0, 0, -keepDays).Format(dateLayout)
	for p, days := range t.counts {
		for day := range days {
			if day < cutoff {
				delete(days, day)
			}
		}
		if len(days) == 0 {
			delete(t.counts, p)
		}
	}
}

// Snapshot returns a copy of all counters as provider -> date -> count
func (t *Tracker) Snapshot() map[string]map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]map[string]int, len(t.counts))
	for p, days := range t.counts {
		cp := make(map[string]int, len(days))
		for d, n := range days {
			cp[d] = n
		}
		out[p] = cp
	}
	return out
}

// Restore replaces all counters with data
func (t *Tracker) Restore(data map[string]map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts = make(map[string]map[string]int, len(data))
	for p, days := range data {
		cp := make(map[string]int, len(days))
		for d, n := range days {
			cp[d] = n
		}
		t.counts[p] = cp
	}
}
