// Package cooldown tracks providers that have been suspended after
// rate limiting or authentication failures.
package cooldown

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Common reasons
const (
	ReasonRateLimited = "rate_limited"
	ReasonAuthFailed  = "auth_failed"
)

// Entry is one active cooldown
type Entry struct {
	Provider string    `json:"provider"`
	Until    time.Time `json:"until"`
	Reason   string    `json:"reason"`
}

// Status is the result of Check
type Status struct {
	OnCooldown bool
	Reason     string
	Remaining  time.Duration
	// Changed is true the first time a provider is seen entering or
	// leaving cooldown
	Changed bool
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry holds cooldowns keyed by provider name
type Registry struct {
	mu       sync.Mutex
	entries  map[string]Entry
	reported map[string]bool
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates an empty registry
func New(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]Entry),
		reported: make(map[string]bool),
		now:      time.Now,
		logger:   logger.With().Str("component", "cooldown").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Set puts provider on cooldown for d. An existing cooldown that already
// lasts at least as long is left untouched. It reports whether the
// cooldown was extended.
func (r *Registry) Set(provider string, d time.Duration, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	until := r.now().Add(d)
	if cur, ok := r.entries[provider]; ok && !cur.Until.Before(until) {
		return false
	}

	r.entries[provider] = Entry{Provider: provider, Until: until, Reason: reason}
	r.logger.Warn().
		Str("provider", provider).
		Str("reason", reason).
		Time("until", until).
		Dur("duration", d).
		Msg("Provider placed on cooldown")
	return true
}

// Check reports whether provider is on cooldown, dropping expired entries
func (r *Registry) Check(provider string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[provider]
	if ok && !now.Before(entry.Until) {
		delete(r.entries, provider)
		ok = false
	}

	if !ok {
		st := Status{Changed: r.reported[provider]}
		if st.Changed {
			delete(r.reported, provider)
			r.logger.Info().Str("provider", provider).Msg("Provider cooldown expired")
		}
		return st
	}

	st := Status{
		OnCooldown: true,
		Reason:     entry.Reason,
		Remaining:  entry.Until.Sub(now),
		Changed:    !r.reported[provider],
	}
	r.reported[provider] = true
	return st
}

// Clear removes a cooldown
func (r *Registry) Clear(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, provider)
}

// Active returns the unexpired cooldowns sorted by provider
func (r *Registry) Active() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if now.Before(e.Until) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Snapshot returns a copy of the unexpired entries for persistence
func (r *Registry) Snapshot() map[string]Entry {
	active := r.Active()
	out := make(map[string]Entry, len(active))
	for _, e := range active {
		out[e.Provider] = e
	}
	return out
}

// Restore merges persisted entries. Expired entries are ignored and an
// existing longer cooldown is kept.
func (r *Registry) Restore(entries map[string]Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for provider, e := range entries {
		if !now.Before(e.Until) {
			continue
		}
		if cur, ok := r.entries[provider]; ok && !cur.Until.Before(e.Until) {
			continue
		}
		e.Provider = provider
		r.entries[provider] = e
	}
}
