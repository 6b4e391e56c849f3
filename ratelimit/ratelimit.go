// Package ratelimit paces outbound requests per remote host.
//
// Every host gets its own token bucket with a burst of one, so consecutive
// requests to the same host are spaced at least 1/rps apart no matter how
// many goroutines share the limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRates holds the request rates (per second) of the artwork providers
var DefaultRates = map[string]float64{
	"api.themoviedb.org":   2,
	"webservice.fanart.tv": 1,
	"www.omdbapi.com":      3,
	"api.thetvdb.com":      1,
	"api4.thetvdb.com":     1,
}

// Limiter grants slots at a fixed rate
type Limiter struct {
	mu  sync.Mutex
	lim *rate.Limiter
	rps float64
	now func() time.Time
}

// NewLimiter creates a limiter allowing rps requests per second.
// A non-positive rate disables pacing.
func NewLimiter(rps float64) *Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limiter{
		lim: rate.NewLimiter(limit, 1),
		rps: rps,
		now: time.Now,
	}
}

// Rate returns the configured requests per second
func (l *Limiter) Rate() float64 {
	return l.rps
}

// Wait blocks until the caller's slot and returns the slot time.
// Slots are handed out in call order and never closer than 1/rps.
func (l *Limiter) Wait(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	// Reading the clock and reserving under one lock keeps slot times monotonic
	l.mu.Lock()
	now := l.now()
	r := l.lim.ReserveN(now, 1)
	l.mu.Unlock()

	if !r.OK() {
		return time.Time{}, fmt.Errorf("rate limiter cannot grant a slot")
	}

	delay := r.DelayFrom(now)
	slot := now.Add(delay)
	if delay <= 0 {
		return slot, nil
	}

	if deadline, ok := ctx.Deadline(); ok && deadline.Before(slot) {
		r.CancelAt(now)
		return time.Time{}, context.DeadlineExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return slot, nil
	case <-ctx.Done():
		r.Cancel()
		return time.Time{}, ctx.Err()
	}
}

// Registry maps hosts to limiters
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates a registry populated with the given host rates
func NewRegistry(rates map[string]float64) *Registry {
	r := &Registry{limiters: make(map[string]*Limiter, len(rates))}
	for host, rps := range rates {
		r.limiters[host] = NewLimiter(rps)
	}
	return r
}

// Set replaces the limiter for host
func (r *Registry) Set(host string, rps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[host] = NewLimiter(rps)
}

// Get returns the limiter for host, if any
func (r *Registry) Get(host string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[host]
	return l, ok
}

// Wait paces a request to host. Unknown hosts are not limited.
func (r *Registry) Wait(ctx context.Context, host string) error {
	l, ok := r.Get(host)
	if !ok {
		return nil
	}
	_, err := l.Wait(ctx)
	return err
}

// Hosts returns the registered hosts, sorted
func (r *Registry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hosts := make([]string, 0, len(r.limiters))
	for h := range r.limiters {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
