package provider

import (
	"context"
	"errors"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/cache"
	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/fetch"
	"github.com/s0up4200/posterarr/metrics"
	"github.com/s0up4200/posterarr/quota"
)

// base carries the behaviour shared by every adapter
type base struct {
	name      string
	apiKey    string
	fetcher   *fetch.Fetcher
	cache     *cache.Cache
	cooldowns *cooldown.Registry
	quota     *quota.Tracker
	logger    zerolog.Logger
	group     *singleflight.Group
}

func newBase(name, apiKey string, deps Deps, hosts ...string) base {
	for _, h := range hosts {
		if u, err := url.Parse(h); err == nil && u.Hostname() != "" && deps.Fetcher != nil {
			deps.Fetcher.RegisterHost(u.Hostname(), name)
		}
	}
	return base{
		name:      name,
		apiKey:    apiKey,
		fetcher:   deps.Fetcher,
		cache:     deps.Cache,
		cooldowns: deps.Cooldowns,
		quota:     deps.Quota,
		logger:    deps.Logger.With().Str("provider", name).Logger(),
		group:     &singleflight.Group{},
	}
}

// Name returns the provider name
func (b *base) Name() string {
	return b.name
}

// available reports whether the provider may be queried at all
func (b *base) available() bool {
	if b.apiKey == "" {
		return false
	}
	if b.cooldowns != nil {
		st := b.cooldowns.Check(b.name)
		if st.OnCooldown {
			if st.Changed {
				b.logger.Info().
					Str("reason", st.Reason).
					Dur("remaining", st.Remaining).
					Msg("Skipping provider while on cooldown")
			}
			return false
		}
	}
	return true
}

// resolve serves (ns, key) from the cache or runs query, caching its result.
// Concurrent lookups of the same key share one query.
func (b *base) resolve(ctx context.Context, ns, key string, query func(context.Context) (art.Result, error)) (art.Result, error) {
	if b.cache != nil {
		if res, ok := b.cache.Get(ns, key); ok {
			metrics.RecordCacheLookup(ns, true)
			b.logger.Debug().Str("namespace", ns).Str("key", key).Msg("Cache hit")
			return res, nil
		}
		metrics.RecordCacheLookup(ns, false)
	}

	if b.quota != nil && b.quota.Exceeded(b.name) {
		b.logger.Debug().Msg("Daily quota exhausted, skipping provider")
		return art.Result{}, nil
	}

	v, err, shared := b.group.Do(ns+"/"+key, func() (any, error) {
		res, err := query(ctx)
		if errors.Is(err, fetch.ErrNotFound) {
			res, err = art.Result{}, nil
		}
		if err != nil {
			return art.Result{}, err
		}
		res.Source = b.name
		res.PosterSource, res.BackgroundSource = "", ""
		if b.cache != nil {
			b.cache.Set(ns, key, res)
		}
		return res, nil
	})
	if err != nil {
		b.logger.Debug().Err(err).Str("namespace", ns).Str("key", key).Msg("Provider lookup failed")
		return art.Result{}, err
	}
	if shared {
		b.logger.Trace().Str("namespace", ns).Str("key", key).Msg("Shared in-flight lookup")
	}
	return v.(art.Result), nil
}
