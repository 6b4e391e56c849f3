// Package resolver drives the artwork providers for one item and merges
// their answers into a single decision.
package resolver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/provider"
)

// Options controls which artwork is wanted and how wide it must be
type Options struct {
	IncludeBackgrounds bool
	Overwrite          bool
	MinPosterWidth     int
	MinBackgroundWidth int
}

// Resolver holds no state of its own beyond configuration
type Resolver struct {
	providers []provider.Provider
	opts      Options
	logger    zerolog.Logger
}

// New creates a resolver querying providers in the given order
func New(providers []provider.Provider, opts Options, logger zerolog.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		opts:      opts,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Options returns the resolver configuration
func (r *Resolver) Options() Options {
	return r.opts
}

// Skip reports whether item already has all the artwork it needs
func (r *Resolver) Skip(item art.MediaItem) bool {
	if r.opts.Overwrite || !item.HasPoster {
		return false
	}
	return !r.opts.IncludeBackgrounds || item.HasBackground
}

// Resolve queries providers in priority order until the wanted artwork is
// found. Each field keeps the first non-empty value; PosterSource and
// BackgroundSource name the provider that supplied it and Source is the
// last provider whose value was kept. Provider errors count as empty
// answers.
func (r *Resolver) Resolve(ctx context.Context, item art.MediaItem, ids art.ExternalIDs) art.Result {
	var result art.Result
	lookup := provider.Lookup{
		Item:               item,
		IDs:                ids,
		MinPosterWidth:     r.opts.MinPosterWidth,
		MinBackgroundWidth: r.opts.MinBackgroundWidth,
	}

	for _, p := range r.providers {
		if r.done(result) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		r.logger.Debug().Str("provider", p.Name()).Str("title", item.Title).Msg("Checking provider")

		res, err := p.GetArt(ctx, lookup)
		if err != nil {
			r.logger.Warn().Err(err).Str("provider", p.Name()).Str("title", item.Title).Msg("Provider lookup failed")
			continue
		}

		result = r.merge(result, res, p.Name())
	}

	return result
}

func (r *Resolver) done(res art.Result) bool {
	return res.PosterURL != "" && (!r.opts.IncludeBackgrounds || res.BackgroundURL != "")
}

// merge fills empty fields of acc from res
func (r *Resolver) merge(acc, res art.Result, name string) art.Result {
	if acc.PosterURL == "" && res.PosterURL != "" {
		acc.PosterURL = res.PosterURL
		acc.PosterSource = name
		acc.Source = name
	}
	if r.opts.IncludeBackgrounds && acc.BackgroundURL == "" && res.BackgroundURL != "" {
		acc.BackgroundURL = res.BackgroundURL
		acc.BackgroundSource = name
		acc.Source = name
	}
	return acc
}
