// Package provider implements the artwork sources queried for each item.
//
// Every adapter follows the same contract: it returns an empty result when
// it has no API key, is on cooldown or the item lacks the ids it needs;
// otherwise it consults the response cache, queries the provider through
// the shared fetcher on a miss and writes the result (empty or not) back to
// the cache. Failed lookups are returned as errors and never cached.
package provider

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/cache"
	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/fetch"
	"github.com/s0up4200/posterarr/quota"
)

// Provider names
const (
	NameTMDb   = "tmdb"
	NameFanart = "fanart"
	NameOMDb   = "omdb"
	NameTVDb   = "tvdb"
)

// DefaultPriority is the provider order used when none is configured
var DefaultPriority = []string{NameTMDb, NameFanart, NameOMDb}

// Lookup describes one artwork request
type Lookup struct {
	Item               art.MediaItem
	IDs                art.ExternalIDs
	MinPosterWidth     int
	MinBackgroundWidth int
}

// Provider is an artwork source
type Provider interface {
	Name() string
	GetArt(ctx context.Context, l Lookup) (art.Result, error)
}

// Checker is implemented by providers that can validate their credentials
type Checker interface {
	Check(ctx context.Context) (string, error)
}

// Deps are the shared stores every adapter uses
type Deps struct {
	Fetcher   *fetch.Fetcher
	Cache     *cache.Cache
	Cooldowns *cooldown.Registry
	Quota     *quota.Tracker
	Logger    zerolog.Logger
}

type options struct {
	baseURL  string
	imageURL string
	loginURL string
	language string
	pin      string
	userKey  string
	username string
}

// Option configures an adapter
type Option func(*options)

// WithBaseURL overrides the API endpoint
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithImageBaseURL overrides the prefix joined with image paths
func WithImageBaseURL(u string) Option {
	return func(o *options) {
		o.imageURL = u
	}
}

// WithLoginURL overrides the secondary login endpoint used for credential checks
func WithLoginURL(u string) Option {
	return func(o *options) {
		o.loginURL = u
	}
}

// WithLanguage sets the preferred artwork language
func WithLanguage(lang string) Option {
	return func(o *options) {
		o.language = lang
	}
}

// WithPIN sets a subscriber PIN for providers that use one
func WithPIN(pin string) Option {
	return func(o *options) {
		o.pin = pin
	}
}

// WithAccount sets the user key and username sent with legacy v3 logins
func WithAccount(userKey, username string) Option {
	return func(o *options) {
		o.userKey = userKey
		o.username = username
	}
}

func buildOptions(defaults options, opts []Option) options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}
