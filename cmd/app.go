package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/s0up4200/posterarr/arr"
	"github.com/s0up4200/posterarr/backup"
	"github.com/s0up4200/posterarr/cache"
	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/fetch"
	"github.com/s0up4200/posterarr/filter"
	"github.com/s0up4200/posterarr/history"
	"github.com/s0up4200/posterarr/plex"
	"github.com/s0up4200/posterarr/processor"
	"github.com/s0up4200/posterarr/proposal"
	"github.com/s0up4200/posterarr/provider"
	"github.com/s0up4200/posterarr/quota"
	"github.com/s0up4200/posterarr/ratelimit"
	"github.com/s0up4200/posterarr/resolver"
	"github.com/s0up4200/posterarr/state"
	"github.com/s0up4200/posterarr/webhook"
)

const historyFile = "history.db"

// providerHosts lists the API hosts each provider talks to
var providerHosts = map[string][]string{
	provider.NameTMDb:   {"api.themoviedb.org"},
	provider.NameFanart: {"webservice.fanart.tv"},
	provider.NameOMDb:   {"www.omdbapi.com"},
	provider.NameTVDb:   {"api.thetvdb.com", "api4.thetvdb.com"},
}

// engine holds every component a run needs
type engine struct {
	state     *state.State
	providers *provider.Registry
	plex      plex.Server
	history   *history.Log
	processor *processor.Processor
}

// filterSelection is the --filter / --preset pair of the invoking command
type filterSelection struct {
	expression string
	preset     string
}

// loadState creates the persistent stores and restores their checkpoints
func loadState() (*state.State, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	st := state.New(state.DefaultPaths(cfg.Storage.DataDir), logger)
	st.Cache = cache.New(cache.WithNegativeTTL(cfg.Cache.NegativeTTL))
	st.Cooldowns = cooldown.New(logger)
	st.Quota = quota.New(
		quota.WithLimit(provider.NameTMDb, cfg.Providers.TMDb.DailyLimit),
		quota.WithLimit(provider.NameFanart, cfg.Providers.Fanart.DailyLimit),
		quota.WithLimit(provider.NameOMDb, cfg.Providers.OMDb.DailyLimit),
		quota.WithLimit(provider.NameTVDb, cfg.Providers.TVDb.DailyLimit),
	)
	st.Backups = backup.New(logger)
	st.Proposals = proposal.New()

	// unreadable checkpoints are logged by Load and left on disk
	if err := st.Load(); err != nil {
		logger.Warn().
			Strs("paths", st.Held()).
			Msg("Fix or remove these checkpoint files, they are not overwritten until then")
	}

	return st, nil
}

func openHistory() (*history.Log, error) {
	return history.Open(filepath.Join(cfg.Storage.DataDir, historyFile), logger)
}

// newRateLimits applies per-provider overrides to the default host rates
func newRateLimits() *ratelimit.Registry {
	rates := maps.Clone(ratelimit.DefaultRates)
	overrides := map[string]float64{
		provider.NameTMDb:   cfg.Providers.TMDb.RateLimit,
		provider.NameFanart: cfg.Providers.Fanart.RateLimit,
		provider.NameOMDb:   cfg.Providers.OMDb.RateLimit,
		provider.NameTVDb:   cfg.Providers.TVDb.RateLimit,
	}
	for name, rps := range overrides {
		if rps <= 0 {
			continue
		}
		for _, host := range providerHosts[name] {
			rates[host] = rps
		}
	}
	return ratelimit.NewRegistry(rates)
}

// newProviders builds every adapter on one shared fetcher
func newProviders(st *state.State) (*provider.Registry, error) {
	fetcher := fetch.New(newRateLimits(), st.Cooldowns, st.Quota, logger,
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		fetch.WithMaxBackoff(cfg.Fetch.MaxBackoff),
		fetch.WithCooldowns(cfg.Fetch.RateLimitCooldown, cfg.Fetch.AuthCooldown),
		fetch.WithUserAgent(cfg.Fetch.UserAgent+"/"+version),
	)

	deps := provider.Deps{
		Fetcher:   fetcher,
		Cache:     st.Cache,
		Cooldowns: st.Cooldowns,
		Quota:     st.Quota,
		Logger:    logger,
	}

	var tmdbOpts []provider.Option
	if lang := cfg.Providers.TMDb.Language; lang != "" {
		tmdbOpts = append(tmdbOpts, provider.WithLanguage(lang))
	}

	return provider.NewRegistry(
		provider.NewTMDb(cfg.Providers.TMDb.APIKey, deps, tmdbOpts...),
		provider.NewFanart(cfg.Providers.Fanart.APIKey, deps),
		provider.NewOMDb(cfg.Providers.OMDb.APIKey, deps),
		provider.NewTVDb(cfg.Providers.TVDb.APIKey, deps,
			provider.WithPIN(cfg.Providers.TVDb.PIN),
			provider.WithAccount(cfg.Providers.TVDb.UserKey, cfg.Providers.TVDb.Username)),
	)
}

func newPlex() (plex.Server, error) {
	var opts []plex.ClientOption
	if cfg.Plex.Timeout > 0 {
		opts = append(opts, plex.WithTimeout(cfg.Plex.Timeout))
	}

	client, err := plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Plex client: %w", err)
	}

	settings := plex.DefaultBreakerSettings
	settings.ConsecutiveFailures = cfg.Plex.Breaker.ConsecutiveFailures
	if cfg.Plex.Breaker.Timeout > 0 {
		settings.Timeout = cfg.Plex.Breaker.Timeout
	}
	return plex.NewBreaker(client, settings, logger), nil
}

// newIndex connects to the configured starr apps. An app that cannot be
// reached is skipped; nil means no enrichment.
func newIndex() *arr.Index {
	var radarrAPI arr.RadarrAPI
	var sonarrAPI arr.SonarrAPI

	if cfg.Arr.Radarr.Enabled() {
		client, err := arr.NewRadarr(cfg.Arr.Radarr.URL, cfg.Arr.Radarr.APIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Continuing without Radarr id enrichment")
		} else {
			radarrAPI = client
		}
	}
	if cfg.Arr.Sonarr.Enabled() {
		client, err := arr.NewSonarr(cfg.Arr.Sonarr.URL, cfg.Arr.Sonarr.APIKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Continuing without Sonarr id enrichment")
		} else {
			sonarrAPI = client
		}
	}

	if radarrAPI == nil && sonarrAPI == nil {
		return nil
	}
	return arr.NewIndex(radarrAPI, sonarrAPI, logger)
}

// resolveFilter picks the item filter: flag expression, then flag preset,
// then the configured expression
func resolveFilter(sel filterSelection) (filter.Filter, error) {
	manager := filter.NewManager()
	if err := manager.RegisterFilters(cfg.Filter.Presets); err != nil {
		return nil, fmt.Errorf("invalid filter preset: %w", err)
	}

	expression := sel.expression
	if expression == "" && sel.preset == "" {
		expression = cfg.Filter.Expression
	}

	f, err := manager.Resolve(expression, sel.preset)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	if e := f.Expression(); e != "" {
		logger.Info().Str("filter", e).Msg("Filtering items")
	}
	return f, nil
}

// newEngine wires the full pipeline
func newEngine(sel filterSelection) (*engine, error) {
	st, err := loadState()
	if err != nil {
		return nil, err
	}

	registry, err := newProviders(st)
	if err != nil {
		return nil, err
	}
	ordered, err := registry.Ordered(cfg.Providers.Priority)
	if err != nil {
		return nil, err
	}

	res := resolver.New(ordered, resolver.Options{
		IncludeBackgrounds: cfg.Artwork.IncludeBackgrounds,
		Overwrite:          cfg.Artwork.Overwrite,
		MinPosterWidth:     cfg.Artwork.MinPosterWidth,
		MinBackgroundWidth: cfg.Artwork.MinBackgroundWidth,
	}, logger)

	server, err := newPlex()
	if err != nil {
		return nil, err
	}

	itemFilter, err := resolveFilter(sel)
	if err != nil {
		return nil, err
	}

	hist, err := openHistory()
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	if cfg.Processing.DryRun && cfg.Processing.Approval {
		logger.Warn().Msg("Dry run is enabled, approval mode will not queue proposals")
	}

	opts := []processor.Option{
		processor.WithFilter(itemFilter),
		processor.WithHistory(hist),
		processor.WithState(st),
		processor.WithNotifier(webhook.New(cfg.Webhook.URL, logger)),
	}
	if index := newIndex(); index != nil {
		opts = append(opts, processor.WithIndex(index))
	}

	proc := processor.New(server, res, processor.Config{
		DryRun:          cfg.Processing.DryRun,
		Approval:        cfg.Processing.Approval,
		Backup:          cfg.Processing.Backup,
		CheckpointEvery: cfg.Processing.CheckpointEvery,
	}, logger, opts...)

	return &engine{
		state:     st,
		providers: registry,
		plex:      server,
		history:   hist,
		processor: proc,
	}, nil
}

// cleanup applies the retention settings
func (e *engine) cleanup(ctx context.Context) {
	e.state.Quota.Cleanup(cfg.Storage.QuotaRetentionDays)
	if days := cfg.Storage.BackupRetentionDays; days > 0 {
		e.state.Backups.Cleanup(days)
	}
	if days := cfg.Storage.HistoryRetentionDays; days > 0 {
		if _, err := e.history.Cleanup(ctx, days); err != nil {
			logger.Warn().Err(err).Msg("Failed to prune history")
		}
	}
}

// Close checkpoints the stores and closes the history database
func (e *engine) Close() {
	if err := e.state.Save(); err != nil {
		logger.Warn().Err(err).Msg("Failed to save state")
	}
	if err := e.history.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close history")
	}
}
