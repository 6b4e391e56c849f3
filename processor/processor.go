// Package processor runs the batch: it walks the selected libraries one
// item at a time, resolves artwork for each item and applies, proposes or
// logs the result.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/filter"
	"github.com/s0up4200/posterarr/history"
	"github.com/s0up4200/posterarr/metrics"
	"github.com/s0up4200/posterarr/plex"
	"github.com/s0up4200/posterarr/proposal"
	"github.com/s0up4200/posterarr/resolver"
	"github.com/s0up4200/posterarr/state"
	"github.com/s0up4200/posterarr/webhook"
)

// DefaultCheckpointEvery is how many items are processed between checkpoints
const DefaultCheckpointEvery = 50

// MediaServer lists items and accepts artwork
type MediaServer interface {
	plex.Library
	plex.Uploader
}

// IDIndex fills in external ids the media server does not report
type IDIndex interface {
	Load(ctx context.Context) error
	Enrich(kind art.MediaType, ids art.ExternalIDs) art.ExternalIDs
}

// HistoryRecorder stores applied changes
type HistoryRecorder interface {
	Record(ctx context.Context, c history.Change) error
}

// Config controls what a run does with the artwork it finds
type Config struct {
	DryRun          bool
	Approval        bool
	Backup          bool
	CheckpointEvery int
}

// Option configures a Processor
type Option func(*Processor)

// WithFilter restricts which items are processed
func WithFilter(f filter.Filter) Option {
	return func(p *Processor) {
		if f != nil {
			p.filter = f
		}
	}
}

// WithIndex enables external id enrichment
func WithIndex(index IDIndex) Option {
	return func(p *Processor) {
		p.index = index
	}
}

// WithHistory records every change
func WithHistory(h HistoryRecorder) Option {
	return func(p *Processor) {
		p.history = h
	}
}

// WithState enables checkpoints, backups and proposals
func WithState(s *state.State) Option {
	return func(p *Processor) {
		p.state = s
	}
}

// WithNotifier sends run notifications
func WithNotifier(n *webhook.Notifier) Option {
	return func(p *Processor) {
		p.notifier = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// Processor executes runs. At most one run is active at a time.
type Processor struct {
	server    MediaServer
	resolver  *resolver.Resolver
	filter    filter.Filter
	evaluator *filter.Evaluator
	index     IDIndex
	history   HistoryRecorder
	state     *state.State
	notifier  *webhook.Notifier
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last *Summary
}

// New creates a processor
func New(server MediaServer, res *resolver.Resolver, cfg Config, logger zerolog.Logger, opts ...Option) *Processor {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultCheckpointEvery
	}

	p := &Processor{
		server:    server,
		resolver:  res,
		filter:    filter.MatchAll{},
		evaluator: filter.NewEvaluator(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "processor").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Running reports whether a run is active
func (p *Processor) Running() bool {
	return p.running.Load()
}

// LastSummary returns the summary of the most recent run
func (p *Processor) LastSummary() (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}

type library struct {
	section plex.Section
	items   []art.MediaItem
}

// Run processes the named libraries, or every movie and show library when
// names is empty or contains "all". It returns ErrRunInProgress if another
// run is active.
func (p *Processor) Run(ctx context.Context, names []string) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	metrics.TrackRun(true)
	defer metrics.TrackRun(false)

	summary := Summary{StartedAt: p.now(), DryRun: p.cfg.DryRun}
	err := p.run(ctx, names, &summary)

	summary.FinishedAt = p.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	if err != nil {
		summary.Error = err.Error()
	}

	p.checkpoint()
	metrics.RecordRun(summary.Duration, err)

	switch {
	case err == nil:
		p.notifier.NotifyCompleted(ctx, summary.Processed, summary.Changed(), summary.Duration)
	case !errors.Is(err, context.Canceled):
		p.notifier.NotifyError(context.WithoutCancel(ctx), err.Error())
	}

	p.mu.Lock()
	last := summary
	p.last = &last
	p.mu.Unlock()

	p.logger.Info().
		Int("processed", summary.Processed).
		Int("updated", summary.Updated).
		Int("proposed", summary.Proposed).
		Int("skipped", summary.Skipped).
		Int("no_match", summary.NoMatch).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	return summary, err
}

func (p *Processor) run(ctx context.Context, names []string, summary *Summary) error {
	sections, err := p.server.Sections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list libraries: %w", err)
	}

	selected := p.selectSections(sections, names)
	if len(selected) == 0 {
		return ErrNoLibraries
	}
	summary.Libraries = len(selected)

	if p.index != nil {
		if err := p.index.Load(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to load id index, continuing without enrichment")
		}
	}

	libraries := make([]library, 0, len(selected))
	total := 0
	for _, section := range selected {
		items, err := p.server.Items(ctx, section)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error().Err(err).Str("library", section.Title).Msg("Failed to list library items")
			summary.LibraryErrors++
			continue
		}

		matched, err := p.evaluator.Select(ctx, p.filter, items, p.externalIDs)
		if err != nil {
			return err
		}
		if filtered := len(items) - len(matched); filtered > 0 {
			p.logger.Debug().
				Str("library", section.Title).
				Int("filtered", filtered).
				Msg("Items excluded by filter")
			for range filtered {
				summary.count(OutcomeFiltered)
			}
			metrics.ItemsProcessed.WithLabelValues(string(OutcomeFiltered)).Add(float64(filtered))
		}

		libraries = append(libraries, library{section: section, items: matched})
		total += len(matched)
	}

	p.notifier.NotifyStarted(ctx, len(libraries), total)

	sinceCheckpoint := 0
	for _, lib := range libraries {
		p.logger.Info().
			Str("library", lib.section.Title).
			Int("items", len(lib.items)).
			Msg("Processing library")

		for i, item := range lib.items {
			if err := ctx.Err(); err != nil {
				return err
			}

			p.logger.Debug().
				Str("title", item.Title).
				Msgf("Processing %d/%d", i+1, len(lib.items))

			outcome := p.processItem(ctx, item, summary)
			summary.count(outcome)
			metrics.ItemsProcessed.WithLabelValues(string(outcome)).Inc()

			sinceCheckpoint++
			if sinceCheckpoint >= p.cfg.CheckpointEvery {
				p.checkpoint()
				sinceCheckpoint = 0
			}
		}
	}

	return nil
}

// selectSections keeps movie and show libraries matching names
func (p *Processor) selectSections(sections []plex.Section, names []string) []plex.Section {
	all := len(names) == 0
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if strings.EqualFold(n, "all") {
			all = true
		}
		if n != "" {
			want[strings.ToLower(n)] = false
		}
	}

	var out []plex.Section
	for _, s := range sections {
		if !s.IsArtworkLibrary() {
			continue
		}
		key := strings.ToLower(s.Title)
		if _, ok := want[key]; ok {
			want[key] = true
		} else if !all {
			continue
		}
		out = append(out, s)
	}

	for name, found := range want {
		if !found && name != "all" {
			p.logger.Warn().Str("library", name).Msg("Library not found or not a movie/show library")
		}
	}
	return out
}

// externalIDs parses the item's ids and fills gaps from the index
func (p *Processor) externalIDs(item art.MediaItem) art.ExternalIDs {
	ids := art.ParseExternalIDs(item.GUIDs...)
	if p.index != nil {
		ids = p.index.Enrich(item.Type, ids)
	}
	return ids
}

func (p *Processor) processItem(ctx context.Context, item art.MediaItem, summary *Summary) Outcome {
	log := p.logger.With().Str("title", item.Title).Str("id", item.ID).Logger()

	ids := p.externalIDs(item)

	if p.resolver.Skip(item) {
		log.Debug().Msg("Skipping, artwork already present")
		return OutcomeSkipped
	}

	opts := p.resolver.Options()
	res := p.resolver.Resolve(ctx, item, ids)

	wantPoster := res.PosterURL != "" && (opts.Overwrite || !item.HasPoster)
	wantBackground := opts.IncludeBackgrounds && res.BackgroundURL != "" && (opts.Overwrite || !item.HasBackground)

	if !wantPoster && !wantBackground {
		if res.IsEmpty() {
			log.Info().Msg("No artwork found")
		}
		return OutcomeNoMatch
	}

	change := history.Change{
		ItemTitle:        item.Title,
		ItemID:           item.ID,
		MediaType:        string(item.Type),
		Source:           res.Source,
		DryRun:           p.cfg.DryRun,
		OldPosterURL:     item.PosterURL,
		OldBackgroundURL: item.BackgroundURL,
	}
	if wantPoster {
		change.NewPosterURL = res.PosterURL
	}
	if wantBackground {
		change.NewBackgroundURL = res.BackgroundURL
	}

	switch {
	case p.cfg.DryRun:
		if wantPoster {
			log.Info().Str("source", res.PosterSource).Str("url", res.PosterURL).Msg("[DRY RUN] Would set poster")
		}
		if wantBackground {
			log.Info().Str("source", res.BackgroundSource).Str("url", res.BackgroundURL).Msg("[DRY RUN] Would set background")
		}
		change.PosterChanged = wantPoster
		change.BackgroundChanged = wantBackground
		p.record(ctx, change)
		summary.PostersChanged += boolToInt(wantPoster)
		summary.BackgroundsChanged += boolToInt(wantBackground)
		return OutcomeUpdated

	case p.cfg.Approval:
		if p.state == nil || p.state.Proposals == nil {
			log.Warn().Msg("Approval mode without a proposal queue, dropping change")
			return OutcomeError
		}
		p.state.Proposals.Add(proposal.Proposal{
			ItemID:               item.ID,
			Title:                item.Title,
			MediaType:            string(item.Type),
			CurrentPosterURL:     item.PosterURL,
			NewPosterURL:         change.NewPosterURL,
			CurrentBackgroundURL: item.BackgroundURL,
			NewBackgroundURL:     change.NewBackgroundURL,
			Source:               res.Source,
		})
		log.Info().Str("source", res.Source).Msg("Proposed artwork change")
		return OutcomeProposed
	}

	if p.cfg.Backup && p.state != nil && p.state.Backups != nil {
		p.state.Backups.Backup(item)
	}

	failed := false
	if wantPoster {
		err := p.server.UploadPoster(ctx, item.ID, res.PosterURL)
		metrics.RecordUpload("poster", err)
		if err != nil {
			log.Error().Err(err).Msg("Failed to set poster")
			failed = true
		} else {
			log.Info().Str("source", res.PosterSource).Msg("Set poster")
			change.PosterChanged = true
			summary.PostersChanged++
		}
	}
	if wantBackground {
		err := p.server.UploadBackground(ctx, item.ID, res.BackgroundURL)
		metrics.RecordUpload("background", err)
		if err != nil {
			log.Error().Err(err).Msg("Failed to set background")
			failed = true
		} else {
			log.Info().Str("source", res.BackgroundSource).Msg("Set background")
			change.BackgroundChanged = true
			summary.BackgroundsChanged++
		}
	}

	if !change.PosterChanged && !change.BackgroundChanged {
		return OutcomeError
	}
	p.record(ctx, change)
	if failed {
		log.Warn().Msg("Artwork partially applied")
	}
	return OutcomeUpdated
}

// ApplyProposals uploads the given proposals and records them. It returns
// the number applied; failures are joined into the error. Uploads that
// failed go back on the queue so a later approve can retry them.
func (p *Processor) ApplyProposals(ctx context.Context, proposals []proposal.Proposal) (int, error) {
	applied := 0
	var errs []error

	for _, prop := range proposals {
		change := history.Change{
			ItemTitle:        prop.Title,
			ItemID:           prop.ItemID,
			MediaType:        prop.MediaType,
			Source:           prop.Source,
			OldPosterURL:     prop.CurrentPosterURL,
			OldBackgroundURL: prop.CurrentBackgroundURL,
		}

		if p.cfg.Backup && p.state != nil && p.state.Backups != nil {
			p.state.Backups.Backup(art.MediaItem{
				ID:            prop.ItemID,
				Title:         prop.Title,
				Type:          art.MediaType(prop.MediaType),
				PosterURL:     prop.CurrentPosterURL,
				BackgroundURL: prop.CurrentBackgroundURL,
			})
		}

		if prop.NewPosterURL != "" {
			err := p.server.UploadPoster(ctx, prop.ItemID, prop.NewPosterURL)
			metrics.RecordUpload("poster", err)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prop.Title, err))
			} else {
				change.PosterChanged = true
				change.NewPosterURL = prop.NewPosterURL
			}
		}
		if prop.NewBackgroundURL != "" {
			err := p.server.UploadBackground(ctx, prop.ItemID, prop.NewBackgroundURL)
			metrics.RecordUpload("background", err)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prop.Title, err))
			} else {
				change.BackgroundChanged = true
				change.NewBackgroundURL = prop.NewBackgroundURL
			}
		}

		if change.PosterChanged || change.BackgroundChanged {
			applied++
			p.record(ctx, change)
			p.logger.Info().Str("title", prop.Title).Msg("Applied proposed artwork")
		}
		p.requeue(prop, change)
	}

	p.checkpoint()
	return applied, errors.Join(errs...)
}

// requeue puts back the part of prop that was not uploaded
func (p *Processor) requeue(prop proposal.Proposal, change history.Change) {
	if change.PosterChanged {
		prop.NewPosterURL = ""
	}
	if change.BackgroundChanged {
		prop.NewBackgroundURL = ""
	}
	if prop.NewPosterURL == "" && prop.NewBackgroundURL == "" {
		return
	}
	if p.state == nil || p.state.Proposals == nil {
		return
	}
	p.state.Proposals.Add(prop)
	p.logger.Warn().Str("title", prop.Title).Str("proposal", prop.ID).Msg("Proposal kept for retry")
}

func (p *Processor) record(ctx context.Context, c history.Change) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(ctx, c); err != nil {
		p.logger.Warn().Err(err).Str("title", c.ItemTitle).Msg("Failed to record change")
	}
}

func (p *Processor) checkpoint() {
	if p.state == nil {
		return
	}
	if err := p.state.Save(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to save checkpoint")
	}

	if p.state.Cache != nil {
		metrics.CacheEntries.Set(float64(p.state.Cache.Len()))
	}
	if p.state.Quota != nil {
		for _, u := range p.state.Quota.Stats() {
			metrics.QuotaUsed.WithLabelValues(u.Provider).Set(float64(u.Used))
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
