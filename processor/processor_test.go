package processor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/backup"
	"github.com/s0up4200/posterarr/cache"
	"github.com/s0up4200/posterarr/filter"
	"github.com/s0up4200/posterarr/history"
	"github.com/s0up4200/posterarr/plex"
	"github.com/s0up4200/posterarr/proposal"
	"github.com/s0up4200/posterarr/provider"
	"github.com/s0up4200/posterarr/resolver"
	"github.com/s0up4200/posterarr/state"
)

type upload struct{ kind, itemID, url string }

type fakeServer struct {
	mu          sync.Mutex
	sections    []plex.Section
	items       map[string][]art.MediaItem
	itemsErr    map[string]error
	sectionsErr error
	uploadErr   error
	bgErr       error
	uploads     []upload
	block       chan struct{}
}

func (f *fakeServer) Sections(ctx context.Context) ([]plex.Section, error) {
	if f.block != nil {
		<-f.block
	}
	return f.sections, f.sectionsErr
}

func (f *fakeServer) Items(_ context.Context, s plex.Section) ([]art.MediaItem, error) {
	if err := f.itemsErr[s.Key]; err != nil {
		return nil, err
	}
	return f.items[s.Key], nil
}

func (f *fakeServer) UploadPoster(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, upload{"poster", id, url})
	return nil
}

func (f *fakeServer) UploadBackground(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if f.bgErr != nil {
		return f.bgErr
	}
	f.uploads = append(f.uploads, upload{"background", id, url})
	return nil
}

type fakeHistory struct {
	changes []history.Change
}

func (h *fakeHistory) Record(_ context.Context, c history.Change) error {
	h.changes = append(h.changes, c)
	return nil
}

type stubProvider struct {
	res art.Result
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) GetArt(_ context.Context, l provider.Lookup) (art.Result, error) {
	if !l.IDs.Has(art.IDTMDB) {
		return art.Result{}, nil
	}
	return s.res, nil
}

var (
	moviesSection = plex.Section{Key: "1", Title: "Movies", Type: "movie"}
	showsSection  = plex.Section{Key: "2", Title: "TV Shows", Type: "show"}
	musicSection  = plex.Section{Key: "3", Title: "Music", Type: "artist"}

	fightClub = art.MediaItem{ID: "101", Title: "Fight Club", Type: art.MediaTypeMovie, GUIDs: []string{"tmdb://550"}, Library: "Movies"}
	heat      = art.MediaItem{ID: "102", Title: "Heat", Type: art.MediaTypeMovie, GUIDs: []string{"tmdb://949"}, HasPoster: true, HasBackground: true, Library: "Movies"}
	noIDs     = art.MediaItem{ID: "103", Title: "Home Video", Type: art.MediaTypeMovie, Library: "Movies"}
)

func newServer() *fakeServer {
	return &fakeServer{
		sections: []plex.Section{moviesSection, showsSection, musicSection},
		items: map[string][]art.MediaItem{
			"1": {fightClub, heat, noIDs},
		},
	}
}

func newResolver() *resolver.Resolver {
	p := &stubProvider{res: art.Result{PosterURL: "https://img/p.jpg", BackgroundURL: "https://img/b.jpg", Source: "stub"}}
	return resolver.New([]provider.Provider{p}, resolver.Options{IncludeBackgrounds: true}, zerolog.Nop())
}

func newState(t *testing.T) *state.State {
	t.Helper()
	return newStateAt(t, t.TempDir())
}

func newStateAt(t *testing.T, dir string) *state.State {
	t.Helper()
	s := state.New(state.DefaultPaths(dir), zerolog.Nop())
	s.Cache = cache.New()
	s.Backups = backup.New(zerolog.Nop())
	s.Proposals = proposal.New()
	return s
}

func TestRunAppliesMissingArtwork(t *testing.T) {
	server := newServer()
	hist := &fakeHistory{}
	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithHistory(hist))

	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []upload{
		{"poster", "101", "https://img/p.jpg"},
		{"background", "101", "https://img/b.jpg"},
	}, server.uploads)

	assert.Equal(t, 2, summary.Libraries)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.NoMatch)
	assert.Equal(t, 1, summary.PostersChanged)
	assert.Equal(t, 1, summary.BackgroundsChanged)

	require.Len(t, hist.changes, 1)
	c := hist.changes[0]
	assert.Equal(t, "101", c.ItemID)
	assert.True(t, c.PosterChanged)
	assert.True(t, c.BackgroundChanged)
	assert.Equal(t, "stub", c.Source)
	assert.False(t, c.DryRun)

	last, ok := p.LastSummary()
	require.True(t, ok)
	assert.Equal(t, summary, last)
	assert.False(t, p.Running())
}

func TestRunDryRunUploadsNothing(t *testing.T) {
	server := newServer()
	hist := &fakeHistory{}
	p := New(server, newResolver(), Config{DryRun: true}, zerolog.Nop(), WithHistory(hist))

	summary, err := p.Run(context.Background(), []string{"Movies"})
	require.NoError(t, err)

	assert.Empty(t, server.uploads)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Updated)
	require.Len(t, hist.changes, 1)
	assert.True(t, hist.changes[0].DryRun)
}

func TestRunApprovalModeProposes(t *testing.T) {
	server := newServer()
	dir := t.TempDir()
	st := newStateAt(t, dir)
	p := New(server, newResolver(), Config{Approval: true}, zerolog.Nop(), WithState(st))

	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, server.uploads)
	assert.Equal(t, 1, summary.Proposed)

	proposals := st.Proposals.List()
	require.Len(t, proposals, 1)
	assert.Equal(t, "101", proposals[0].ItemID)
	assert.Equal(t, "https://img/p.jpg", proposals[0].NewPosterURL)
	assert.Equal(t, "https://img/b.jpg", proposals[0].NewBackgroundURL)

	_, err = os.Stat(state.DefaultPaths(dir).Proposals)
	assert.NoError(t, err, "run end checkpoints the proposal queue")
}

func TestApplyProposals(t *testing.T) {
	server := newServer()
	hist := &fakeHistory{}
	st := newState(t)
	p := New(server, newResolver(), Config{Backup: true}, zerolog.Nop(), WithState(st), WithHistory(hist))

	st.Proposals.Add(proposal.Proposal{
		ItemID:           "101",
		Title:            "Fight Club",
		CurrentPosterURL: "http://plex/thumb",
		NewPosterURL:     "https://img/p.jpg",
	})

	applied, err := p.ApplyProposals(context.Background(), st.Proposals.Take())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []upload{{"poster", "101", "https://img/p.jpg"}}, server.uploads)
	require.Len(t, hist.changes, 1)

	b, ok := st.Backups.Get("101")
	require.True(t, ok)
	assert.Equal(t, "http://plex/thumb", b.PosterURL)
}

func TestApplyProposalsFailureKeepsProposal(t *testing.T) {
	server := newServer()
	server.uploadErr = errors.New("plex down")
	hist := &fakeHistory{}
	st := newState(t)
	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithState(st), WithHistory(hist))

	queued := st.Proposals.Add(proposal.Proposal{
		ItemID:       "101",
		Title:        "Fight Club",
		NewPosterURL: "https://img/p.jpg",
	})

	applied, err := p.ApplyProposals(context.Background(), st.Proposals.Take())
	require.Error(t, err)
	assert.Zero(t, applied)
	assert.Empty(t, hist.changes)

	pending := st.Proposals.List()
	require.Len(t, pending, 1)
	assert.Equal(t, queued.ID, pending[0].ID)
	assert.Equal(t, "https://img/p.jpg", pending[0].NewPosterURL)
}

func TestApplyProposalsPartialFailureKeepsRemainder(t *testing.T) {
	server := newServer()
	server.bgErr = errors.New("plex down")
	st := newState(t)
	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithState(st))

	st.Proposals.Add(proposal.Proposal{
		ItemID:           "101",
		Title:            "Fight Club",
		NewPosterURL:     "https://img/p.jpg",
		NewBackgroundURL: "https://img/b.jpg",
	})

	applied, err := p.ApplyProposals(context.Background(), st.Proposals.Take())
	require.Error(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []upload{{"poster", "101", "https://img/p.jpg"}}, server.uploads)

	pending := st.Proposals.List()
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].NewPosterURL)
	assert.Equal(t, "https://img/b.jpg", pending[0].NewBackgroundURL)
}

func TestRunBacksUpBeforeUpload(t *testing.T) {
	server := newServer()
	item := fightClub
	item.HasPoster = true
	item.PosterURL = "http://plex/library/metadata/101/thumb/1"
	server.items["1"] = []art.MediaItem{item}

	st := newState(t)
	res := resolver.New([]provider.Provider{&stubProvider{res: art.Result{PosterURL: "https://img/p.jpg"}}},
		resolver.Options{Overwrite: true}, zerolog.Nop())
	p := New(server, res, Config{Backup: true}, zerolog.Nop(), WithState(st))

	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	b, ok := st.Backups.Get("101")
	require.True(t, ok)
	assert.Equal(t, item.PosterURL, b.PosterURL)
	assert.Len(t, server.uploads, 1)
}

func TestRunUploadFailureContinues(t *testing.T) {
	server := newServer()
	server.uploadErr = errors.New("plex said no")
	hist := &fakeHistory{}
	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithHistory(hist))

	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 3, summary.Processed)
	assert.Empty(t, hist.changes)
}

func TestRunLibraryFailureContinues(t *testing.T) {
	server := newServer()
	server.items["2"] = []art.MediaItem{{ID: "201", Title: "Show", Type: art.MediaTypeShow, GUIDs: []string{"tmdb://1396"}}}
	server.itemsErr = map[string]error{"1": errors.New("timeout")}
	p := New(server, newResolver(), Config{}, zerolog.Nop())

	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.LibraryErrors)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, []upload{
		{"poster", "201", "https://img/p.jpg"},
		{"background", "201", "https://img/b.jpg"},
	}, server.uploads)
}

func TestRunFilter(t *testing.T) {
	server := newServer()
	f, err := filter.CompileFilter(`Title == "Heat"`)
	require.NoError(t, err)

	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithFilter(f))
	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Filtered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, server.uploads)
}

type fakeIndex struct {
	extra map[string]art.ExternalIDs
}

func (f *fakeIndex) Load(context.Context) error { return nil }

func (f *fakeIndex) Enrich(_ art.MediaType, ids art.ExternalIDs) art.ExternalIDs {
	if known, ok := f.extra[ids.TMDB()]; ok {
		return ids.Merge(known)
	}
	return ids
}

func TestRunFilterSeesEnrichedIDs(t *testing.T) {
	server := newServer()
	f, err := filter.CompileFilter(`hasID("imdb")`)
	require.NoError(t, err)

	index := &fakeIndex{extra: map[string]art.ExternalIDs{"550": {art.IDIMDB: "tt0137523"}}}
	p := New(server, newResolver(), Config{}, zerolog.Nop(), WithFilter(f), WithIndex(index))

	summary, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Filtered)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, []upload{
		{"poster", "101", "https://img/p.jpg"},
		{"background", "101", "https://img/b.jpg"},
	}, server.uploads)
}

func TestRunSingleFlight(t *testing.T) {
	server := newServer()
	server.block = make(chan struct{})
	p := New(server, newResolver(), Config{DryRun: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), nil)
		done <- err
	}()

	require.Eventually(t, p.Running, time.Second, time.Millisecond)

	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(server.block)
	require.NoError(t, <-done)
	assert.False(t, p.Running())
}

func TestRunNoLibraries(t *testing.T) {
	p := New(newServer(), newResolver(), Config{}, zerolog.Nop())

	summary, err := p.Run(context.Background(), []string{"Anime"})
	assert.ErrorIs(t, err, ErrNoLibraries)
	assert.NotEmpty(t, summary.Error)
}

func TestRunSectionsError(t *testing.T) {
	server := newServer()
	server.sectionsErr = plex.ErrUnauthorized
	p := New(server, newResolver(), Config{}, zerolog.Nop())

	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, plex.ErrUnauthorized)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newServer(), newResolver(), Config{}, zerolog.Nop()).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectSections(t *testing.T) {
	p := New(newServer(), newResolver(), Config{}, zerolog.Nop())
	sections := []plex.Section{moviesSection, showsSection, musicSection}

	tests := []struct {
		name     string
		names    []string
		expected []plex.Section
	}{
		{"empty selects all artwork libraries", nil, []plex.Section{moviesSection, showsSection}},
		{"all keyword", []string{"ALL"}, []plex.Section{moviesSection, showsSection}},
		{"case insensitive names", []string{" movies "}, []plex.Section{moviesSection}},
		{"non artwork library ignored", []string{"Music"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.selectSections(sections, tt.names))
		})
	}
}
