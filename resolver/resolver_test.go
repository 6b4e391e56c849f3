package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/provider"
)

type stubProvider struct {
	name  string
	res   art.Result
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetArt(_ context.Context, _ provider.Lookup) (art.Result, error) {
	s.calls++
	return s.res, s.err
}

func TestSkip(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		item     art.MediaItem
		expected bool
	}{
		{"poster present, backgrounds off", Options{}, art.MediaItem{HasPoster: true}, true},
		{"poster missing", Options{}, art.MediaItem{}, false},
		{"background missing", Options{IncludeBackgrounds: true}, art.MediaItem{HasPoster: true}, false},
		{"everything present", Options{IncludeBackgrounds: true}, art.MediaItem{HasPoster: true, HasBackground: true}, true},
		{"overwrite", Options{Overwrite: true, IncludeBackgrounds: true}, art.MediaItem{HasPoster: true, HasBackground: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(nil, tt.opts, zerolog.Nop())
			assert.Equal(t, tt.expected, r.Skip(tt.item))
		})
	}
}

func TestMergeFirstValueWins(t *testing.T) {
	a := &stubProvider{name: "A", res: art.Result{BackgroundURL: "X", Source: "A"}}
	b := &stubProvider{name: "B", res: art.Result{PosterURL: "Y", BackgroundURL: "Z", Source: "B"}}

	r := New([]provider.Provider{a, b}, Options{IncludeBackgrounds: true}, zerolog.Nop())
	res := r.Resolve(context.Background(), art.MediaItem{Title: "t", Type: art.MediaTypeMovie}, art.ExternalIDs{})

	assert.Equal(t, "Y", res.PosterURL)
	assert.Equal(t, "X", res.BackgroundURL)
	assert.Equal(t, "B", res.PosterSource)
	assert.Equal(t, "A", res.BackgroundSource)
	assert.Equal(t, "B", res.Source, "source is the last provider whose value was kept")
}

func TestSourceNotTakenByUnusedProvider(t *testing.T) {
	a := &stubProvider{name: "A", res: art.Result{PosterURL: "P"}}
	b := &stubProvider{name: "B", res: art.Result{PosterURL: "Q"}}
	c := &stubProvider{name: "C", res: art.Result{BackgroundURL: "BG"}}

	r := New([]provider.Provider{a, b, c}, Options{IncludeBackgrounds: true}, zerolog.Nop())
	res := r.Resolve(context.Background(), art.MediaItem{}, art.ExternalIDs{})

	assert.Equal(t, "P", res.PosterURL)
	assert.Equal(t, "BG", res.BackgroundURL)
	assert.Equal(t, "C", res.Source)
	assert.Equal(t, "A", res.PosterSource)
}

func TestEarlyExit(t *testing.T) {
	a := &stubProvider{name: "A", res: art.Result{PosterURL: "P", BackgroundURL: "B"}}
	b := &stubProvider{name: "B", res: art.Result{PosterURL: "Q"}}

	r := New([]provider.Provider{a, b}, Options{IncludeBackgrounds: true}, zerolog.Nop())
	res := r.Resolve(context.Background(), art.MediaItem{}, art.ExternalIDs{})

	assert.Equal(t, "A", res.Source)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
}

func TestBackgroundsDisabled(t *testing.T) {
	a := &stubProvider{name: "A", res: art.Result{BackgroundURL: "X"}}
	b := &stubProvider{name: "B", res: art.Result{PosterURL: "Y", BackgroundURL: "Z"}}
	c := &stubProvider{name: "C", res: art.Result{PosterURL: "W"}}

	r := New([]provider.Provider{a, b, c}, Options{}, zerolog.Nop())
	res := r.Resolve(context.Background(), art.MediaItem{}, art.ExternalIDs{})

	assert.Equal(t, "Y", res.PosterURL)
	assert.Empty(t, res.BackgroundURL)
	assert.Equal(t, "B", res.Source)
	assert.Zero(t, c.calls, "stops once the poster is found")
}

func TestProviderErrorsAreEmpty(t *testing.T) {
	a := &stubProvider{name: "A", err: errors.New("boom"), res: art.Result{PosterURL: "ignored"}}
	b := &stubProvider{name: "B", res: art.Result{PosterURL: "P"}}

	r := New([]provider.Provider{a, b}, Options{}, zerolog.Nop())
	res := r.Resolve(context.Background(), art.MediaItem{}, art.ExternalIDs{})

	assert.Equal(t, "P", res.PosterURL)
	assert.Equal(t, "B", res.Source)
}

func TestNothingFound(t *testing.T) {
	a := &stubProvider{name: "A"}
	r := New([]provider.Provider{a}, Options{IncludeBackgrounds: true}, zerolog.Nop())

	res := r.Resolve(context.Background(), art.MediaItem{}, art.ExternalIDs{})
	assert.True(t, res.IsEmpty())
	assert.Empty(t, res.Source)
}
