package cmd

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/config"
	"github.com/s0up4200/posterarr/provider"
	"github.com/s0up4200/posterarr/ratelimit"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	cfg, logger = c, zerolog.Nop()
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })
}

func TestNewRateLimitsOverrides(t *testing.T) {
	c := &config.Config{}
	c.Providers.TVDb.RateLimit = 0.5
	withConfig(t, c)

	limits := newRateLimits()

	tvdb, ok := limits.Get("api.thetvdb.com")
	require.True(t, ok)
	assert.InDelta(t, 0.5, tvdb.Rate(), 0.0001)

	v4, ok := limits.Get("api4.thetvdb.com")
	require.True(t, ok)
	assert.InDelta(t, 0.5, v4.Rate(), 0.0001)

	tmdb, ok := limits.Get("api.themoviedb.org")
	require.True(t, ok)
	assert.InDelta(t, 2, tmdb.Rate(), 0.0001, "unset override keeps the default")
}

func TestResolveFilter(t *testing.T) {
	c := &config.Config{}
	c.Filter.Expression = `Year < 2000`
	c.Filter.Presets = map[string]string{"recent": `Year >= 2020`}
	withConfig(t, c)

	old := art.MediaItem{Title: "Heat", Year: 1995}
	recent := art.MediaItem{Title: "Dune", Year: 2021}

	tests := []struct {
		name      string
		sel       filterSelection
		oldPasses bool
		newPasses bool
	}{
		{"configured expression", filterSelection{}, true, false},
		{"preset overrides configured expression", filterSelection{preset: "recent"}, false, true},
		{"flag expression wins", filterSelection{expression: `Title == "Dune"`, preset: "recent"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := resolveFilter(tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.oldPasses, f.Evaluate(old, nil))
			assert.Equal(t, tt.newPasses, f.Evaluate(recent, nil))
		})
	}

	_, err := resolveFilter(filterSelection{preset: "missing"})
	assert.Error(t, err)
}

func TestResolveFilterMatchAll(t *testing.T) {
	withConfig(t, &config.Config{})

	f, err := resolveFilter(filterSelection{})
	require.NoError(t, err)
	assert.True(t, f.Evaluate(art.MediaItem{Title: "anything"}, nil))
}

func TestLoadStateCreatesDataDir(t *testing.T) {
	c := &config.Config{}
	c.Storage.DataDir = t.TempDir() + "/nested/data"
	c.Providers.TMDb.DailyLimit = 5
	withConfig(t, c)

	st, err := loadState()
	require.NoError(t, err)
	require.NoError(t, st.Save())

	n, limited := st.Quota.Remaining("tmdb")
	assert.True(t, limited)
	assert.Equal(t, 5, n)

	_, limited = st.Quota.Remaining("omdb")
	assert.False(t, limited, "zero daily limit means unlimited")
}

func TestSelectChecks(t *testing.T) {
	deps := provider.Deps{Logger: zerolog.Nop()}
	registry, err := provider.NewRegistry(
		provider.NewTMDb("k", deps),
		provider.NewFanart("k", deps),
		provider.NewTVDb("k", deps),
	)
	require.NoError(t, err)

	t.Run("everything by default", func(t *testing.T) {
		checks, withPlex, err := selectChecks(registry, nil)
		require.NoError(t, err)
		assert.True(t, withPlex)
		assert.Len(t, checks, 3)
	})

	t.Run("named services only", func(t *testing.T) {
		checks, withPlex, err := selectChecks(registry, []string{"TVDb"})
		require.NoError(t, err)
		assert.False(t, withPlex)
		require.Len(t, checks, 1)
		assert.Contains(t, checks, "tvdb")
	})

	t.Run("plex alone", func(t *testing.T) {
		checks, withPlex, err := selectChecks(registry, []string{"plex"})
		require.NoError(t, err)
		assert.True(t, withPlex)
		assert.Empty(t, checks)
	})

	t.Run("unknown service lists the known ones", func(t *testing.T) {
		_, _, err := selectChecks(registry, []string{"imdb"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fanart, tmdb, tvdb")
	})
}

func TestRateLimitReport(t *testing.T) {
	limits := ratelimit.NewRegistry(map[string]float64{
		"api.thetvdb.com": 0.5,
		"example.org":     4,
		"www.omdbapi.com": 3,
	})

	report := rateLimitReport(limits)
	assert.Equal(t, []hostRate{
		{Host: "api.thetvdb.com", Provider: provider.NameTVDb, PerSec: 0.5},
		{Host: "example.org", PerSec: 4},
		{Host: "www.omdbapi.com", Provider: provider.NameOMDb, PerSec: 3},
	}, report)
}
