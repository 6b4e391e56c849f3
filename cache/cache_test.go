package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/posterarr/art"
)

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("tmdb_movie", "550")
	assert.False(t, ok)

	want := art.Result{PosterURL: "p", Source: "tmdb"}
	c.Set("tmdb_movie", "550", want)

	got, ok := c.Get("tmdb_movie", "550")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = c.Get("tmdb_tv", "550")
	assert.False(t, ok, "namespaces are independent")
	assert.Equal(t, 1, c.Len())
}

func TestEmptyResultsAreCached(t *testing.T) {
	c := New()
	c.Set("omdb", "tt0000001", art.Result{})

	got, ok := c.Get("omdb", "tt0000001")
	require.True(t, ok)
	assert.True(t, got.IsEmpty())
}

func TestNegativeTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithNegativeTTL(24*time.Hour), WithClock(func() time.Time { return now }))

	c.Set("fanart_movie", "1", art.Result{})
	c.Set("fanart_movie", "2", art.Result{PosterURL: "p", Source: "fanart"})

	now = now.Add(25 * time.Hour)

	_, ok := c.Get("fanart_movie", "1")
	assert.False(t, ok, "stale empty entries are re-checked")
	_, ok = c.Get("fanart_movie", "2")
	assert.True(t, ok, "non-empty entries never expire")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New()
	c.Set("tmdb_movie", "550", art.Result{PosterURL: "p", BackgroundURL: "b", Source: "tmdb"})
	c.Set("omdb", "tt0137523", art.Result{})
	require.NoError(t, c.Save(path))

	loaded := New()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())

	got, ok := loaded.Get("tmdb_movie", "550")
	require.True(t, ok)
	assert.Equal(t, art.Result{PosterURL: "p", BackgroundURL: "b", Source: "tmdb"}, got)
}

func TestLoadLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".provider_cache.json")
	legacy := `{"tmdb_movie": {"550": {"poster_url": "https://image.tmdb.org/t/p/original/p.jpg", "background_url": null, "source": "tmdb"}},
"omdb": {"tt0137523": {"poster_url": null, "background_url": null, "source": null}}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	c := New()
	require.NoError(t, c.Load(path))

	got, ok := c.Get("tmdb_movie", "550")
	require.True(t, ok)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/p.jpg", got.PosterURL)
	assert.Empty(t, got.BackgroundURL)

	got, ok = c.Get("omdb", "tt0137523")
	require.True(t, ok)
	assert.True(t, got.IsEmpty())
}

func TestLoadMissingFile(t *testing.T) {
	c := New()
	assert.NoError(t, c.Load(filepath.Join(t.TempDir(), "nope.json")))
	assert.Zero(t, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			c.Set("ns", key, art.Result{PosterURL: key})
			c.Get("ns", key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, c.Len())
}
