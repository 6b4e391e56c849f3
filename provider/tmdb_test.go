package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/posterarr/art"
)

const tmdbImagesBody = `{
	"id": 550,
	"posters": [
		{"file_path": "/small.jpg", "width": 500},
		{"file_path": "/best.jpg", "width": 2000},
		{"file_path": "", "width": 4000}
	],
	"backdrops": [
		{"file_path": "/bd720.jpg", "width": 1280},
		{"file_path": "/bd1080.jpg", "width": 1920}
	]
}`

func TestTMDbMovie(t *testing.T) {
	var gotPath, gotKey, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotLang = r.URL.Query().Get("include_image_language")
		w.Write([]byte(tmdbImagesBody))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL), WithLanguage("de"))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	require.NoError(t, err)

	assert.Equal(t, "/3/movie/550/images", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "de,null", gotLang)

	assert.Equal(t, "https://image.tmdb.org/t/p/original/best.jpg", res.PosterURL)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/bd1080.jpg", res.BackgroundURL)
	assert.Equal(t, "tmdb", res.Source)

	cached, ok := deps.Cache.Get("tmdb_movie", "550")
	require.True(t, ok)
	assert.Equal(t, res, cached)
}

func TestTMDbShowUsesTVEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"posters": [], "backdrops": []}`))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), showLookup(art.ExternalIDs{art.IDTMDB: "2316"}))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, "/3/tv/2316/images", gotPath)

	_, ok := deps.Cache.Get("tmdb_tv", "2316")
	assert.True(t, ok, "empty results are cached")
}

func TestTMDbCacheHitSkipsNetwork(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, tmdbImagesBody)

	deps, _ := newDeps(t)
	deps.Cache.Set("tmdb_movie", "550", art.Result{PosterURL: "U1", Source: "tmdb"})
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	require.NoError(t, err)
	assert.Equal(t, "U1", res.PosterURL)
	assert.Empty(t, res.BackgroundURL)
	assert.Zero(t, hits.Load())
}

func TestTMDbSkipsWithoutPrerequisites(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, tmdbImagesBody)
	ctx := context.Background()

	deps, _ := newDeps(t)

	noKey := NewTMDb("", deps, WithBaseURL(srv.URL))
	res, err := noKey.GetArt(ctx, movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))
	res, err = p.GetArt(ctx, movieLookup(art.ExternalIDs{art.IDIMDB: "tt0137523"}))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	l := movieLookup(art.ExternalIDs{art.IDTMDB: "550"})
	l.Item.Type = art.MediaTypeEpisode
	res, err = p.GetArt(ctx, l)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	assert.Zero(t, hits.Load())
	assert.Zero(t, deps.Cache.Len())
}

func TestTMDbMalformedResponseIsNotCached(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `<html>oops</html>`)

	deps, _ := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.True(t, res.IsEmpty())
	assert.Zero(t, deps.Cache.Len())
}

func TestTMDbNotFoundIsCachedEmpty(t *testing.T) {
	srv, hits := countingServer(t, http.StatusNotFound, `{"status_code": 34}`)

	deps, _ := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))
	l := movieLookup(art.ExternalIDs{art.IDTMDB: "999999999"})

	for range 2 {
		res, err := p.GetArt(context.Background(), l)
		require.NoError(t, err)
		assert.True(t, res.IsEmpty())
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestTMDbRateLimitCooldown(t *testing.T) {
	var hits atomic.Int32
	var limited atomic.Bool
	limited.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if limited.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(tmdbImagesBody))
	}))
	defer srv.Close()

	deps, clock := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))
	ctx := context.Background()

	_, err := p.GetArt(ctx, movieLookup(art.ExternalIDs{art.IDTMDB: "1"}))
	require.Error(t, err)
	require.Equal(t, int32(1), hits.Load())
	limited.Store(false)

	for _, step := range []time.Duration{0, 10 * time.Minute, 19*time.Minute + 59*time.Second} {
		clock.Advance(step)
		res, err := p.GetArt(ctx, movieLookup(art.ExternalIDs{art.IDTMDB: "2"}))
		require.NoError(t, err)
		assert.True(t, res.IsEmpty())
		assert.Equal(t, int32(1), hits.Load(), "no network while on cooldown")
	}

	clock.Advance(time.Second)
	res, err := p.GetArt(ctx, movieLookup(art.ExternalIDs{art.IDTMDB: "2"}))
	require.NoError(t, err)
	assert.False(t, res.IsEmpty())
	assert.Equal(t, int32(2), hits.Load())
}

func TestTMDbQuotaExhausted(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, tmdbImagesBody)

	deps, _ := newDeps(t)
	for range 1000 {
		deps.Quota.Increment("tmdb")
	}
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.Zero(t, hits.Load())
	assert.Zero(t, deps.Cache.Len(), "skipped lookups are not cached")
}

func TestTMDbConcurrentLookupsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(tmdbImagesBody))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)
	p := NewTMDb("secret", deps, WithBaseURL(srv.URL))
	l := movieLookup(art.ExternalIDs{art.IDTMDB: "550"})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.GetArt(context.Background(), l)
			assert.NoError(t, err)
			assert.NotEmpty(t, res.PosterURL)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestTMDbCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/movie/550", r.URL.Path)
		w.Write([]byte(`{"title": "Fight Club"}`))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)

	msg, err := NewTMDb("secret", deps, WithBaseURL(srv.URL)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sample movie fetched (Fight Club)", msg)

	_, err = NewTMDb("", deps, WithBaseURL(srv.URL)).Check(context.Background())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
