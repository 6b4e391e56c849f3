package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/posterarr/art"
)

func TestFanartMovie(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{
			"name": "Fight Club",
			"tmdb_id": "550",
			"movieposter": [
				{"id": "1", "url": "https://assets.fanart.tv/p1.jpg", "lang": "en", "likes": "3", "width": "1000"},
				{"id": "2", "url": "https://assets.fanart.tv/p2.jpg", "lang": "en", "likes": "1", "width": "1400"}
			],
			"moviebackground": [
				{"id": "3", "url": "https://assets.fanart.tv/b1.jpg", "width": "1920"}
			],
			"moviethumb": [
				{"id": "4", "url": "https://assets.fanart.tv/thumb.jpg", "width": "5000"}
			]
		}`))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)
	p := NewFanart("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDTMDB: "550"}))
	require.NoError(t, err)

	assert.Equal(t, "/v3/movies/550", gotPath)
	assert.Equal(t, "https://assets.fanart.tv/p2.jpg", res.PosterURL)
	assert.Equal(t, "https://assets.fanart.tv/b1.jpg", res.BackgroundURL)
	assert.Equal(t, "fanart", res.Source)

	_, ok := deps.Cache.Get("fanart_movie", "550")
	assert.True(t, ok)
}

func TestFanartPrefersTVDbID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{
			"tvposter": [{"url": "https://assets.fanart.tv/tvp.jpg", "width": "1000"}],
			"showbackground": [{"url": "https://assets.fanart.tv/sb.jpg", "width": "1920"}],
			"tvthumb": [{"url": "https://assets.fanart.tv/thumb.jpg", "width": "1000"}],
			"fanart": [{"url": "https://assets.fanart.tv/fa.jpg", "width": "3840"}]
		}`))
	}))
	defer srv.Close()

	deps, _ := newDeps(t)
	p := NewFanart("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), showLookup(art.ExternalIDs{art.IDTMDB: "2316", art.IDTVDB: "73244"}))
	require.NoError(t, err)

	assert.Equal(t, "/v3/tv/73244", gotPath)
	assert.Equal(t, "https://assets.fanart.tv/tvp.jpg", res.PosterURL)
	assert.Equal(t, "https://assets.fanart.tv/fa.jpg", res.BackgroundURL)

	_, ok := deps.Cache.Get("fanart_tv", "73244")
	assert.True(t, ok)
}

func TestFanartNoIDs(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{}`)

	deps, _ := newDeps(t)
	p := NewFanart("secret", deps, WithBaseURL(srv.URL))

	res, err := p.GetArt(context.Background(), movieLookup(art.ExternalIDs{art.IDIMDB: "tt0137523"}))
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
	assert.Zero(t, hits.Load())
}
