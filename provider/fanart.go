package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/s0up4200/posterarr/art"
)

const fanartBaseURL = "https://webservice.fanart.tv"

// Fanart queries fanart.tv
type Fanart struct {
	base
	baseURL string
}

// NewFanart creates a fanart.tv adapter
func NewFanart(apiKey string, deps Deps, opts ...Option) *Fanart {
	o := buildOptions(options{baseURL: fanartBaseURL}, opts)
	return &Fanart{
		base:    newBase(NameFanart, apiKey, deps, o.baseURL),
		baseURL: strings.TrimSuffix(o.baseURL, "/"),
	}
}

type fanartImages struct {
	MoviePoster     []map[string]any `json:"movieposter"`
	TVPoster        []map[string]any `json:"tvposter"`
	MovieBackground []map[string]any `json:"moviebackground"`
	ShowBackground  []map[string]any `json:"showbackground"`
	TVThumb         []map[string]any `json:"tvthumb"`
	Fanart          []map[string]any `json:"fanart"`
}

func (f fanartImages) posters() []art.Candidate {
	return toCandidates(f.MoviePoster, f.TVPoster)
}

func (f fanartImages) backgrounds() []art.Candidate {
	return toCandidates(f.MovieBackground, f.ShowBackground, f.TVThumb, f.Fanart)
}

func toCandidates(sets ...[]map[string]any) []art.Candidate {
	var out []art.Candidate
	for _, set := range sets {
		for _, raw := range set {
			if c := art.CandidateFromMap(raw); c.URL != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// GetArt implements Provider. Shows are looked up by TVDb id, movies by TMDb id.
func (p *Fanart) GetArt(ctx context.Context, l Lookup) (art.Result, error) {
	if !p.available() {
		return art.Result{}, nil
	}

	var ns, key, endpoint string
	switch {
	case l.IDs.TVDB() != "":
		ns, key = "fanart_tv", l.IDs.TVDB()
		endpoint = fmt.Sprintf("%s/v3/tv/%s", p.baseURL, url.PathEscape(key))
	case l.IDs.TMDB() != "":
		ns, key = "fanart_movie", l.IDs.TMDB()
		endpoint = fmt.Sprintf("%s/v3/movies/%s", p.baseURL, url.PathEscape(key))
	default:
		return art.Result{}, nil
	}

	return p.resolve(ctx, ns, key, func(ctx context.Context) (art.Result, error) {
		resp, err := p.fetcher.Get(ctx, endpoint, url.Values{"api_key": {p.apiKey}}, nil)
		if err != nil {
			return art.Result{}, err
		}

		var images fanartImages
		if err := resp.JSON(&images); err != nil {
			return art.Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		return art.Result{
			PosterURL:     art.PickBest(images.posters(), l.MinPosterWidth),
			BackgroundURL: art.PickBest(images.backgrounds(), l.MinBackgroundWidth),
		}, nil
	})
}

// Check fetches artwork for a well-known movie to validate the API key
func (p *Fanart) Check(ctx context.Context) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if _, err := p.fetcher.Get(ctx, p.baseURL+"/v3/movies/550", url.Values{"api_key": {p.apiKey}}, nil); err != nil {
		return "", err
	}
	return "sample artwork fetched", nil
}
