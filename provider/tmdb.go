package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/s0up4200/posterarr/art"
)

const (
	tmdbBaseURL  = "https://api.themoviedb.org"
	tmdbImageURL = "https://image.tmdb.org/t/p/original"
)

// TMDb queries The Movie Database image endpoints
type TMDb struct {
	base
	baseURL  string
	imageURL string
	language string
}

// NewTMDb creates a TMDb adapter
func NewTMDb(apiKey string, deps Deps, opts ...Option) *TMDb {
	o := buildOptions(options{baseURL: tmdbBaseURL, imageURL: tmdbImageURL, language: "en"}, opts)
	return &TMDb{
		base:     newBase(NameTMDb, apiKey, deps, o.baseURL),
		baseURL:  strings.TrimSuffix(o.baseURL, "/"),
		imageURL: o.imageURL,
		language: o.language,
	}
}

type tmdbImage struct {
	FilePath string `json:"file_path"`
	Width    int    `json:"width"`
}

type tmdbImages struct {
	Posters   []tmdbImage `json:"posters"`
	Backdrops []tmdbImage `json:"backdrops"`
}

// GetArt implements Provider
func (p *TMDb) GetArt(ctx context.Context, l Lookup) (art.Result, error) {
	if !p.available() {
		return art.Result{}, nil
	}
	id := l.IDs.TMDB()
	if id == "" {
		return art.Result{}, nil
	}

	var ns, kind string
	switch {
	case l.Item.Type.IsMovie():
		ns, kind = "tmdb_movie", "movie"
	case l.Item.Type.IsShow():
		ns, kind = "tmdb_tv", "tv"
	default:
		return art.Result{}, nil
	}

	return p.resolve(ctx, ns, id, func(ctx context.Context) (art.Result, error) {
		query := url.Values{}
		query.Set("api_key", p.apiKey)
		query.Set("include_image_language", p.language+",null")

		resp, err := p.fetcher.Get(ctx, fmt.Sprintf("%s/3/%s/%s/images", p.baseURL, kind, url.PathEscape(id)), query, nil)
		if err != nil {
			return art.Result{}, err
		}

		var images tmdbImages
		if err := resp.JSON(&images); err != nil {
			return art.Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		return art.Result{
			PosterURL:     art.PickBest(p.candidates(images.Posters), l.MinPosterWidth),
			BackgroundURL: art.PickBest(p.candidates(images.Backdrops), l.MinBackgroundWidth),
		}, nil
	})
}

func (p *TMDb) candidates(images []tmdbImage) []art.Candidate {
	out := make([]art.Candidate, 0, len(images))
	for _, img := range images {
		if img.FilePath == "" {
			continue
		}
		out = append(out, art.Candidate{URL: p.imageURL + img.FilePath, Width: img.Width})
	}
	return out
}

// Check fetches a well-known movie to validate the API key
func (p *TMDb) Check(ctx context.Context) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	resp, err := p.fetcher.Get(ctx, p.baseURL+"/3/movie/550", url.Values{"api_key": {p.apiKey}}, nil)
	if err != nil {
		return "", err
	}
	var movie struct {
		Title string `json:"title"`
	}
	if err := resp.JSON(&movie); err != nil || movie.Title == "" {
		return "sample movie fetched", nil
	}
	return fmt.Sprintf("sample movie fetched (%s)", movie.Title), nil
}
