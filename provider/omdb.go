package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/s0up4200/posterarr/art"
)

const (
	omdbBaseURL = "https://www.omdbapi.com"

	// omdbNoValue is what OMDb returns for missing fields
	omdbNoValue = "N/A"
)

// OMDb queries the Open Movie Database. It only ever supplies posters.
type OMDb struct {
	base
	baseURL string
}

// NewOMDb creates an OMDb adapter
func NewOMDb(apiKey string, deps Deps, opts ...Option) *OMDb {
	o := buildOptions(options{baseURL: omdbBaseURL}, opts)
	return &OMDb{
		base:    newBase(NameOMDb, apiKey, deps, o.baseURL),
		baseURL: strings.TrimSuffix(o.baseURL, "/"),
	}
}

type omdbResponse struct {
	Title    string `json:"Title"`
	Poster   string `json:"Poster"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// GetArt implements Provider
func (p *OMDb) GetArt(ctx context.Context, l Lookup) (art.Result, error) {
	if !p.available() {
		return art.Result{}, nil
	}
	id := l.IDs.IMDB()
	if id == "" {
		return art.Result{}, nil
	}

	return p.resolve(ctx, "omdb", id, func(ctx context.Context) (art.Result, error) {
		resp, err := p.fetcher.Get(ctx, p.baseURL+"/", url.Values{"apikey": {p.apiKey}, "i": {id}}, nil)
		if err != nil {
			return art.Result{}, err
		}

		var body omdbResponse
		if err := resp.JSON(&body); err != nil {
			return art.Result{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		poster := strings.TrimSpace(body.Poster)
		if poster == omdbNoValue {
			poster = ""
		}
		return art.Result{PosterURL: poster}, nil
	})
}

// Check fetches a well-known movie to validate the API key
func (p *OMDb) Check(ctx context.Context) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	resp, err := p.fetcher.Get(ctx, p.baseURL+"/", url.Values{"apikey": {p.apiKey}, "i": {"tt0137523"}}, nil)
	if err != nil {
		return "", err
	}
	var body omdbResponse
	if err := resp.JSON(&body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if body.Response != "True" {
		return "", fmt.Errorf("omdb rejected request: %s", body.Error)
	}
	return fmt.Sprintf("sample movie fetched (%s)", body.Title), nil
}
