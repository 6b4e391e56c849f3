package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/fetch"
)

const (
	tvdbBaseURL  = "https://api.thetvdb.com"
	tvdbV4Login  = "https://api4.thetvdb.com/v4/login"
	tvdbImageURL = "https://artworks.thetvdb.com/banners/"

	// Tokens are valid for 24 hours
	tvdbTokenTTL = 23 * time.Hour
)

// TVDb queries TheTVDB. Only shows are supported.
type TVDb struct {
	base
	baseURL  string
	loginURL string
	imageURL string
	pin      string
	userKey  string
	username string
	now      func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTVDb creates a TheTVDB adapter
func NewTVDb(apiKey string, deps Deps, opts ...Option) *TVDb {
	o := buildOptions(options{baseURL: tvdbBaseURL, loginURL: tvdbV4Login, imageURL: tvdbImageURL}, opts)
	imageURL := o.imageURL
	if !strings.HasSuffix(imageURL, "/") {
		imageURL += "/"
	}
	return &TVDb{
		base:     newBase(NameTVDb, apiKey, deps, o.baseURL, o.loginURL),
		baseURL:  strings.TrimSuffix(o.baseURL, "/"),
		loginURL: o.loginURL,
		imageURL: imageURL,
		pin:      o.pin,
		userKey:  o.userKey,
		username: o.username,
		now:      time.Now,
	}
}

type tvdbImage struct {
	FileName   string `json:"fileName"`
	Resolution string `json:"resolution"`
}

type tvdbImagesResponse struct {
	Data []tvdbImage `json:"data"`
}

// GetArt implements Provider. A poster and a fanart query are issued; if
// either fails the whole lookup is reported as failed.
func (p *TVDb) GetArt(ctx context.Context, l Lookup) (art.Result, error) {
	if !p.available() {
		return art.Result{}, nil
	}
	id := l.IDs.TVDB()
	if id == "" || !l.Item.Type.IsShow() {
		return art.Result{}, nil
	}

	return p.resolve(ctx, "tvdb", id, func(ctx context.Context) (art.Result, error) {
		token, err := p.authToken(ctx)
		if err != nil {
			return art.Result{}, err
		}

		posters, err := p.images(ctx, token, id, "poster")
		if err != nil {
			return art.Result{}, err
		}
		backgrounds, err := p.images(ctx, token, id, "fanart")
		if err != nil {
			return art.Result{}, err
		}

		return art.Result{
			PosterURL:     art.PickBest(posters, l.MinPosterWidth),
			BackgroundURL: art.PickBest(backgrounds, l.MinBackgroundWidth),
		}, nil
	})
}

func (p *TVDb) images(ctx context.Context, token, id, keyType string) ([]art.Candidate, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	endpoint := fmt.Sprintf("%s/series/%s/images/query", p.baseURL, url.PathEscape(id))
	resp, err := p.fetcher.Get(ctx, endpoint, url.Values{"keyType": {keyType}}, header)
	if errors.Is(err, fetch.ErrNotFound) {
		// No images of this type
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s images: %w", keyType, err)
	}

	var body tvdbImagesResponse
	if err := resp.JSON(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	out := make([]art.Candidate, 0, len(body.Data))
	for _, img := range body.Data {
		if img.FileName == "" {
			continue
		}
		width, _, _ := strings.Cut(img.Resolution, "x")
		out = append(out, art.Candidate{
			URL:   p.imageURL + strings.TrimPrefix(img.FileName, "/"),
			Width: art.ParseWidth(width),
		})
	}
	return out, nil
}

// authToken returns a cached login token, logging in when it is missing or stale
func (p *TVDb) authToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	token, err := p.login(ctx, p.fetcher.Do)
	if err != nil {
		return "", err
	}

	p.token = token
	p.tokenExpiry = p.now().Add(tvdbTokenTTL)
	p.logger.Debug().Msg("Obtained TheTVDB token")
	return p.token, nil
}

type sendFunc func(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*fetch.Response, error)

// login performs the v3 login used for lookups
func (p *TVDb) login(ctx context.Context, send sendFunc) (string, error) {
	payload := map[string]string{"apikey": p.apiKey}
	if p.userKey != "" {
		payload["userkey"] = p.userKey
	}
	if p.username != "" {
		payload["username"] = p.username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := send(ctx, http.MethodPost, p.baseURL+"/login", body, nil)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := resp.JSON(&out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrMalformedResponse)
	}
	return out.Token, nil
}

// Check tries a v4 login first and falls back to the v3 login used for
// lookups. Neither attempt sets a cooldown, so a v4 rejection does not
// block the v3 fallback.
func (p *TVDb) Check(ctx context.Context) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	payload := map[string]string{"apikey": p.apiKey}
	if p.pin != "" {
		payload["pin"] = p.pin
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	v4Err := errors.New("no token in response")
	if resp, err := p.fetcher.DoOnce(ctx, http.MethodPost, p.loginURL, body, nil); err == nil {
		var out struct {
			Data struct {
				Token string `json:"token"`
			} `json:"data"`
		}
		if err := resp.JSON(&out); err == nil && out.Data.Token != "" {
			return "token issued (v4)", nil
		}
	} else {
		v4Err = err
	}

	if _, err := p.login(ctx, p.fetcher.DoOnce); err != nil {
		return "", fmt.Errorf("v4: %v; v3: %w", v4Err, err)
	}
	return "token issued (v3)", nil
}
