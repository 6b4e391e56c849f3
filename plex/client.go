package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/art"
)

const maxErrorBody = 512

// Client represents a Plex API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout sets the HTTP timeout for every call
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new Plex client
func NewClient(baseURL, token string, logger zerolog.Logger, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: plex URL is required", ErrInvalidConfig)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: plex token is required", ErrInvalidConfig)
	}

	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "plex").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// doRequest performs an authenticated request and decodes the MediaContainer
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values) (*mediaContainer, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}

	var env envelope
	if len(body) == 0 {
		return &env.MediaContainer, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &env.MediaContainer, nil
}

// Ping checks the server is reachable and the token is accepted
func (c *Client) Ping(ctx context.Context) (Identity, error) {
	// /identity answers without a token, so check an authenticated path too
	mc, err := c.doRequest(ctx, http.MethodGet, "/identity", nil)
	if err != nil {
		return Identity{}, err
	}
	if _, err := c.doRequest(ctx, http.MethodGet, "/library/sections", nil); err != nil {
		return Identity{}, err
	}

	return Identity{
		MachineIdentifier: mc.MachineIdentifier,
		Version:           mc.Version,
	}, nil
}

// Sections lists every library section
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	mc, err := c.doRequest(ctx, http.MethodGet, "/library/sections", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return mc.Directory, nil
}

// Items lists the top-level items of a section with their guids
func (c *Client) Items(ctx context.Context, section Section) ([]art.MediaItem, error) {
	params := url.Values{}
	params.Set("includeGuids", "1")

	mc, err := c.doRequest(ctx, http.MethodGet, "/library/sections/"+url.PathEscape(section.Key)+"/all", params)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of %q: %w", section.Title, err)
	}

	items := make([]art.MediaItem, 0, len(mc.Metadata))
	for _, md := range mc.Metadata {
		items = append(items, c.toMediaItem(section, md))
	}

	c.logger.Debug().
		Str("library", section.Title).
		Int("count", len(items)).
		Msg("Retrieved library items")

	return items, nil
}

// UploadPoster sets the item's poster to the image at imageURL
func (c *Client) UploadPoster(ctx context.Context, itemID, imageURL string) error {
	return c.upload(ctx, itemID, "posters", imageURL)
}

// UploadBackground sets the item's background to the image at imageURL
func (c *Client) UploadBackground(ctx context.Context, itemID, imageURL string) error {
	return c.upload(ctx, itemID, "arts", imageURL)
}

func (c *Client) upload(ctx context.Context, itemID, kind, imageURL string) error {
	if itemID == "" || imageURL == "" {
		return fmt.Errorf("%w: item id and image url are required", ErrInvalidConfig)
	}

	params := url.Values{}
	params.Set("url", imageURL)

	endpoint := "/library/metadata/" + url.PathEscape(itemID) + "/" + kind
	if _, err := c.doRequest(ctx, http.MethodPost, endpoint, params); err != nil {
		return fmt.Errorf("failed to upload %s for item %s: %w", kind, itemID, err)
	}
	return nil
}

// ArtworkURL turns a server-relative artwork path into a URL Plex itself can
// fetch later, e.g. when restoring a backup
func (c *Client) ArtworkURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path + "?X-Plex-Token=" + url.QueryEscape(c.token)
}

func (c *Client) toMediaItem(section Section, md metadata) art.MediaItem {
	guids := make([]string, 0, len(md.GUIDs)+1)
	if md.GUID != "" {
		guids = append(guids, md.GUID)
	}
	for _, g := range md.GUIDs {
		guids = append(guids, g.ID)
	}

	kind := md.Type
	if kind == "" {
		kind = section.Type
	}

	return art.MediaItem{
		ID:            md.RatingKey,
		Title:         md.Title,
		Year:          md.Year,
		Library:       section.Title,
		Type:          art.MediaType(kind),
		GUIDs:         guids,
		HasPoster:     md.Thumb != "",
		HasBackground: md.Art != "",
		PosterURL:     c.ArtworkURL(md.Thumb),
		BackgroundURL: c.ArtworkURL(md.Art),
	}
}
