// Package fetch implements the HTTP client shared by all artwork providers.
//
// A Fetcher paces requests per host, refuses to contact a provider that is
// on cooldown, counts every request sent against the provider's daily quota
// and retries transient failures with jittered exponential backoff.
// Rate limiting and credential failures put the provider on cooldown.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/metrics"
	"github.com/s0up4200/posterarr/quota"
	"github.com/s0up4200/posterarr/ratelimit"
)

// Defaults
const (
	DefaultMaxAttempts       = 4
	DefaultMaxBackoff        = 30 * time.Second
	DefaultRateLimitCooldown = 30 * time.Minute
	DefaultAuthCooldown      = 12 * time.Hour
	DefaultTimeout           = 30 * time.Second

	maxBodySize = 10 << 20
)

var rateLimitBody = regexp.MustCompile(`(?i)(rate|request)[ _-]?limit`)

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithMaxAttempts sets how many times a transient failure is tried
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithMaxBackoff caps a single backoff sleep
func WithMaxBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		f.maxBackoff = d
	}
}

// WithCooldowns sets the suspension lengths for rate limiting and
// credential failures
func WithCooldowns(rateLimited, unauthorized time.Duration) Option {
	return func(f *Fetcher) {
		if rateLimited > 0 {
			f.rateLimitCooldown = rateLimited
		}
		if unauthorized > 0 {
			f.authCooldown = unauthorized
		}
	}
}

// WithSleep replaces the backoff sleep
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// WithJitter replaces the random source used for backoff jitter. It must
// return values in [0, 1).
func WithJitter(jitter func() float64) Option {
	return func(f *Fetcher) {
		f.jitter = jitter
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// Fetcher performs provider HTTP requests
type Fetcher struct {
	client    *http.Client
	limits    *ratelimit.Registry
	cooldowns *cooldown.Registry
	quota     *quota.Tracker
	logger    zerolog.Logger

	mu    sync.RWMutex
	hosts map[string]string

	maxAttempts       int
	maxBackoff        time.Duration
	rateLimitCooldown time.Duration
	authCooldown      time.Duration
	userAgent         string
	sleep             func(ctx context.Context, d time.Duration) error
	jitter            func() float64
}

// New creates a Fetcher. Any of limits, cooldowns and tracker may be nil.
func New(limits *ratelimit.Registry, cooldowns *cooldown.Registry, tracker *quota.Tracker, logger zerolog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:            &http.Client{Timeout: DefaultTimeout},
		limits:            limits,
		cooldowns:         cooldowns,
		quota:             tracker,
		logger:            logger.With().Str("component", "fetch").Logger(),
		hosts:             make(map[string]string),
		maxAttempts:       DefaultMaxAttempts,
		maxBackoff:        DefaultMaxBackoff,
		rateLimitCooldown: DefaultRateLimitCooldown,
		authCooldown:      DefaultAuthCooldown,
		userAgent:         "posterarr",
		sleep:             sleepContext,
		jitter:            rand.Float64,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterHost attributes requests to host to provider
func (f *Fetcher) RegisterHost(host, provider string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts[host] = provider
}

// ProviderFor returns the provider a host belongs to, or the host itself
func (f *Fetcher) ProviderFor(host string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if p, ok := f.hosts[host]; ok {
		return p
	}
	return host
}

// Get performs a GET request with optional query parameters and headers
func (f *Fetcher) Get(ctx context.Context, rawURL string, query url.Values, header http.Header) (*Response, error) {
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &Error{Provider: "unknown", URL: rawURL, Err: err}
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}
	return f.Do(ctx, http.MethodGet, rawURL, nil, header)
}

// Do performs a request, retrying transient failures
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Provider: "unknown", URL: rawURL, Err: err}
	}
	host := u.Hostname()
	provider := f.ProviderFor(host)
	safeURL := redact(u)

	fail := func(err error) (*Response, error) {
		return nil, &Error{Provider: provider, URL: safeURL, Err: err}
	}

	if f.cooldowns != nil {
		if st := f.cooldowns.Check(provider); st.OnCooldown {
			return fail(fmt.Errorf("%w (%s, %s remaining)", ErrCoolingDown, st.Reason, st.Remaining.Round(time.Second)))
		}
	}

	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if f.limits != nil {
			if err := f.limits.Wait(ctx, host); err != nil {
				return fail(err)
			}
		}

		resp, retryAfter, err := f.attempt(ctx, method, u.String(), body, header, provider, true)
		switch {
		case err == nil:
			return resp, nil
		case ctx.Err() != nil:
			return fail(ctx.Err())
		case !isRetryable(err):
			return fail(err)
		}

		lastErr = err
		if attempt == f.maxAttempts-1 {
			break
		}

		wait := f.backoff(attempt, retryAfter)
		f.logger.Debug().
			Err(err).
			Str("provider", provider).
			Str("url", safeURL).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Transient provider failure, retrying")
		if err := f.sleep(ctx, wait); err != nil {
			return fail(err)
		}
	}

	return fail(fmt.Errorf("%w after %d attempts: %w", ErrExhausted, f.maxAttempts, lastErr))
}

// DoOnce sends a single request without retries. It ignores and never sets
// provider cooldowns and does not count toward the daily quota, so
// credential checks can try several endpoints of one provider.
func (f *Fetcher) DoOnce(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Provider: "unknown", URL: rawURL, Err: err}
	}
	provider := f.ProviderFor(u.Hostname())

	if f.limits != nil {
		if err := f.limits.Wait(ctx, u.Hostname()); err != nil {
			return nil, &Error{Provider: provider, URL: redact(u), Err: err}
		}
	}
	resp, _, err := f.attempt(ctx, method, u.String(), body, header, provider, false)
	if err != nil {
		return nil, &Error{Provider: provider, URL: redact(u), Err: err}
	}
	return resp, nil
}

// attempt sends a single request and classifies the outcome. retryAfter
// is the server's requested delay for retryable statuses. Cooldowns and
// quota are only touched when track is set.
func (f *Fetcher) attempt(ctx context.Context, method, rawURL string, body []byte, header http.Header, provider string, track bool) (*Response, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", f.userAgent)

	if track && f.quota != nil {
		f.quota.Increment(provider)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(provider, metrics.OutcomeRetry, time.Since(start))
		return nil, 0, &transientError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordProviderRequest(provider, metrics.OutcomeRetry, elapsed)
		return nil, 0, &transientError{err: fmt.Errorf("failed to read response body: %w", err)}
	}

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		metrics.RecordProviderRequest(provider, metrics.OutcomeSuccess, elapsed)
		return &Response{StatusCode: code, Header: resp.Header, Body: data}, 0, nil

	case code == http.StatusTooManyRequests || rateLimitBody.Match(data):
		metrics.RecordProviderRequest(provider, metrics.OutcomeRateLimited, elapsed)
		d := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if d <= 0 {
			d = f.rateLimitCooldown
		}
		if track {
			f.suspend(provider, d, cooldown.ReasonRateLimited)
		}
		return nil, 0, fmt.Errorf("%w: status %d", ErrRateLimited, code)

	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		metrics.RecordProviderRequest(provider, metrics.OutcomeAuthFailed, elapsed)
		if track {
			f.suspend(provider, f.authCooldown, cooldown.ReasonAuthFailed)
		}
		return nil, 0, fmt.Errorf("%w: status %d", ErrUnauthorized, code)

	case code == http.StatusNotFound:
		metrics.RecordProviderRequest(provider, metrics.OutcomeNotFound, elapsed)
		return nil, 0, ErrNotFound
	}

	statusErr := &StatusError{StatusCode: code, Body: truncate(string(data), 200)}
	if statusErr.IsRetryable() {
		metrics.RecordProviderRequest(provider, metrics.OutcomeRetry, elapsed)
		return nil, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), statusErr
	}
	metrics.RecordProviderRequest(provider, metrics.OutcomeError, elapsed)
	return nil, 0, statusErr
}

func (f *Fetcher) suspend(provider string, d time.Duration, reason string) {
	if f.cooldowns == nil {
		return
	}
	if f.cooldowns.Set(provider, d, reason) {
		metrics.ProviderCooldowns.WithLabelValues(provider, reason).Inc()
	}
}

// backoff returns min(max(retryAfter, 1s) * (1 + 0.25*jitter) * 2^attempt, maxBackoff)
func (f *Fetcher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	base := max(retryAfter, time.Second)
	d := float64(base) * (1 + 0.25*f.jitter()) * math.Pow(2, float64(attempt))
	if f.maxBackoff > 0 && d > float64(f.maxBackoff) {
		return f.maxBackoff
	}
	return time.Duration(d)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.IsRetryable()
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// redact drops the query string, which carries API keys
func redact(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	cp.User = nil
	return cp.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
