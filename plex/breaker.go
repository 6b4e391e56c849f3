package plex

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/metrics"
)

const breakerName = "plex"

// BreakerSettings tunes the circuit breaker
type BreakerSettings struct {
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval after which failure counts reset while closed
	Interval time.Duration
	// Timeout spent open before probing again
	Timeout time.Duration
	// ConsecutiveFailures that open the circuit
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings opens after 5 straight failures and tries again
// after a minute
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:         1,
	Interval:            time.Minute,
	Timeout:             time.Minute,
	ConsecutiveFailures: 5,
}

// Breaker wraps a Server with a circuit breaker
type Breaker struct {
	next   Server
	cb     *gobreaker.CircuitBreaker[any]
	logger zerolog.Logger
}

// NewBreaker wraps next. Not-found and unauthorized answers mean the server
// is up and do not count as failures.
func NewBreaker(next Server, settings BreakerSettings, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		next:   next,
		logger: logger.With().Str("component", "plex").Logger(),
	}

	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrUnauthorized) ||
				errors.Is(err, ErrInvalidConfig) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return b
}

// State returns the current breaker state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.BreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.BreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return result, err
}

// Ping implements Server
func (b *Breaker) Ping(ctx context.Context) (Identity, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Ping(ctx)
	})
	if err != nil {
		return Identity{}, err
	}
	return res.(Identity), nil
}

// Sections implements Library
func (b *Breaker) Sections(ctx context.Context) ([]Section, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Sections(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Section), nil
}

// Items implements Library
func (b *Breaker) Items(ctx context.Context, section Section) ([]art.MediaItem, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.Items(ctx, section)
	})
	if err != nil {
		return nil, err
	}
	return res.([]art.MediaItem), nil
}

// UploadPoster implements Uploader
func (b *Breaker) UploadPoster(ctx context.Context, itemID, url string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.UploadPoster(ctx, itemID, url)
	})
	return err
}

// UploadBackground implements Uploader
func (b *Breaker) UploadBackground(ctx context.Context, itemID, url string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.UploadBackground(ctx, itemID, url)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
