// Package arr builds an external id index from Radarr and Sonarr so that
// library items whose media server guids lack a provider id can still be
// looked up.
package arr

import (
	"context"
	"fmt"
	"time"

	"golift.io/starr"
	"golift.io/starr/radarr"
	"golift.io/starr/sonarr"
)

// DefaultTimeout for starr API calls
const DefaultTimeout = 30 * time.Second

// RadarrAPI is the subset of the starr Radarr client used here
type RadarrAPI interface {
	GetMovieContext(ctx context.Context, params *radarr.GetMovie) ([]*radarr.Movie, error)
}

// SonarrAPI is the subset of the starr Sonarr client used here
type SonarrAPI interface {
	GetAllSeriesContext(ctx context.Context) ([]*sonarr.Series, error)
}

// NewRadarr creates a Radarr client and checks the connection
func NewRadarr(url, apiKey string) (*radarr.Radarr, error) {
	client := radarr.New(starr.New(apiKey, url, DefaultTimeout))
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Radarr: %w", err)
	}
	return client, nil
}

// NewSonarr creates a Sonarr client and checks the connection
func NewSonarr(url, apiKey string) (*sonarr.Sonarr, error) {
	client := sonarr.New(starr.New(apiKey, url, DefaultTimeout))
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Sonarr: %w", err)
	}
	return client, nil
}
