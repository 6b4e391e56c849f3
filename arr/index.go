package arr

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golift.io/starr/radarr"

	"github.com/s0up4200/posterarr/art"
)

// Index maps any known provider id of a movie or series to its full id set
type Index struct {
	radarr RadarrAPI
	sonarr SonarrAPI
	logger zerolog.Logger

	mu     sync.RWMutex
	movies map[string]art.ExternalIDs // "tmdb:550", "imdb:tt0137523"
	series map[string]art.ExternalIDs // "tvdb:81189", "imdb:tt0903747"
}

// NewIndex creates an empty index. Either source may be nil.
func NewIndex(radarrAPI RadarrAPI, sonarrAPI SonarrAPI, logger zerolog.Logger) *Index {
	return &Index{
		radarr: radarrAPI,
		sonarr: sonarrAPI,
		logger: logger.With().Str("component", "arr").Logger(),
		movies: make(map[string]art.ExternalIDs),
		series: make(map[string]art.ExternalIDs),
	}
}

// Load replaces the index with the current Radarr and Sonarr libraries
func (x *Index) Load(ctx context.Context) error {
	movies := make(map[string]art.ExternalIDs)
	series := make(map[string]art.ExternalIDs)

	g, ctx := errgroup.WithContext(ctx)

	if x.radarr != nil {
		g.Go(func() error {
			list, err := x.radarr.GetMovieContext(ctx, &radarr.GetMovie{})
			if err != nil {
				return fmt.Errorf("failed to get movies: %w", err)
			}
			for _, m := range list {
				ids := art.ExternalIDs{}
				if m.TmdbID > 0 {
					ids[art.IDTMDB] = strconv.FormatInt(m.TmdbID, 10)
				}
				if m.ImdbID != "" {
					ids[art.IDIMDB] = m.ImdbID
				}
				addAll(movies, ids)
			}
			x.logger.Debug().Int("count", len(list)).Msg("Indexed Radarr movies")
			return nil
		})
	}

	if x.sonarr != nil {
		g.Go(func() error {
			list, err := x.sonarr.GetAllSeriesContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to get series: %w", err)
			}
			for _, s := range list {
				ids := art.ExternalIDs{}
				if s.TvdbID > 0 {
					ids[art.IDTVDB] = strconv.FormatInt(s.TvdbID, 10)
				}
				if s.ImdbID != "" {
					ids[art.IDIMDB] = s.ImdbID
				}
				addAll(series, ids)
			}
			x.logger.Debug().Int("count", len(list)).Msg("Indexed Sonarr series")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	x.mu.Lock()
	x.movies = movies
	x.series = series
	x.mu.Unlock()

	return nil
}

// Enrich fills ids missing from ids using the index entry that matches any
// of them. Ids already present are never replaced.
func (x *Index) Enrich(kind art.MediaType, ids art.ExternalIDs) art.ExternalIDs {
	x.mu.RLock()
	defer x.mu.RUnlock()

	table := x.movies
	if kind.IsShow() {
		table = x.series
	}

	for _, name := range []string{art.IDTMDB, art.IDTVDB, art.IDIMDB} {
		id := ids[name]
		if id == "" {
			continue
		}
		if known, ok := table[key(name, id)]; ok {
			return ids.Merge(known)
		}
	}
	return ids
}

// Len returns the number of indexed movies and series
func (x *Index) Len() (movies, series int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return countDistinct(x.movies), countDistinct(x.series)
}

func addAll(table map[string]art.ExternalIDs, ids art.ExternalIDs) {
	if len(ids) == 0 {
		return
	}
	for name, id := range ids {
		table[key(name, id)] = ids
	}
}

// countDistinct counts entries by their first id key
func countDistinct(table map[string]art.ExternalIDs) int {
	n := 0
	for k, ids := range table {
		for _, name := range []string{art.IDTMDB, art.IDTVDB, art.IDIMDB} {
			if id := ids[name]; id != "" {
				if key(name, id) == k {
					n++
				}
				break
			}
		}
	}
	return n
}

func key(name, id string) string {
	return name + ":" + id
}
