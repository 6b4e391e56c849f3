package art

import (
	"regexp"
	"strings"
)

// MediaType is the kind of library item
type MediaType string

const (
	MediaTypeMovie      MediaType = "movie"
	MediaTypeShow       MediaType = "show"
	MediaTypeSeason     MediaType = "season"
	MediaTypeEpisode    MediaType = "episode"
	MediaTypeCollection MediaType = "collection"
)

// IsMovie reports whether the item is a movie
func (t MediaType) IsMovie() bool {
	return t == MediaTypeMovie
}

// IsShow reports whether the item is a TV show
func (t MediaType) IsShow() bool {
	return t == MediaTypeShow
}

// MediaItem is a library entry as seen by the resolution engine.
// It is read-only to the engine.
type MediaItem struct {
	ID      string
	Title   string
	Year    int
	Library string
	Type    MediaType

	// GUIDs holds every identifier string the media server reports for the item
	GUIDs []string

	HasPoster     bool
	HasBackground bool
	PosterURL     string
	BackgroundURL string
}

// Provider names used as ExternalIDs keys
const (
	IDTMDB = "tmdb"
	IDTVDB = "tvdb"
	IDIMDB = "imdb"
)

// ExternalIDs maps a provider name to the item's id at that provider
type ExternalIDs map[string]string

var idPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{IDTMDB, regexp.MustCompile(`\b(?:themoviedb|tmdb)://(\d+)`)},
	{IDTVDB, regexp.MustCompile(`\b(?:thetvdb|tvdb)://(\d+)`)},
	{IDIMDB, regexp.MustCompile(`\bimdb://(tt\d+)`)},
}

// ParseExternalIDs extracts provider ids from every identifier string and
// unions them. A later string overrides an earlier one for the same provider.
func ParseExternalIDs(guids ...string) ExternalIDs {
	ids := make(ExternalIDs)
	for _, guid := range guids {
		guid = strings.TrimSpace(guid)
		if guid == "" {
			continue
		}
		for _, p := range idPatterns {
			if m := p.re.FindStringSubmatch(guid); m != nil {
				ids[p.name] = m[1]
			}
		}
	}
	return ids
}

// TMDB returns the TMDb id or ""
func (ids ExternalIDs) TMDB() string { return ids[IDTMDB] }

// TVDB returns the TheTVDB id or ""
func (ids ExternalIDs) TVDB() string { return ids[IDTVDB] }

// IMDB returns the IMDb id or ""
func (ids ExternalIDs) IMDB() string { return ids[IDIMDB] }

// Has reports whether an id is known for the provider
func (ids ExternalIDs) Has(name string) bool {
	return ids[name] != ""
}

// Merge fills ids missing from the receiver with the ones from other.
// Existing ids are kept.
func (ids ExternalIDs) Merge(other ExternalIDs) ExternalIDs {
	out := make(ExternalIDs, len(ids)+len(other))
	for k, v := range other {
		if v != "" {
			out[k] = v
		}
	}
	for k, v := range ids {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Result is the artwork decision for one item. An empty string means the
// field was not found; an all-empty Result means no artwork was found.
type Result struct {
	PosterURL     string `json:"poster_url,omitempty"`
	BackgroundURL string `json:"background_url,omitempty"`
	Source        string `json:"source,omitempty"`

	// Set by the resolver when merging several providers
	PosterSource     string `json:"-"`
	BackgroundSource string `json:"-"`
}

// IsEmpty reports whether neither poster nor background was found
func (r Result) IsEmpty() bool {
	return r.PosterURL == "" && r.BackgroundURL == ""
}
