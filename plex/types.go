package plex

import (
	"github.com/s0up4200/posterarr/art"
)

// Section is a Plex library
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// IsArtworkLibrary reports whether posterarr handles this library type
func (s Section) IsArtworkLibrary() bool {
	return s.Type == string(art.MediaTypeMovie) || s.Type == string(art.MediaTypeShow)
}

type guid struct {
	ID string `json:"id"`
}

// metadata is one item in a section listing
type metadata struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	Type      string `json:"type"`
	GUID      string `json:"guid"`
	GUIDs     []guid `json:"Guid"`
	Thumb     string `json:"thumb"`
	Art       string `json:"art"`
}

type mediaContainer struct {
	Size      int        `json:"size"`
	Directory []Section  `json:"Directory"`
	Metadata  []metadata `json:"Metadata"`

	MachineIdentifier string `json:"machineIdentifier"`
	Version           string `json:"version"`
}

type envelope struct {
	MediaContainer mediaContainer `json:"MediaContainer"`
}

// Identity describes the server answering Ping
type Identity struct {
	MachineIdentifier string
	Version           string
}
