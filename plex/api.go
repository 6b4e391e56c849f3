package plex

import (
	"context"

	"github.com/s0up4200/posterarr/art"
)

// Library enumerates a media server's libraries and items
type Library interface {
	Sections(ctx context.Context) ([]Section, error)
	Items(ctx context.Context, section Section) ([]art.MediaItem, error)
}

// Uploader sets an item's artwork from a remote URL
type Uploader interface {
	UploadPoster(ctx context.Context, itemID, url string) error
	UploadBackground(ctx context.Context, itemID, url string) error
}

// Server is everything posterarr needs from a media server
type Server interface {
	Library
	Uploader
	Ping(ctx context.Context) (Identity, error)
}

var (
	_ Server = (*Client)(nil)
	_ Server = (*Breaker)(nil)
)
