// Package plex provides a small client for the Plex Media Server API.
//
// Only the calls posterarr needs are implemented: listing library
// sections, listing the items of a section with their guids, and setting
// an item's poster or background from a remote URL.
//
// # Usage
//
//	client, err := plex.NewClient("http://plex:32400", token, logger)
//	if err != nil {
//		return err
//	}
//	if err := client.Ping(ctx); err != nil {
//		return err
//	}
//	sections, err := client.Sections(ctx)
//
// NewBreaker wraps a client in a circuit breaker so that an unreachable
// server fails fast instead of timing out on every item.
//
// # Error Handling
//
// Non-2xx responses are returned as *APIError, which wraps ErrUnauthorized
// or ErrNotFound where applicable:
//
//	if errors.Is(err, plex.ErrUnauthorized) {
//		// bad token
//	}
package plex
