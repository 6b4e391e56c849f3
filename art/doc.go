// Package art holds the domain types shared by the resolution engine:
// library items, their external ids, candidate images and the merged
// artwork result.
//
// # Identifiers
//
// Media servers describe an item through one or more identifier strings
// (Plex calls them guids). ParseExternalIDs scans every string for
// provider-prefixed tokens and unions the ids it finds:
//
//	ids := art.ParseExternalIDs(
//		"plex://movie/5d7768",
//		"tmdb://550",
//		"com.plexapp.agents.themoviedb://550?lang=en",
//		"imdb://tt0137523",
//	)
//	ids.TMDB() // "550"
//	ids.IMDB() // "tt0137523"
//
// # Image selection
//
// PickBest returns the URL of the widest candidate whose width is at least
// the requested minimum. Candidates without a URL are ignored and the first
// candidate wins ties.
package art
