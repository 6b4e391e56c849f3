package art

import (
	"fmt"
	"strconv"
	"strings"
)

// Candidate is one image offered by a provider
type Candidate struct {
	URL   string
	Width int
}

// Field names providers use for the same concept
var (
	urlKeys   = []string{"url", "source", "link", "image"}
	widthKeys = []string{"width", "w", "size"}
)

// CandidateFromMap normalises a raw provider image object. The URL is read
// from the first non-empty of url/source/link/image and the width from the
// first present of width/w/size.
func CandidateFromMap(raw map[string]any) Candidate {
	var c Candidate
	for _, k := range urlKeys {
		if s, ok := raw[k].(string); ok && s != "" {
			c.URL = s
			break
		}
	}
	for _, k := range widthKeys {
		if v, ok := raw[k]; ok && v != nil {
			c.Width = ParseWidth(v)
			break
		}
	}
	return c
}

// ParseWidth converts a numeric or numeric-string width into an int.
// Anything unparseable yields 0.
func ParseWidth(v any) int {
	switch w := v.(type) {
	case int:
		return w
	case int64:
		return int(w)
	case float64:
		return int(w)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return 0
		}
		return n
	case fmt.Stringer:
		return ParseWidth(w.String())
	default:
		return 0
	}
}

// PickBest returns the URL of the widest candidate with Width >= minWidth.
// The first candidate seen wins ties; "" means nothing qualified.
func PickBest(candidates []Candidate, minWidth int) string {
	best := ""
	bestWidth := -1
	for _, c := range candidates {
		if c.URL == "" || c.Width < minWidth {
			continue
		}
		if c.Width > bestWidth {
			best = c.URL
			bestWidth = c.Width
		}
	}
	return best
}
