// Package filter selects library items with expr-lang expressions.
//
// Expressions see the item's fields (Title, Year, Type, Library,
// HasPoster, HasBackground, TMDBID, TVDBID, IMDBID) and a set of helpers:
//
//	Year >= 2000 and hasID("tmdb")
//	inLibrary("Movies") and not HasPoster
//	isShow() and lower(Title) contains "office"
package filter

import (
	"github.com/s0up4200/posterarr/art"
)

// defaultCompiler is shared by CompileFilter
var defaultCompiler = NewExprCompiler(WithCache(100))

// CompileFilter compiles an expression with the shared caching compiler
func CompileFilter(expression string) (CompiledFilter, error) {
	return defaultCompiler.Compile(expression)
}

// MatchAll is the filter used when no expression is configured
type MatchAll struct{}

// Evaluate implements Filter
func (MatchAll) Evaluate(art.MediaItem, art.ExternalIDs) bool { return true }

// Expression implements CompiledFilter
func (MatchAll) Expression() string { return "" }

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
