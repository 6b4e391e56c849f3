package filter

import (
	"maps"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/posterarr/art"
)

// exprFilter implements CompiledFilter using the expr language
type exprFilter struct {
	expression string
	program    *vm.Program
	helpers    map[string]any
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables filter caching with the specified size
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size > 0 {
			c.cache = newLRUCache(size)
		}
	}
}

// NewExprCompiler creates a new expr-based filter compiler
func NewExprCompiler(opts ...ExprCompilerOption) Compiler {
	c := &exprCompiler{
		helperFuncs: createHelperFunctions(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// exprCompiler implements Compiler for expr-based filters
type exprCompiler struct {
	helperFuncs map[string]any
	cache       *lruCache
}

// Compile compiles an expression into an executable filter
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	// Item fields and per-item helpers are bound at run time
	program, err := expr.Compile(expression,
		expr.Env(c.helperFuncs),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		helpers:    c.helperFuncs,
	}

	if c.cache != nil {
		c.cache.Put(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Size()
	}
	return 0
}

// Evaluate evaluates the filter against an item. Items that cause a
// runtime error do not match.
func (f *exprFilter) Evaluate(item art.MediaItem, ids art.ExternalIDs) bool {
	ok, err := f.Check(item, ids)
	return err == nil && ok
}

// Check evaluates the filter and reports runtime errors
func (f *exprFilter) Check(item art.MediaItem, ids art.ExternalIDs) (bool, error) {
	result, err := expr.Run(f.program, createRuntimeEnvironment(f.helpers, item, ids))
	if err != nil {
		return false, &EvaluationError{Expression: f.expression, ItemTitle: item.Title, Err: err}
	}
	return result.(bool), nil
}

// Expression returns the original expression
func (f *exprFilter) Expression() string {
	return f.expression
}

// createHelperFunctions creates the static helper functions used during compilation
func createHelperFunctions() map[string]any {
	funcs := make(map[string]any, 4)

	// contains, startsWith, endsWith and matches are operators in expr
	funcs["lower"] = strings.ToLower
	funcs["upper"] = strings.ToUpper
	funcs["trim"] = strings.TrimSpace

	return funcs
}

// createRuntimeEnvironment binds item data and item helpers on top of the
// static helpers
func createRuntimeEnvironment(helpers map[string]any, item art.MediaItem, ids art.ExternalIDs) map[string]any {
	env := make(map[string]any, len(helpers)+20)
	maps.Copy(env, helpers)

	env["Item"] = item
	env["Title"] = item.Title
	env["Year"] = item.Year
	env["Type"] = string(item.Type)
	env["Library"] = item.Library
	env["HasPoster"] = item.HasPoster
	env["HasBackground"] = item.HasBackground
	env["TMDBID"] = ids.TMDB()
	env["TVDBID"] = ids.TVDB()
	env["IMDBID"] = ids.IMDB()

	env["hasID"] = func(name string) bool {
		return ids.Has(strings.ToLower(name))
	}
	env["isMovie"] = func() bool {
		return item.Type.IsMovie()
	}
	env["isShow"] = func() bool {
		return item.Type.IsShow()
	}
	env["inLibrary"] = func(name string) bool {
		return strings.EqualFold(item.Library, name)
	}
	env["missingArtwork"] = func() bool {
		return !item.HasPoster || !item.HasBackground
	}

	return env
}
