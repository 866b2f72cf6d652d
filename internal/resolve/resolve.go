// Package resolve implements variable resolution, replacing {{...}} tokens in text
// with their values.
//
// A token is looked up in order in:
//
//  1. Runtime values, set by scripts
//  2. The built-in catalog e.g. {{$uuid}}
//  3. Variables declared in the .http file, request scoped ones shadowing file level ones
//  4. The environment files
//
// Values found in runtime values, file variables and the environment may themselves contain
// tokens, these are resolved recursively. Built-in results are inserted as is.
package resolve

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matoboco/IJ-HttpClient/internal/builtin"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/variable"
	"go.followtheprocess.codes/log"
)

// DefaultMaxDepth is the default bound on how deeply values may refer to other values.
const DefaultMaxDepth = 16

// UnresolvedError is returned by a strict [Resolver] when text contains tokens
// that could not be resolved.
type UnresolvedError struct {
	Names []string // Names of the unresolved tokens, in order of first appearance
}

// Error implements the error interface for [UnresolvedError].
func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved variable(s): %s", strings.Join(e.Names, ", "))
}

// Environment is the source of environment variables.
type Environment interface {
	// Lookup returns the raw value of key in the selected environment as seen from baseDir.
	Lookup(key, selected, baseDir string) (string, bool)
}

// Option is a functional option for configuring a [Resolver].
type Option func(r *Resolver)

// WithRuntime sets the runtime values, these take precedence over everything else.
func WithRuntime(values map[string]string) Option {
	return func(r *Resolver) {
		r.runtime = values
	}
}

// WithCatalog sets the built-in catalog, without one no built-ins are available.
func WithCatalog(catalog *builtin.Catalog) Option {
	return func(r *Resolver) {
		r.catalog = catalog
	}
}

// WithVars sets the declared variables in declaration order, file level
// variables first followed by the request's own.
func WithVars(vars ...[]syntax.Var) Option {
	return func(r *Resolver) {
		r.vars = slices.Concat(vars...)
	}
}

// WithEnvironment sets the environment store and the selected environment name.
func WithEnvironment(environment Environment, selected string) Option {
	return func(r *Resolver) {
		r.env = environment
		r.selected = selected
	}
}

// WithBaseDir sets the directory of the .http file, used for environment lookups
// and relative paths in built-ins.
func WithBaseDir(dir string) Option {
	return func(r *Resolver) {
		r.baseDir = dir
	}
}

// WithContext sets the context passed to built-ins.
func WithContext(ctx builtin.Context) Option {
	return func(r *Resolver) {
		r.ctx = ctx
	}
}

// WithLogger sets the logger, unresolved tokens are logged at debug level.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithStrict makes unresolved tokens an error rather than leaving them in place.
func WithStrict(strict bool) Option {
	return func(r *Resolver) {
		r.strict = strict
	}
}

// WithMaxDepth sets the recursion bound, values < 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// Resolver resolves variable tokens in text.
//
// A Resolver holds no mutable state of its own and is safe for concurrent use
// provided the runtime map passed to [WithRuntime] is not written to concurrently.
type Resolver struct {
	env      Environment       // Environment variables, may be nil
	runtime  map[string]string // Script produced values
	catalog  *builtin.Catalog  // Built-ins, may be nil
	logger   *log.Logger       // Debug logging, may be nil
	selected string            // Selected environment
	baseDir  string            // Directory of the .http file
	vars     []syntax.Var      // Declared variables, in order
	ctx      builtin.Context   // Context for built-ins
	maxDepth int               // Recursion bound
	strict   bool              // Error on unresolved tokens
}

// New returns a new [Resolver] configured with options.
func New(options ...Option) *Resolver {
	r := &Resolver{maxDepth: DefaultMaxDepth}
	for _, option := range options {
		option(r)
	}

	if r.ctx.BaseDir == "" {
		r.ctx.BaseDir = r.baseDir
	}

	return r
}

// With returns a copy of the resolver with options applied on top of its own.
func (r *Resolver) With(options ...Option) *Resolver {
	clone := *r
	for _, option := range options {
		option(&clone)
	}

	if clone.ctx.BaseDir == "" {
		clone.ctx.BaseDir = clone.baseDir
	}

	return &clone
}

// BaseDir returns the directory relative paths are resolved against.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Resolve replaces every resolvable token in text with its value.
//
// Unresolved tokens are left as written unless the resolver is strict, in which case
// an [*UnresolvedError] is returned. An error from a built-in is returned as is.
func (r *Resolver) Resolve(text string) (string, error) {
	state := &state{unresolved: make(map[string]struct{})}

	resolved, err := r.resolve(text, state, len(r.vars), nil)
	if err != nil {
		return "", err
	}

	if r.strict && len(state.names) > 0 {
		return "", &UnresolvedError{Names: state.names}
	}

	return resolved, nil
}

// Lookup resolves the single variable name as if it were written {{name}}, reporting
// whether it was found.
func (r *Resolver) Lookup(name string) (string, bool, error) {
	state := &state{unresolved: make(map[string]struct{})}
	return r.lookup(variable.Token{Name: name}, state, len(r.vars), nil)
}

// state tracks a single call to Resolve.
type state struct {
	unresolved map[string]struct{} // Set of unresolved names
	names      []string            // Unresolved names in order of appearance
}

// miss records an unresolved token.
func (s *state) miss(name string) {
	if _, seen := s.unresolved[name]; seen {
		return
	}
	s.unresolved[name] = struct{}{}
	s.names = append(s.names, name)
}

// resolve replaces the tokens in text, limit is the number of declared variables
// visible and stack holds the names currently being resolved.
func (r *Resolver) resolve(text string, state *state, limit int, stack []string) (string, error) {
	tokens := variable.Parse(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var err error
	resolved := variable.Replace(text, tokens, func(tok variable.Token) (string, bool) {
		if err != nil {
			return "", false
		}

		value, ok, lookupErr := r.lookup(tok, state, limit, stack)
		if lookupErr != nil {
			err = lookupErr
			return "", false
		}

		if !ok {
			r.debug("unresolved variable", "name", tok.Name)
			state.miss(tok.Name)
		}

		return value, ok
	})

	if err != nil {
		return "", err
	}

	return resolved, nil
}

// lookup finds the value of a single token.
func (r *Resolver) lookup(tok variable.Token, state *state, limit int, stack []string) (string, bool, error) {
	name := tok.Name

	if len(stack) >= r.maxDepth || slices.Contains(stack, name) {
		r.debug("variable refers to itself", "name", name, "chain", strings.Join(stack, " -> "))
		return "", false, nil
	}

	if !tok.Call {
		if value, ok := r.runtime[name]; ok {
			return r.expand(name, value, state, limit, stack)
		}
	}

	if _, ok := r.catalog.Lookup(name); ok {
		value, err := r.catalog.Exec(name, tok.Args, r.ctx)
		if err != nil {
			return "", false, fmt.Errorf("could not evaluate {{%s}}: %w", name, err)
		}
		return value, true, nil
	}

	if tok.Call {
		// Only built-ins can be called
		return "", false, nil
	}

	for i := min(limit, len(r.vars)) - 1; i >= 0; i-- {
		if r.vars[i].Name == name {
			// A declaration only sees the ones before it
			return r.expand(name, r.vars[i].Value, state, i, stack)
		}
	}

	if r.env != nil {
		if value, ok := r.env.Lookup(name, r.selected, r.baseDir); ok {
			return r.expand(name, value, state, limit, stack)
		}
	}

	return "", false, nil
}

// expand resolves the tokens inside the value of name.
func (r *Resolver) expand(name, value string, state *state, limit int, stack []string) (string, bool, error) {
	resolved, err := r.resolve(value, state, limit, append(slices.Clip(stack), name))
	if err != nil {
		return "", false, err
	}
	return resolved, true, nil
}

// debug logs at debug level if there is a logger.
func (r *Resolver) debug(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, kv...)
	}
}
