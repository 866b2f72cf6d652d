// Package builtin implements the catalog of built-in dynamic variables available
// inside {{...}} tokens, things like {{$random.uuid}}, {{$timestamp}} or {{$exec("git rev-parse HEAD")}}.
//
// Every built-in is a named [Function] held in a [Catalog], the catalog is built explicitly
// with [Default] rather than on first use.
package builtin

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

// DefaultExecTimeout is how long $exec waits for a command before giving up on it.
const DefaultExecTimeout = 3 * time.Second

var (
	// ErrUnsupportedContext is returned by built-ins that need project information
	// when no project is configured.
	ErrUnsupportedContext = errors.New("built-in is not supported without a project context")

	// ErrUnknown is returned from [Catalog.Exec] when there is no built-in with the given name.
	ErrUnknown = errors.New("unknown built-in")
)

// ArgumentError is returned when a built-in is called with the wrong number
// or wrong kinds of arguments.
type ArgumentError struct {
	Func   string // Name of the built-in e.g. "$random.numeric"
	Usage  string // How it should be called
	Reason string // What was wrong
}

// Error implements the error interface for [ArgumentError].
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("bad arguments to %s: %s (usage: %s)", e.Func, e.Reason, e.Usage)
}

// Project describes the project a .http file lives in.
type Project struct {
	Root      string // The project root directory
	ModuleDir string // The directory of the module containing the file, if known
}

// Context is the ambient information available to a built-in when it is called.
type Context struct {
	Now         func() time.Time // Clock, defaults to time.Now
	Project     *Project         // Optional project information
	BaseDir     string           // Directory of the .http file, relative file paths are resolved against it
	ExecTimeout time.Duration    // How long $exec waits, defaults to DefaultExecTimeout
}

// now returns the current time according to the context's clock.
func (c Context) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// execTimeout returns the configured $exec timeout or the default.
func (c Context) execTimeout() time.Duration {
	if c.ExecTimeout <= 0 {
		return DefaultExecTimeout
	}
	return c.ExecTimeout
}

// Function is a single named built-in.
type Function interface {
	// Name returns the name of the built-in, including the leading '$'.
	Name() string

	// Usage returns a short description of how to call the built-in.
	Usage() string

	// Call invokes the built-in.
	Call(ctx Context, args []variable.Literal) (string, error)
}

// Catalog is a closed set of built-ins looked up by name.
type Catalog struct {
	funcs map[string]Function
}

// New returns a [Catalog] containing exactly the given functions.
func New(funcs ...Function) *Catalog {
	catalog := &Catalog{funcs: make(map[string]Function, len(funcs))}
	for _, fn := range funcs {
		catalog.funcs[normalise(fn.Name())] = fn
	}
	return catalog
}

// Default returns a [Catalog] populated with every built-in.
func Default() *Catalog {
	var funcs []Function
	funcs = append(funcs, randomFuncs()...)
	funcs = append(funcs, fakerFuncs()...)
	funcs = append(funcs, timeFuncs()...)
	funcs = append(funcs, fileFuncs()...)
	funcs = append(funcs, scriptFuncs()...)
	funcs = append(funcs, projectFuncs()...)

	return New(funcs...)
}

// Lookup returns the built-in with the given name, with or without the leading '$'.
func (c *Catalog) Lookup(name string) (Function, bool) {
	if c == nil {
		return nil, false
	}
	fn, ok := c.funcs[normalise(name)]
	return fn, ok
}

// Exec calls the named built-in with args.
func (c *Catalog) Exec(name string, args []variable.Literal, ctx Context) (string, error) {
	fn, ok := c.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return fn.Call(ctx, args)
}

// Names returns the sorted names of every built-in in the catalog.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.funcs))
	for _, fn := range slices.Sorted(maps.Keys(c.funcs)) {
		names = append(names, c.funcs[fn].Name())
	}
	return names
}

// normalise strips the leading '$' from a built-in name.
func normalise(name string) string {
	return strings.TrimPrefix(name, "$")
}

// function is the standard implementation of [Function].
type function struct {
	call  func(ctx Context, args []variable.Literal) (string, error)
	name  string
	usage string
	min   int // Minimum number of arguments
	max   int // Maximum number of arguments, -1 for no limit
}

func (f function) Name() string  { return f.name }
func (f function) Usage() string { return f.usage }

func (f function) Call(ctx Context, args []variable.Literal) (string, error) {
	switch {
	case f.max == f.min && len(args) != f.min:
		return "", f.argError("expected %d argument(s), got %d", f.min, len(args))
	case len(args) < f.min:
		return "", f.argError("expected at least %d argument(s), got %d", f.min, len(args))
	case f.max >= 0 && len(args) > f.max:
		return "", f.argError("expected at most %d argument(s), got %d", f.max, len(args))
	}
	return f.call(ctx, args)
}

// argError builds an [ArgumentError] for f.
func (f function) argError(format string, a ...any) *ArgumentError {
	return &ArgumentError{Func: f.name, Usage: f.usage, Reason: fmt.Sprintf(format, a...)}
}

// intArg returns the integer at args[i].
func (f function) intArg(args []variable.Literal, i int) (int64, error) {
	if args[i].Kind != variable.Int {
		return 0, f.argError("argument %d must be an integer, got %s %q", i+1, args[i].Kind, args[i].Str)
	}
	return args[i].Int, nil
}

// stringArg returns the string at args[i].
func (f function) stringArg(args []variable.Literal, i int) (string, error) {
	if args[i].Kind != variable.String {
		return "", f.argError("argument %d must be a string, got %s %s", i+1, args[i].Kind, args[i].Str)
	}
	return args[i].Str, nil
}

// constant returns a no-argument built-in whose value is computed by fn.
func constant(name, usage string, fn func(ctx Context) string) function {
	return function{
		name:  name,
		usage: usage,
		call: func(ctx Context, _ []variable.Literal) (string, error) {
			return fn(ctx), nil
		},
	}
}
