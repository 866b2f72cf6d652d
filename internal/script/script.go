// Package script runs the JavaScript pre-request scripts and response handlers
// embedded in .http files.
//
// Scripts run in a fresh goja runtime with a small API modelled on the one editors
// provide for .http files:
//
//	request.variables.set(name, value)   // Request scoped runtime variable
//	request.variables.get(name)
//	request.environment.get(name)        // Value from the selected environment
//	client.global.set(name, value)       // Runtime variable shared by every request in the session
//	client.global.get(name)
//	client.global.clear(name)
//	client.global.clearAll()
//	client.global.isEmpty()
//	client.log(...args)
//	client.test(name, fn)
//	client.assert(condition, message)
//	response.status
//	response.body                        // Parsed JSON for JSON responses, the text otherwise
//	response.headers.valueOf(name)
//	response.headers.valuesOf(name)
//	response.contentType.mimeType
//	response.contentType.charset
//	console.log(...args)
//
// Values set with request.variables and client.global become runtime values for
// variable resolution, taking precedence over everything else.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"go.followtheprocess.codes/log"
)

// ErrInterrupted is returned when a script is stopped because its context was cancelled.
var ErrInterrupted = errors.New("script interrupted")

// Globals holds the client.global values, shared by every request in a session.
//
// Globals is safe for concurrent use.
type Globals struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewGlobals returns an empty [Globals].
func NewGlobals() *Globals {
	return &Globals{values: make(map[string]string)}
}

// Get returns the global called name.
func (g *Globals) Get(name string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	value, ok := g.values[name]
	return value, ok
}

// Set sets the global called name.
func (g *Globals) Set(name, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[name] = value
}

// Clear removes the global called name.
func (g *Globals) Clear(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.values, name)
}

// ClearAll removes every global.
func (g *Globals) ClearAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.values)
}

// Snapshot returns a copy of the globals.
func (g *Globals) Snapshot() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return maps.Clone(g.values)
}

// Runtime returns the runtime values for resolving a request: the globals overlaid
// with the request's own variables.
func (g *Globals) Runtime(vars map[string]string) map[string]string {
	runtime := g.Snapshot()
	if runtime == nil {
		runtime = make(map[string]string, len(vars))
	}
	maps.Copy(runtime, vars)
	return runtime
}

// Environment looks up a value in the selected environment.
type Environment func(name string) (string, bool)

// Response is what a response handler sees of the response.
type Response struct {
	Headers http.Header // Response headers
	Body    []byte      // Response body
	Status  int         // Status code
}

// TestResult is the outcome of a single client.test or client.assert.
type TestResult struct {
	Name    string        // Name of the test
	Message string        // Failure message, if any
	Elapsed time.Duration // How long it took
	Passed  bool          // Whether it passed
}

// Runner runs scripts.
type Runner struct {
	logger  *log.Logger // console.log and client.log go here
	globals *Globals    // client.global
	env     Environment // request.environment, may be nil
}

// New returns a new [Runner].
func New(logger *log.Logger, globals *Globals, env Environment) *Runner {
	if globals == nil {
		globals = NewGlobals()
	}

	return &Runner{
		logger:  logger,
		globals: globals,
		env:     env,
	}
}

// Globals returns the runner's client.global values.
func (r *Runner) Globals() *Globals {
	return r.globals
}

// PreRequest runs a pre-request script, returning the request variables it set.
//
// vars are the request variables already set, they are visible to the script
// through request.variables.get.
func (r *Runner) PreRequest(ctx context.Context, source string, vars map[string]string) (map[string]string, error) {
	variables := maps.Clone(vars)
	if variables == nil {
		variables = make(map[string]string)
	}

	api := &api{runner: r, variables: variables}

	if err := r.run(ctx, source, api, nil); err != nil {
		return nil, fmt.Errorf("pre-request script: %w", err)
	}

	return variables, nil
}

// ResponseHandler runs a response handler script against response, returning the
// results of any tests it declared.
func (r *Runner) ResponseHandler(ctx context.Context, source string, response Response) ([]TestResult, error) {
	api := &api{runner: r, variables: make(map[string]string)}

	if err := r.run(ctx, source, api, &response); err != nil {
		return api.results, fmt.Errorf("response handler: %w", err)
	}

	return api.results, nil
}

// run executes source in a fresh runtime, interrupting it if ctx is cancelled.
func (r *Runner) run(ctx context.Context, source string, api *api, response *Response) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	vm := goja.New()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if err := api.bind(vm, response); err != nil {
		return err
	}

	if _, err := vm.RunString(source); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
		}
		return err
	}

	return nil
}

// Load returns the source of a script given either inline or as a file, file paths
// are relative to baseDir.
func Load(inline, file, baseDir string) (string, error) {
	if file == "" {
		return inline, nil
	}

	contents, err := os.ReadFile(syntax.FilePath(baseDir, file))
	if err != nil {
		return "", fmt.Errorf("could not read script: %w", err)
	}

	return string(contents), nil
}

// api is the script facing API for a single run.
type api struct {
	runner    *Runner
	variables map[string]string
	results   []TestResult
}

// bind installs the API into vm.
func (a *api) bind(vm *goja.Runtime, response *Response) error {
	request := map[string]any{
		"variables": map[string]any{
			"set": func(name string, value goja.Value) {
				a.variables[name] = value.String()
			},
			"get": func(name string) any {
				if value, ok := a.variables[name]; ok {
					return value
				}
				return nil
			},
		},
		"environment": map[string]any{
			"get": func(name string) any {
				if a.runner.env == nil {
					return nil
				}
				if value, ok := a.runner.env(name); ok {
					return value
				}
				return nil
			},
		},
	}

	globals := a.runner.globals
	client := map[string]any{
		"global": map[string]any{
			"set": func(name string, value goja.Value) {
				globals.Set(name, value.String())
			},
			"get": func(name string) any {
				if value, ok := globals.Get(name); ok {
					return value
				}
				return nil
			},
			"clear":    globals.Clear,
			"clearAll": globals.ClearAll,
			"isEmpty": func() bool {
				return len(globals.Snapshot()) == 0
			},
		},
		"log":    a.log,
		"test":   a.test,
		"assert": a.assert,
	}

	console := map[string]any{
		"log":   a.log,
		"info":  a.log,
		"warn":  a.warn,
		"error": a.error,
	}

	for name, value := range map[string]any{"request": request, "client": client, "console": console} {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("could not bind %s: %w", name, err)
		}
	}

	if response != nil {
		if err := vm.Set("response", responseAPI(vm, *response)); err != nil {
			return fmt.Errorf("could not bind response: %w", err)
		}
	}

	return nil
}

// log implements client.log and console.log.
func (a *api) log(call goja.FunctionCall) goja.Value {
	a.runner.logger.Info(join(call), "source", "script")
	return goja.Undefined()
}

// warn implements console.warn.
func (a *api) warn(call goja.FunctionCall) goja.Value {
	a.runner.logger.Warn(join(call), "source", "script")
	return goja.Undefined()
}

// error implements console.error.
func (a *api) error(call goja.FunctionCall) goja.Value {
	a.runner.logger.Error(join(call), "source", "script")
	return goja.Undefined()
}

// test implements client.test, a failing test is recorded rather than stopping the script.
func (a *api) test(name string, fn goja.Callable) {
	start := time.Now()
	result := TestResult{Name: name, Passed: true}

	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("panic: %v", r)
		}
		result.Elapsed = time.Since(start)
		a.results = append(a.results, result)
	}()

	if fn == nil {
		result.Passed = false
		result.Message = "client.test requires a function argument"
		return
	}

	if _, err := fn(goja.Undefined()); err != nil {
		result.Passed = false
		result.Message = err.Error()
	}
}

// assert implements client.assert.
func (a *api) assert(condition bool, message string) {
	name := message
	if name == "" {
		name = "assert"
	}

	result := TestResult{Name: name, Passed: condition}
	if !condition {
		result.Message = message
	}

	a.results = append(a.results, result)
}

// responseAPI builds the response object seen by a response handler.
func responseAPI(vm *goja.Runtime, response Response) map[string]any {
	contentType := response.Headers.Get("Content-Type")
	mimeType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mimeType = contentType
	}

	var body any = string(response.Body)
	if strings.HasSuffix(mimeType, "json") {
		var parsed any
		if err := json.Unmarshal(response.Body, &parsed); err == nil {
			body = vm.ToValue(parsed)
		}
	}

	return map[string]any{
		"status": response.Status,
		"body":   body,
		"headers": map[string]any{
			"valueOf": func(name string) any {
				if values := response.Headers.Values(name); len(values) > 0 {
					return values[0]
				}
				return nil
			},
			"valuesOf": func(name string) []string {
				values := response.Headers.Values(name)
				if values == nil {
					return []string{}
				}
				return values
			},
		},
		"contentType": map[string]any{
			"mimeType": mimeType,
			"charset":  params["charset"],
		},
	}
}

// join joins the arguments of a call with spaces, like console.log.
func join(call goja.FunctionCall) string {
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, " ")
}
