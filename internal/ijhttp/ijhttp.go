// Package ijhttp implements the actual functionality exposed via the CLI.
package ijhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/matoboco/IJ-HttpClient/internal/builtin"
	"github.com/matoboco/IJ-HttpClient/internal/env"
	"github.com/matoboco/IJ-HttpClient/internal/render"
	"github.com/matoboco/IJ-HttpClient/internal/resolve"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/parser"
	"go.followtheprocess.codes/log"
	"go.followtheprocess.codes/msg"
)

// IJHTTP holds the state of the program.
type IJHTTP struct {
	stdout io.Writer   // Normal program output is written here
	stderr io.Writer   // Logs and debug info
	logger *log.Logger // Structured logger writing to stderr
}

// New returns a new instance of [IJHTTP].
func New(stdout, stderr io.Writer, debug bool) IJHTTP {
	level := log.LevelInfo
	if debug {
		level = log.LevelDebug
	}

	return IJHTTP{
		stdout: stdout,
		stderr: stderr,
		logger: log.New(stderr, log.WithLevel(level)),
	}
}

// ResolveOptions control how variables are resolved, they are shared by every
// subcommand that resolves requests.
type ResolveOptions struct {
	Env         string // The selected environment e.g. "dev"
	ProjectRoot string // Where the upwards search for environment files stops
	Strict      bool   // Unresolved variables are an error rather than left in place
}

// Check implements the `ijhttp check` subcommand.
//
// Arguments may be file paths or doublestar globs e.g. "requests/**/*.http", every
// matching file is checked even if an earlier one fails.
func (i IJHTTP) Check(patterns []string) error {
	files, err := expand(patterns)
	if err != nil {
		return err
	}

	failed := 0
	for _, file := range files {
		if _, err := i.parse(file); err != nil {
			i.logger.Debug("check failed", "file", file, "err", err)
			failed++
			continue
		}

		msg.Fsuccess(i.stdout, "%s is valid", file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) contain syntax errors", failed, len(files))
	}

	return nil
}

// ShowOptions are the flags passed to the `ijhttp show` subcommand.
type ShowOptions struct {
	ResolveOptions
	Resolve bool // Resolve variables and do replacements
	JSON    bool // Output the file in JSON
}

// Show implements the `ijhttp show` subcommand.
func (i IJHTTP) Show(file string, options ShowOptions) error {
	raw, err := i.parse(file)
	if err != nil {
		return err
	}

	if options.Resolve {
		resolved, err := spec.ResolveFile(raw, i.resolver(file, options.ResolveOptions))
		if err != nil {
			return err
		}

		if options.JSON {
			return encode(i.stdout, resolved)
		}

		texts := make([]string, 0, len(resolved.Requests))
		for _, request := range resolved.Requests {
			texts = append(texts, strings.TrimSpace(render.Raw(request)))
		}

		fmt.Fprintln(i.stdout, strings.Join(texts, "\n\n"))
		return nil
	}

	if options.JSON {
		return encode(i.stdout, raw)
	}

	showTemplate(i.stdout, raw)
	return nil
}

// Env implements the `ijhttp env` subcommand.
//
// It lists the environments visible from the file and, if one is selected, its
// merged variables.
func (i IJHTTP) Env(file string, options ResolveOptions) error {
	dir, err := baseDir(file)
	if err != nil {
		return err
	}

	store := env.New(i.logger, options.ProjectRoot)

	names := store.Environments(dir)
	if len(names) == 0 {
		msg.Fwarn(i.stdout, "no environments found for %s", file)
		return nil
	}

	for _, name := range names {
		marker := " "
		if name == options.Env {
			marker = "*"
		}
		fmt.Fprintf(i.stdout, "%s %s\n", marker, name)
	}

	if options.Env == "" {
		return nil
	}

	if !slices.Contains(names, options.Env) {
		return fmt.Errorf("environment %q not found, expected one of %s", options.Env, strings.Join(names, ", "))
	}

	values := store.Snapshot(options.Env, dir)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	fmt.Fprintln(i.stdout)
	for _, key := range keys {
		fmt.Fprintf(i.stdout, "%s = %s\n", key, values[key])
	}

	return nil
}

// CurlOptions are the flags passed to the `ijhttp curl` subcommand.
type CurlOptions struct {
	ResolveOptions
	Raw bool // Render the raw request text rather than a curl command
}

// Curl implements the `ijhttp curl` subcommand.
func (i IJHTTP) Curl(file, name string, options CurlOptions) error {
	raw, err := i.parse(file)
	if err != nil {
		return err
	}

	request, err := find(raw, file, name)
	if err != nil {
		return err
	}

	resolver := i.resolver(file, options.ResolveOptions).With(resolve.WithVars(raw.Vars, request.Vars))

	resolved, err := spec.Resolve(request, resolver)
	if err != nil {
		return err
	}

	mode := render.ModeCurl
	if options.Raw {
		mode = render.ModeRaw
	}

	fmt.Fprintln(i.stdout, strings.TrimRight(render.Render(resolved, mode), "\r\n"))
	return nil
}

// parse opens and parses a .http file, syntax errors are reported to stderr.
func (i IJHTTP) parse(file string) (syntax.File, error) {
	f, err := os.Open(file)
	if err != nil {
		return syntax.File{}, err
	}
	defer f.Close()

	p, err := parser.New(file, f, syntax.PrettyConsoleHandler(i.stderr))
	if err != nil {
		return syntax.File{}, err
	}

	raw, err := p.Parse()
	if err != nil {
		return syntax.File{}, fmt.Errorf("%w: %s is not valid http syntax", err, file)
	}

	return raw, nil
}

// resolver returns the base resolver for requests in file.
func (i IJHTTP) resolver(file string, options ResolveOptions) *resolve.Resolver {
	dir, err := baseDir(file)
	if err != nil {
		dir = filepath.Dir(file)
	}

	root := options.ProjectRoot
	if root == "" {
		root = dir
	}

	return resolve.New(
		resolve.WithCatalog(builtin.Default()),
		resolve.WithEnvironment(env.New(i.logger, options.ProjectRoot), options.Env),
		resolve.WithBaseDir(dir),
		resolve.WithContext(builtin.Context{
			BaseDir: dir,
			Project: &builtin.Project{Root: root},
		}),
		resolve.WithLogger(i.logger),
		resolve.WithStrict(options.Strict),
	)
}

// find returns the request called name from a parsed file.
func find(raw syntax.File, file, name string) (syntax.Request, error) {
	for _, request := range raw.Requests {
		if request.Name == name {
			return request, nil
		}
	}

	names := make([]string, 0, len(raw.Requests))
	for _, request := range raw.Requests {
		names = append(names, request.Name)
	}

	return syntax.Request{}, fmt.Errorf("%s does not contain request %q, it has: %s", file, name, strings.Join(names, ", "))
}

// baseDir returns the absolute directory containing file.
func baseDir(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("could not resolve path of %s: %w", file, err)
	}
	return filepath.Dir(abs), nil
}

// expand expands doublestar glob patterns into file paths, patterns that aren't
// globs are passed through so missing files are reported when opened.
func expand(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			files = append(files, pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}

		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, errors.New("no files to check")
	}

	return files, nil
}

// encode writes v as indented JSON.
func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// showTemplate writes a summary of an unresolved file.
func showTemplate(w io.Writer, file syntax.File) {
	for _, v := range file.Vars {
		fmt.Fprintf(w, "@%s = %s\n", v.Name, v.Value)
	}

	for index, request := range file.Requests {
		if index > 0 || len(file.Vars) > 0 {
			fmt.Fprintln(w)
		}

		fmt.Fprintf(w, "### %s\n", request.Name)
		for _, v := range request.Vars {
			fmt.Fprintf(w, "@%s = %s\n", v.Name, v.Value)
		}

		line := request.Method + " " + request.URL
		if request.HTTPVersion != "" {
			line += " " + request.HTTPVersion
		}
		fmt.Fprintln(w, line)

		for _, header := range request.Headers {
			fmt.Fprintf(w, "%s: %s\n", header.Name, header.Value)
		}

		switch {
		case request.Body.IsMultipart():
			fmt.Fprintf(w, "\n<multipart body, %d part(s)>\n", len(request.Body.Parts))
		case !request.Body.IsZero():
			fmt.Fprintln(w)
			if request.Body.Content.Text != "" {
				fmt.Fprintln(w, request.Body.Content.Text)
			}
			if request.Body.Content.File != "" {
				fmt.Fprintf(w, "< %s\n", request.Body.Content.File)
			}
		}
	}
}

// Requests returns the resolved requests in file, unresolvable variables are left in place.
//
// A request that fails to resolve, say its body file is missing, is still returned with
// its method and URL as written so it can be picked, sending it reports the failure.
func (i IJHTTP) Requests(file string, options ResolveOptions) ([]spec.Request, error) {
	raw, err := i.parse(file)
	if err != nil {
		return nil, err
	}

	options.Strict = false
	base := i.resolver(file, options)

	requests := make([]spec.Request, 0, len(raw.Requests))
	for _, request := range raw.Requests {
		resolved, err := spec.Resolve(request, base.With(resolve.WithVars(raw.Vars, request.Vars)))
		if err != nil {
			i.logger.Warn("could not resolve request", "file", file, "request", request.Name, "err", err)
			resolved = spec.Request{Name: request.Name, Method: request.Method, URL: request.URL}
		}

		requests = append(requests, resolved)
	}

	return requests, nil
}
