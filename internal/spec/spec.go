// Package spec provides the [File] and [Request] data structure which together represent
// a .http file.
//
// They differ from their counterparts in the syntax package in that they are "resolved". This means:
//   - Variable interpolation e.g. `{{...}}` has been performed
//   - The body has been materialised into the exact bytes to send
//   - Default configuration has been put in place if not provided in the raw file
//
// This resolution means that the requests described can be correctly made via http, rendered
// as curl commands or served by the mock server without resolving anything again.
package spec

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/body"
	"github.com/matoboco/IJ-HttpClient/internal/resolve"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
)

const (
	DefaultConnectionTimeout = 10 * time.Second // Default connection timeout for HTTP requests
	DefaultTimeout           = 30 * time.Second // Default overall timeout for HTTP requests
	DefaultResponseStatus    = http.StatusOK    // Default status served by a mock server request
)

// ErrConflictingContentLength is returned when a request declares an explicit Content-Length
// header as well as a body, the length of a materialised body is always computed.
var ErrConflictingContentLength = errors.New("explicit Content-Length header conflicts with request body")

// ResolveFile converts a [syntax.File] to a [File], resolving every request.
//
// Each request gets its own view of base with the file's variables followed by
// its own, so request variables never leak between requests.
func ResolveFile(in syntax.File, base *resolve.Resolver) (File, error) {
	resolved := File{
		Name:     in.Name,
		Requests: make([]Request, 0, len(in.Requests)),
	}

	for _, request := range in.Requests {
		resolver := base.With(resolve.WithVars(in.Vars, request.Vars))

		req, err := Resolve(request, resolver)
		if err != nil {
			return File{}, err
		}

		resolved.Requests = append(resolved.Requests, req)
	}

	return resolved, nil
}

// Resolve converts a [syntax.Request] to a [Request], resolving variables in the URL,
// headers and body and materialising the body.
//
// Every variable is resolved exactly once, with resolver, the result is never re-resolved.
func Resolve(in syntax.Request, resolver body.Resolver) (Request, error) {
	// All stuff that needs no transformation
	resolved := Request{
		Name:              in.Name,
		Comment:           in.Comment,
		Method:            in.Method,
		HTTPVersion:       in.HTTPVersion,
		Line:              in.Line,
		Timeout:           time.Duration(in.Timeout),
		ConnectionTimeout: time.Duration(in.ConnectionTimeout),
		ResponseStatus:    in.ResponseStatus,
		NoRedirect:        in.NoRedirect,
		NoLog:             in.NoLog,
	}

	if resolved.Method == "" {
		resolved.Method = http.MethodGet
	}

	rawURL, err := resolver.Resolve(in.URL)
	if err != nil {
		return Request{}, fmt.Errorf("could not resolve request %s: URL: %w", in.Name, err)
	}

	if in.AutoEncoding {
		rawURL = encodeQuery(rawURL)
	}

	if err = validateURL(resolved.Method, rawURL); err != nil {
		return Request{}, fmt.Errorf("invalid URL for request %s: %w", in.Name, err)
	}

	resolved.URL = rawURL

	if len(in.Headers) > 0 {
		resolved.Headers = make([]Header, 0, len(in.Headers))
	}

	for _, header := range in.Headers {
		value, err := resolver.Resolve(header.Value)
		if err != nil {
			return Request{}, fmt.Errorf("could not resolve request %s: header %s: %w", in.Name, header.Name, err)
		}

		resolved.Headers = append(resolved.Headers, Header{Name: header.Name, Value: value})
	}

	if _, ok := resolved.Header("Content-Length"); ok && !in.Body.IsZero() {
		return Request{}, fmt.Errorf("request %s: %w", in.Name, ErrConflictingContentLength)
	}

	contentType, _ := resolved.Header("Content-Type")

	resolved.Body, err = body.Materialize(in.Body, contentType, resolver, body.Options{AutoEncode: in.AutoEncoding})
	if err != nil {
		return Request{}, fmt.Errorf("could not resolve request %s: body: %w", in.Name, err)
	}

	if resolved.ResponseRef, err = resolvePath(in.ResponseRef, resolver); err != nil {
		return Request{}, fmt.Errorf("could not resolve request %s: response reference: %w", in.Name, err)
	}

	if resolved.StaticFolder, err = resolvePath(in.StaticFolder, resolver); err != nil {
		return Request{}, fmt.Errorf("could not resolve request %s: static folder: %w", in.Name, err)
	}

	// Ensure we have sensible defaults if none were set
	if resolved.Timeout == 0 {
		resolved.Timeout = DefaultTimeout
	}

	if resolved.ConnectionTimeout == 0 {
		resolved.ConnectionTimeout = DefaultConnectionTimeout
	}

	if resolved.ResponseStatus == 0 {
		resolved.ResponseStatus = DefaultResponseStatus
	}

	return resolved, nil
}

// validateURL checks a resolved URL is usable for the method.
func validateURL(method, rawURL string) error {
	switch method {
	case MethodMock:
		// Mock servers declare a path, optionally as part of a full URL
		_, err := url.Parse(rawURL)
		return err
	case MethodWebSocket:
		u, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
			return nil
		default:
			return fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
		}
	default:
		_, err := url.ParseRequestURI(rawURL)
		return err
	}
}

// encodeQuery URL encodes the query parameters of rawURL.
func encodeQuery(rawURL string) string {
	rest, fragment, hasFragment := strings.Cut(rawURL, "#")

	base, query, hasQuery := strings.Cut(rest, "?")
	if !hasQuery {
		return rawURL
	}

	encoded := base + "?" + body.EncodeForm(query)
	if hasFragment {
		encoded += "#" + fragment
	}

	return encoded
}

// resolvePath resolves the variables in a path written in the .http file and makes it
// relative to the file's directory.
func resolvePath(path string, resolver body.Resolver) (string, error) {
	if path == "" {
		return "", nil
	}

	resolved, err := resolver.Resolve(path)
	if err != nil {
		return "", err
	}

	return syntax.FilePath(resolver.BaseDir(), resolved), nil
}
