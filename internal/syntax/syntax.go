// Package syntax handles parsing the raw .http file text into meaningful
// data structures and implements the tokeniser and parser as well as some
// language level integration tests.
package syntax

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.followtheprocess.codes/hue"
)

// An ErrorHandler may be provided to parts of the parsing pipeline. If a syntax error is encountered and
// a non-nil handler was provided, it is called with the position info and error message.
type ErrorHandler func(pos Position, msg string)

// Position is an arbitrary source file position including file, line
// and column information. It can also express a range of source via StartCol
// and EndCol, this is useful for error reporting.
//
// Position's without filenames are considered invalid, in the case of stdin
// the string "stdin" may be used.
type Position struct {
	Name     string // Filename
	Offset   int    // Byte offset of the position from the start of the file
	Line     int    // Line number (1 indexed)
	StartCol int    // Start column (1 indexed)
	EndCol   int    // End column (1 indexed), EndCol == StartCol when pointing to a single character
}

// IsValid reports whether the [Position] describes a valid source position.
//
// The rules are:
//
//   - At least Name, Line and StartCol must be set (and non zero)
//   - EndCol cannot be 0, it's only allowed values are StartCol or any number greater than StartCol
func (p Position) IsValid() bool {
	if p.Name == "" || p.Line < 1 || p.StartCol < 1 || p.EndCol < 1 || (p.EndCol >= 1 && p.EndCol < p.StartCol) {
		return false
	}
	return true
}

// String returns a string representation of a [Position].
//
// It is formatted such that most text editors/terminals will be able to support clicking on it
// and navigating to the position.
//
// Depending on which fields are set, the string returned will be different:
//
//   - "file:line:start-end": valid position pointing to a range of text on the line
//   - "file:line:start": valid position pointing to a single character on the line (EndCol == StartCol)
//
// At least Name, Line and StartCol must be present for a valid position, and Line and StarCol must be > 0. If not, an error
// string will be returned.
func (p Position) String() string {
	if !p.IsValid() {
		return fmt.Sprintf(
			"BadPosition: {Name: %q, Line: %d, StartCol: %d, EndCol: %d}",
			p.Name,
			p.Line,
			p.StartCol,
			p.EndCol,
		)
	}

	if p.StartCol == p.EndCol {
		// No range, just a single position
		return fmt.Sprintf("%s:%d:%d", p.Name, p.Line, p.StartCol)
	}

	return fmt.Sprintf("%s:%d:%d-%d", p.Name, p.Line, p.StartCol, p.EndCol)
}

// Duration is a [time.Duration] but more JSON friendly.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// Var is a single "@name = value" variable declaration.
//
// Declarations are kept in order as a value may only refer to
// variables declared before it.
type Var struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header is a single request or multipart field header.
//
// Headers are kept in declaration order and the same name may appear more than once.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Content is a chunk of body content: inline text, a file reference ("< ./input.json") or
// inline text followed by a file reference, in which case the file content is appended.
type Content struct {
	Text string `json:"text,omitempty"` // Inline text, may contain variable tokens
	File string `json:"file,omitempty"` // Path of a file to read the content from (relative to the .http file)
}

// IsZero reports whether c has no content at all.
func (c Content) IsZero() bool {
	return c.Text == "" && c.File == ""
}

// Part is a single field of a multipart body.
type Part struct {
	Headers []Header `json:"headers,omitempty"` // Field headers e.g. Content-Disposition
	Content Content  `json:"content,omitzero"`  // The field content
}

// Body is a request body. At most one of Content and Parts is set.
type Body struct {
	Content Content `json:"content,omitzero"` // Text and/or file body
	Parts   []Part  `json:"parts,omitempty"`  // Multipart fields, in wire order
}

// IsZero reports whether the request has no body.
func (b Body) IsZero() bool {
	return b.Content.IsZero() && len(b.Parts) == 0
}

// IsMultipart reports whether the body is a multipart body.
func (b Body) IsMultipart() bool {
	return len(b.Parts) != 0
}

// DefaultBoundary is the multipart boundary used when a multipart Content-Type
// does not declare one.
const DefaultBoundary = "boundary"

// IsMultipart reports whether contentType is a multipart media type.
func IsMultipart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
}

// Boundary returns the boundary parameter of a multipart Content-Type, or
// [DefaultBoundary] if there isn't one.
func Boundary(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err == nil && params["boundary"] != "" {
		return params["boundary"]
	}

	// Templated content types aren't always valid media types, fall back to
	// looking for the parameter by hand
	idx := strings.Index(strings.ToLower(contentType), "boundary=")
	if idx == -1 {
		return DefaultBoundary
	}

	boundary, _, _ := strings.Cut(contentType[idx+len("boundary="):], ";")
	boundary = strings.Trim(strings.TrimSpace(boundary), `"`)
	if boundary == "" {
		return DefaultBoundary
	}

	return boundary
}

// File represents a single .http file as parsed.
//
// It is *nearly* concrete but may have variable interpolation still to evaluate
// in a number of fields, URLs may not be valid etc. This is a structured
// populated from the as-parsed text.
type File struct {
	Name     string    `json:"name,omitempty"`     // Name of the file
	Vars     []Var     `json:"vars,omitempty"`     // Global variables defined at the top level, e.g. base url
	Requests []Request `json:"requests,omitempty"` // 1 or more HTTP requests
}

// Request is a single HTTP request as parsed from a .http file.
type Request struct {
	Name                string   `json:"name,omitempty"`                // Optional name, if empty request should be named after it's index e.g. "#1"
	Comment             string   `json:"comment,omitempty"`             // Free text from comment lines above the request
	Method              string   `json:"method,omitempty"`              // The HTTP method e.g. "GET", "POST", "WEBSOCKET"
	URL                 string   `json:"url,omitempty"`                 // The complete URL, may have variable interpolation e.g. {{base}} or not be valid
	HTTPVersion         string   `json:"httpVersion,omitempty"`         // Version of the HTTP protocol to use e.g. HTTP/1.1
	PreScript           string   `json:"preScript,omitempty"`           // Pre-request script source, from "< {% ... %}"
	PreScriptFile       string   `json:"preScriptFile,omitempty"`       // Pre-request script file, from "< ./script.js"
	ResponseHandler     string   `json:"responseHandler,omitempty"`     // Response handler script source, from "> {% ... %}"
	ResponseHandlerFile string   `json:"responseHandlerFile,omitempty"` // Response handler script file, from "> ./handler.js"
	ResponseRef         string   `json:"responseRef,omitempty"`         // If a response reference was provided, this is it's filepath (relative to the .http file)
	StaticFolder        string   `json:"staticFolder,omitempty"`        // Static folder served by a MOCK_SERVER request
	Vars                []Var    `json:"vars,omitempty"`                // Request scoped variables, override globals if specified
	Headers             []Header `json:"headers,omitempty"`             // Request headers, may have variable interpolation in values
	Body                Body     `json:"body,omitzero"`                 // Request body
	Line                int      `json:"line,omitempty"`                // Line of the request line in the file
	ResponseStatus      int      `json:"responseStatus,omitempty"`      // Status code served by a MOCK_SERVER request
	Timeout             Duration `json:"timeout,omitempty"`             // Request specific timeout
	ConnectionTimeout   Duration `json:"connectionTimeout,omitempty"`   // Request specific connection timeout
	NoRedirect          bool     `json:"noRedirect,omitempty"`          // Disable following redirects on this specific request
	NoLog               bool     `json:"noLog,omitempty"`               // Don't log the response
	AutoEncoding        bool     `json:"autoEncoding,omitempty"`        // URL encode query parameters and form bodies
}

// Header returns the value of the first header called name (case insensitive) and
// whether it was present.
func (r Request) Header(name string) (string, bool) {
	for _, header := range r.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value, true
		}
	}
	return "", false
}

// FilePath resolves a path written in a .http file against the directory of that file.
//
// Absolute paths, including Windows style paths with a drive letter, are returned as is.
func FilePath(baseDir, path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || hasDriveLetter(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// hasDriveLetter reports whether path starts with a drive letter like "C:".
func hasDriveLetter(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}
	c := path[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// PrettyConsoleHandler returns a [ErrorHandler] that formats the syntax error for
// display on the terminal to a user.
func PrettyConsoleHandler(w io.Writer) ErrorHandler {
	return func(pos Position, msg string) {
		fmt.Fprintf(w, "%s: %s\n\n", pos, msg)

		contents, err := os.ReadFile(pos.Name)
		if err != nil {
			fmt.Fprintf(w, "unable to show src context: %v\n", err)
			return
		}

		lines := bytes.Split(contents, []byte("\n"))

		const contextLines = 3

		startLine := max(pos.Line-contextLines, 1)
		endLine := min(pos.Line+contextLines, len(lines))

		for i, line := range lines {
			i++ // Lines are 1 indexed
			if i >= startLine && i <= endLine {
				margin := fmt.Sprintf("%d | ", i)
				fmt.Fprintf(w, "%s%s\n", margin, line)
				if i == pos.Line {
					hue.Red.Fprintf(
						w,
						"%s%s\n",
						strings.Repeat(" ", len(margin)+pos.StartCol-1),
						strings.Repeat("─", max(pos.EndCol-pos.StartCol, 1)),
					)
				}
			}
		}
	}
}
