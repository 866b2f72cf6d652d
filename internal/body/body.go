// Package body materialises request bodies: turning the body of a parsed request into
// the exact bytes sent on the wire, resolving variables and reading referenced files
// along the way.
package body

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
)

const (
	crlf      = "\r\n"
	formType  = "application/x-www-form-urlencoded"
	dashes    = "--"
	partCount = 3 // Segments per multipart field: framing, content, trailing CRLF
)

// ErrTextWithBinaryFile is returned when a body or multipart field has text before a
// reference to a binary file, binary content can only be sent on its own.
var ErrTextWithBinaryFile = errors.New("text cannot be combined with a binary file")

// Kind is the kind of a materialised body.
type Kind int

const (
	None      Kind = iota // None
	Text                  // Text
	Binary                // Binary
	Multipart             // Multipart
)

// String implements [fmt.Stringer] for [Kind].
func (k Kind) String() string {
	switch k {
	case None:
		return "None"
	case Text:
		return "Text"
	case Binary:
		return "Binary"
	case Multipart:
		return "Multipart"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements [encoding.TextMarshaler] for [Kind].
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Resolver resolves variable tokens in text.
type Resolver interface {
	// Resolve replaces the variable tokens in text.
	Resolve(text string) (string, error)

	// BaseDir returns the directory relative file paths are resolved against.
	BaseDir() string
}

// Options control how a body is materialised.
type Options struct {
	AutoEncode bool // URL encode the pairs of a form body
}

// Segment is a contiguous run of body bytes.
type Segment struct {
	Description string `json:"description,omitempty"` // Human readable description of file content e.g. "1.2 kB /data/image.png"
	File        string `json:"file,omitempty"`        // Absolute path of the file the bytes came from, if any
	Bytes       []byte `json:"-"`                     // The raw bytes
}

// Part is a single materialised multipart field.
type Part struct {
	Name        string          `json:"name,omitempty"`        // Field name from Content-Disposition
	Filename    string          `json:"filename,omitempty"`    // Filename from Content-Disposition, if any
	ContentType string          `json:"contentType,omitempty"` // The field's Content-Type, if any
	Headers     []syntax.Header `json:"headers,omitempty"`     // Resolved field headers, in order
	Content     Segment         `json:"content,omitzero"`      // The field content
}

// Result is a materialised body.
type Result struct {
	Text     string    `json:"text,omitempty"`     // The body text, for Kind Text
	Boundary string    `json:"boundary,omitempty"` // The multipart boundary, for Kind Multipart
	Binary   Segment   `json:"binary,omitzero"`    // The file content, for Kind Binary
	Parts    []Part    `json:"parts,omitempty"`    // The fields, for Kind Multipart
	Segments []Segment `json:"-"`                  // Wire segments, for Kind Multipart
	Kind     Kind      `json:"kind"`               // Which kind of body this is
}

// Bytes returns the body exactly as sent on the wire.
func (r Result) Bytes() []byte {
	switch r.Kind {
	case Text:
		return []byte(r.Text)
	case Binary:
		return r.Binary.Bytes
	case Multipart:
		buf := bytes.NewBuffer(make([]byte, 0, r.Len()))
		for _, segment := range r.Segments {
			buf.Write(segment.Bytes)
		}
		return buf.Bytes()
	default:
		return nil
	}
}

// Len returns the length of the body in bytes, the value of the Content-Length header.
func (r Result) Len() int {
	switch r.Kind {
	case Text:
		return len(r.Text)
	case Binary:
		return len(r.Binary.Bytes)
	case Multipart:
		total := 0
		for _, segment := range r.Segments {
			total += len(segment.Bytes)
		}
		return total
	default:
		return 0
	}
}

// Materialize turns body into the bytes to send.
//
// contentType is the resolved Content-Type of the request and decides whether file
// content is treated as text (resolved) or binary (sent as is), and for multipart
// bodies provides the boundary.
func Materialize(body syntax.Body, contentType string, resolver Resolver, options Options) (Result, error) {
	if body.IsZero() {
		return Result{Kind: None}, nil
	}

	if body.IsMultipart() {
		return multipart(body.Parts, syntax.Boundary(contentType), resolver)
	}

	return content(body.Content, contentType, resolver, options)
}

// content materialises a non multipart body.
func content(c syntax.Content, contentType string, resolver Resolver, options Options) (Result, error) {
	text, err := resolveText(c.Text, contentType, resolver, options)
	if err != nil {
		return Result{}, err
	}

	if c.File == "" {
		return Result{Kind: Text, Text: text}, nil
	}

	if text != "" && !IsText(contentType) {
		return Result{}, fmt.Errorf("%w: %s", ErrTextWithBinaryFile, c.File)
	}

	segment, err := readFile(c.File, contentType, resolver, options)
	if err != nil {
		return Result{}, err
	}

	if IsText(contentType) {
		return Result{Kind: Text, Text: join(text, string(segment.Bytes))}, nil
	}

	return Result{Kind: Binary, Binary: segment}, nil
}

// multipart materialises the fields of a multipart body.
func multipart(parts []syntax.Part, boundary string, resolver Resolver) (Result, error) {
	result := Result{
		Kind:     Multipart,
		Boundary: boundary,
		Parts:    make([]Part, 0, len(parts)),
		Segments: make([]Segment, 0, 1+partCount*len(parts)),
	}

	for _, field := range parts {
		part := Part{Headers: make([]syntax.Header, 0, len(field.Headers))}

		framing := &strings.Builder{}
		framing.WriteString(dashes + boundary + crlf)

		for _, header := range field.Headers {
			value, err := resolver.Resolve(header.Value)
			if err != nil {
				return Result{}, fmt.Errorf("multipart header %s: %w", header.Name, err)
			}

			part.Headers = append(part.Headers, syntax.Header{Name: header.Name, Value: value})
			fmt.Fprintf(framing, "%s: %s%s", header.Name, value, crlf)

			switch {
			case strings.EqualFold(header.Name, "Content-Type"):
				part.ContentType = value
			case strings.EqualFold(header.Name, "Content-Disposition"):
				part.Name, part.Filename = disposition(value)
			}
		}

		framing.WriteString(crlf)

		segment, err := fieldContent(field.Content, part.ContentType, resolver)
		if err != nil {
			return Result{}, fmt.Errorf("multipart field %q: %w", part.Name, err)
		}
		part.Content = segment

		result.Parts = append(result.Parts, part)
		result.Segments = append(
			result.Segments,
			Segment{Bytes: []byte(framing.String())},
			segment,
			Segment{Bytes: []byte(crlf)},
		)
	}

	result.Segments = append(result.Segments, Segment{Bytes: []byte(dashes + boundary + dashes)})

	return result, nil
}

// fieldContent materialises the content of a single multipart field.
func fieldContent(c syntax.Content, contentType string, resolver Resolver) (Segment, error) {
	text, err := resolver.Resolve(c.Text)
	if err != nil {
		return Segment{}, err
	}

	if c.File == "" {
		return Segment{Bytes: []byte(text)}, nil
	}

	if text != "" && !IsText(contentType) {
		return Segment{}, fmt.Errorf("%w: %s", ErrTextWithBinaryFile, c.File)
	}

	segment, err := readFile(c.File, contentType, resolver, Options{})
	if err != nil {
		return Segment{}, err
	}

	if text != "" {
		segment.Bytes = append([]byte(text+crlf), segment.Bytes...)
	}

	return segment, nil
}

// readFile reads a referenced file. Text content is resolved, binary content is
// returned as is with a size description.
func readFile(path, contentType string, resolver Resolver, options Options) (Segment, error) {
	path = syntax.FilePath(resolver.BaseDir(), path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Already an *fs.PathError carrying the path
		return Segment{}, fmt.Errorf("could not read body file: %w", err)
	}

	segment := Segment{
		File:        path,
		Description: Describe(len(data), path),
	}

	if !IsText(contentType) {
		segment.Bytes = data
		return segment, nil
	}

	text, err := resolveText(string(data), contentType, resolver, options)
	if err != nil {
		return Segment{}, fmt.Errorf("%s: %w", path, err)
	}
	segment.Bytes = []byte(text)

	return segment, nil
}

// resolveText resolves text and encodes it if it's a form and auto encoding is on.
func resolveText(text, contentType string, resolver Resolver, options Options) (string, error) {
	resolved, err := resolver.Resolve(text)
	if err != nil {
		return "", err
	}

	if options.AutoEncode && mediaType(contentType) == formType {
		resolved = EncodeForm(resolved)
	}

	return resolved, nil
}

// Describe returns the description of size bytes of file content e.g. "1.2 kB /data/image.png".
func Describe(size int, path string) string {
	return humanize.Bytes(uint64(max(size, 0))) + " " + path
}

// EncodeForm URL encodes the keys and values of a form body. Pairs may be split
// over multiple lines, already encoded text is not encoded twice.
func EncodeForm(form string) string {
	var pairs []string
	for pair := range strings.SplitSeq(form, "&") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, hasValue := strings.Cut(pair, "=")
		encoded := encode(key)
		if hasValue {
			encoded += "=" + encode(value)
		}
		pairs = append(pairs, encoded)
	}

	return strings.Join(pairs, "&")
}

// encode query escapes s, unescaping it first if it's already escaped.
func encode(s string) string {
	if unescaped, err := url.QueryUnescape(s); err == nil {
		s = unescaped
	}
	return url.QueryEscape(s)
}

// IsText reports whether content of the given Content-Type is text, and
// therefore may contain variable tokens.
//
// No Content-Type at all is treated as text.
func IsText(contentType string) bool {
	media := mediaType(contentType)
	if media == "" {
		return true
	}

	if strings.HasPrefix(media, "text/") {
		return true
	}

	for _, suffix := range []string{"+json", "+xml", "+yaml"} {
		if strings.HasSuffix(media, suffix) {
			return true
		}
	}

	switch media {
	case "application/json",
		"application/xml",
		"application/javascript",
		"application/x-javascript",
		"application/ecmascript",
		formType,
		"application/graphql",
		"application/yaml",
		"application/x-yaml",
		"application/x-ndjson":
		return true
	default:
		return false
	}
}

// mediaType returns the lower cased media type of a Content-Type, without parameters.
func mediaType(contentType string) string {
	media, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(media))
}

// disposition returns the name and filename parameters of a Content-Disposition.
func disposition(value string) (name, filename string) {
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", ""
	}
	return params["name"], params["filename"]
}

// join joins inline text and file text with a CRLF, either may be empty.
func join(text, file string) string {
	switch {
	case text == "":
		return file
	case file == "":
		return text
	default:
		return text + crlf + file
	}
}
