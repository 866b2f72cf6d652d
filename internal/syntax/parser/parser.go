// Package parser implements the http file parser.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/scanner"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/token"
)

// ErrParse is a generic parsing error, details on the error are passed
// to the parsers [syntax.ErrorHandler] at the moment it occurs.
var ErrParse = errors.New("parse error")

// Parser is the http file parser.
type Parser struct {
	handler   syntax.ErrorHandler // The error handler
	scanner   *scanner.Scanner    // Scanner to generate tokens
	name      string              // Name of the file being parsed
	src       []byte              // Raw source text
	current   token.Token         // Current token under inspection
	next      token.Token         // Next token in the stream
	hadErrors bool                // Whether we encountered parse errors
}

// New returns a new [Parser].
func New(name string, r io.Reader, handler syntax.ErrorHandler) (*Parser, error) {
	// .http files are smol, it's okay to read the whole thing
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read from input: %w", err)
	}

	p := &Parser{
		handler: handler,
		name:    name,
		src:     src,
		scanner: scanner.New(name, src, handler),
	}

	// Read 2 tokens so current and next are set
	p.advance()
	p.advance()

	return p, nil
}

// Parse parses the file to completion returning a [syntax.File] and any parsing
// errors encountered.
//
// The returned error will simply signify whether or not there were parse errors,
// the error handler passed to [New] should be preferred.
func (p *Parser) Parse() (syntax.File, error) {
	file := syntax.File{
		Name: p.name,
	}

	for p.current.Kind != token.EOF && !p.hadErrors {
		request, ok := p.parseRequest(&file)
		if ok {
			// If it's name is missing, name it after its position in the file (1 indexed)
			if request.Name == "" {
				request.Name = fmt.Sprintf("#%d", 1+len(file.Requests))
			}
			file.Requests = append(file.Requests, request)
		}
		p.advance()
	}

	// The scanner goroutine only exits once all its tokens are consumed
	for p.current.Kind != token.EOF {
		p.advance()
	}

	if p.hadErrors {
		return syntax.File{}, ErrParse
	}

	return file, nil
}

// advance advances the parser by a single token.
func (p *Parser) advance() {
	p.current = p.next
	p.next = p.scanner.Scan()

	if p.current.Kind == token.Error {
		// The scanner has already reported it
		p.hadErrors = true
	}
}

// expect asserts that the next token is one of the given kinds, emitting a syntax error if not.
//
// The parser is advanced only if the next token is of one of these kinds such that after returning
// p.current will be one of the kinds.
func (p *Parser) expect(kinds ...token.Kind) bool {
	if p.next.Kind == token.Error {
		// The scanner has already reported it
		p.hadErrors = true
		return false
	}

	switch len(kinds) {
	case 0:
		return true
	case 1:
		if p.next.Kind != kinds[0] {
			p.errorf("expected %s, got %s", kinds[0], p.next.Kind)
			return false
		}
	default:
		if !slices.Contains(kinds, p.next.Kind) {
			p.errorf("expected one of %v, got %s", kinds, p.next.Kind)
			return false
		}
	}

	p.advance()
	return true
}

// position returns the parser's current position in the input as a [syntax.Position].
//
// The position is calculated based on the start offset of the current token.
func (p *Parser) position() syntax.Position {
	line := 1              // Line counter
	lastNewLineOffset := 0 // The byte offset of the (end of the) last newline seen
	for index, byt := range p.src {
		if index >= p.current.Start {
			break
		}

		if byt == '\n' {
			lastNewLineOffset = index + 1 // +1 to account for len("\n")
			line++
		}
	}

	// If the next token is EOF, we use the end of the current token as the syntax
	// error is likely to be unexpected EOF so we want to point to the end of the
	// current token as in "something should have gone here"
	start := p.current.Start
	end := p.current.End

	// Bodies span multiple lines, only the first is underlined
	if idx := bytes.IndexByte(p.src[start:end], '\n'); idx != -1 {
		end = start + idx
	} else if p.next.Kind == token.EOF {
		start = p.current.End
	}

	startCol := 1 + start - lastNewLineOffset
	endCol := max(1+end-lastNewLineOffset, startCol)

	return syntax.Position{
		Name:     p.name,
		Offset:   p.current.Start,
		Line:     line,
		StartCol: startCol,
		EndCol:   endCol,
	}
}

// error calculates the current position and calls the installed error handler
// with the correct information.
func (p *Parser) error(msg string) {
	p.hadErrors = true

	if p.handler == nil {
		return
	}

	p.handler(p.position(), msg)
}

// errorf calls error with a formatted message.
func (p *Parser) errorf(format string, a ...any) {
	p.error(fmt.Sprintf(format, a...))
}

// text returns the chunk of source text described by the p.current token.
func (p *Parser) text() string {
	return string(p.src[p.current.Start:p.current.End])
}

// parseRequest parses a single request in a http file, along with everything
// that precedes it: the separator, comments, directives, variables and pre-request script.
//
// Variables declared before the first request line of a file that does not start with
// a separator are file level, every other declaration is scoped to its request.
//
// It returns false if the section turned out not to contain a request, e.g. a run of
// trailing comments or two separators back to back.
func (p *Parser) parseRequest(file *syntax.File) (syntax.Request, bool) {
	request := syntax.Request{}
	global := len(file.Requests) == 0

	if p.current.Kind == token.RequestSeparator {
		global = false

		// Does it have a name as in "### {name}"
		if p.next.Kind == token.Text {
			p.advance()
			request.Name = p.text()
		}

		if p.next.Kind == token.RequestSeparator || p.next.Kind == token.EOF {
			return syntax.Request{}, false
		}

		p.advance()
	}

	var comments []string

preamble:
	for {
		switch kind := p.current.Kind; {
		case kind == token.Comment:
			comments = append(comments, p.text())
		case kind == token.Directive:
			p.parseDirective(&request)
		case kind == token.At:
			v, ok := p.parseVar()
			if !ok {
				return syntax.Request{}, false
			}
			if global {
				file.Vars = append(file.Vars, v)
			} else {
				request.Vars = append(request.Vars, v)
			}
		case kind == token.LeftAngle:
			if !p.expect(token.Script, token.Text) {
				return syntax.Request{}, false
			}
			if p.current.Kind == token.Script {
				request.PreScript = p.script()
			} else {
				request.PreScriptFile = p.text()
			}
		case token.IsMethod(kind), kind == token.URL:
			break preamble
		case kind == token.Error:
			return syntax.Request{}, false
		default:
			// Nothing but comments and declarations in this section, which
			// is fine as long as the next thing starts a new one
			if kind != token.RequestSeparator && kind != token.EOF {
				p.errorf("expected a request line, got %s", kind)
			}
			return syntax.Request{}, false
		}

		if p.next.Kind == token.RequestSeparator || p.next.Kind == token.EOF {
			// No request line in this section, let Parse pick up from the separator
			return syntax.Request{}, false
		}

		p.advance()
	}

	request.Comment = strings.Join(comments, "\n")
	request.Line = p.position().Line

	// Request line: [METHOD] URL [HTTP-Version]
	if p.current.Kind == token.URL {
		request.Method = "GET"
	} else {
		request.Method = p.text()
		if !p.expect(token.URL) {
			return syntax.Request{}, false
		}
	}

	p.validateURL(p.text())
	request.URL = p.text()

	if p.next.Kind == token.HTTPVersion {
		p.advance()
		request.HTTPVersion = p.text()
	}

	p.parseHeaders(&request)

	if p.next.Kind == token.Body {
		p.advance()
		request.Body = p.parseBody(request, strings.ReplaceAll(p.text(), "\r\n", "\n"))
	}

	p.parseAfterBody(&request)

	if p.hadErrors {
		return syntax.Request{}, false
	}

	return request, true
}

// parseHeaders parses a run of 'Name: value' header lines, comments and directives
// in between headers are allowed.
func (p *Parser) parseHeaders(request *syntax.Request) {
	for {
		switch p.next.Kind {
		case token.Header:
			p.advance()
			name := p.text()
			p.expect(token.Colon)
			p.expect(token.Text)
			request.Headers = append(request.Headers, syntax.Header{Name: name, Value: p.text()})
		case token.Comment:
			p.advance()
		case token.Directive:
			p.advance()
			p.parseDirective(request)
		default:
			return
		}

		if p.hadErrors {
			return
		}
	}
}

// parseAfterBody parses response handlers and response references.
func (p *Parser) parseAfterBody(request *syntax.Request) {
	for !p.hadErrors {
		switch p.next.Kind {
		case token.RightAngle:
			p.advance()
			if !p.expect(token.Script, token.Text) {
				return
			}
			if p.current.Kind == token.Script {
				request.ResponseHandler = p.script()
			} else {
				request.ResponseHandlerFile = p.text()
			}
		case token.ResponseRef:
			p.advance()
			if !p.expect(token.Text) {
				return
			}
			request.ResponseRef = p.text()
		case token.Comment:
			p.advance()
		case token.Directive:
			p.advance()
			p.parseDirective(request)
		default:
			return
		}
	}
}

// script returns the source of the script block in the current token, without
// the '{%' and '%}' delimiters.
func (p *Parser) script() string {
	src := p.text()
	src = strings.TrimPrefix(src, "{%")
	src = strings.TrimSuffix(src, "%}")
	return strings.TrimSpace(src)
}

// parseVar parses a generic @ident = <value> in either global or request scope.
//
// It assumes p.current is the '@'.
func (p *Parser) parseVar() (syntax.Var, bool) {
	if !p.expect(token.Ident) {
		return syntax.Var{}, false
	}
	name := p.text()

	// Can either be @name = value or @name value
	if p.next.Kind == token.Eq {
		p.advance()
	}

	if !p.expect(token.Text) {
		return syntax.Var{}, false
	}

	return syntax.Var{Name: name, Value: p.text()}, true
}

// parseDirective parses a '# @directive [value]' comment and applies it to the request.
//
// It assumes p.current is the Directive token. Unknown directives are ignored.
func (p *Parser) parseDirective(request *syntax.Request) {
	if !p.expect(token.Ident) {
		return
	}
	name := p.text()

	// Can either be @timeout = 20s or @timeout 20s
	if p.next.Kind == token.Eq {
		p.advance()
	}

	value := ""
	if p.next.Kind == token.Text {
		p.advance()
		value = p.text()
	}

	switch name {
	case "name":
		if value == "" {
			p.error("@name requires a value")
			return
		}
		request.Name = value
	case "timeout":
		request.Timeout = p.parseTimeout(value)
	case "connection-timeout":
		request.ConnectionTimeout = p.parseTimeout(value)
	case "no-redirect":
		request.NoRedirect = true
	case "no-log":
		request.NoLog = true
	case "auto-encoding":
		request.AutoEncoding = true
	case "static-folder":
		if value == "" {
			p.error("@static-folder requires a directory")
			return
		}
		request.StaticFolder = value
	case "response-status":
		status, err := strconv.Atoi(value)
		if err != nil || status < 100 || status > 999 {
			p.errorf("bad response status %q, expected a 3 digit status code", value)
			return
		}
		request.ResponseStatus = status
	}
}

// parseTimeout parses the value of a timeout directive.
//
// A bare number is a number of seconds, anything else must be a valid
// Go duration e.g. "500ms", "2m".
func (p *Parser) parseTimeout(value string) syntax.Duration {
	value = strings.Join(strings.Fields(value), "")

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			p.errorf("bad timeout value: %q is negative", value)
			return 0
		}
		return syntax.Duration(time.Duration(seconds) * time.Second)
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		p.errorf("bad timeout value: %v", err)
		return 0
	}

	return syntax.Duration(duration)
}

// validateURL validates a (possibly templated URL). The validation is on
// a best effort basis.
func (p *Parser) validateURL(raw string) {
	if strings.Contains(raw, "{{") || !strings.Contains(raw, "://") {
		// Templated or relative (e.g. a MOCK_SERVER path), we can't be too strict
		if _, err := url.Parse(raw); err != nil {
			p.errorf("invalid URL: %v", err)
		}
		return
	}

	// If it's not templated it must be a fully valid URL
	if _, err := url.ParseRequestURI(raw); err != nil {
		p.errorf("invalid URL: %v", err)
	}
}

// parseBody splits the raw body text into either content or multipart parts depending
// on the request's Content-Type.
func (p *Parser) parseBody(request syntax.Request, raw string) syntax.Body {
	contentType, _ := request.Header("Content-Type")
	if !syntax.IsMultipart(contentType) {
		return syntax.Body{Content: parseContent(raw)}
	}

	parts, ok := parseParts(raw, syntax.Boundary(contentType))
	if !ok {
		p.errorf("multipart body has no parts delimited by boundary %q", syntax.Boundary(contentType))
		return syntax.Body{}
	}

	for _, part := range parts {
		if part.bad != "" {
			p.errorf("bad multipart field header %q, expected 'Name: value'", part.bad)
			return syntax.Body{}
		}
	}

	body := syntax.Body{Parts: make([]syntax.Part, 0, len(parts))}
	for _, part := range parts {
		body.Parts = append(body.Parts, part.Part)
	}

	return body
}

// parseContent splits body text into inline text and an optional trailing
// '< path' file reference.
func parseContent(raw string) syntax.Content {
	raw = strings.TrimRight(raw, "\n")

	lastLine := raw
	text := ""
	if idx := strings.LastIndexByte(raw, '\n'); idx != -1 {
		lastLine = raw[idx+1:]
		text = raw[:idx]
	}

	if path, ok := fileRef(lastLine); ok {
		return syntax.Content{Text: strings.TrimRight(text, "\n"), File: path}
	}

	return syntax.Content{Text: raw}
}

// fileRef reports whether line is an input file reference e.g. '< ./input.json',
// returning the path if so.
func fileRef(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "<")
	if !ok || rest == "" || (rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}

	path := strings.TrimSpace(rest)
	return path, path != ""
}

// rawPart is a multipart field as split from the body text, bad holds the first
// malformed header line if there was one.
type rawPart struct {
	syntax.Part

	bad string
}

// parseParts splits a multipart body on the boundary delimiter lines.
//
// Text before the first delimiter and after the closing one is ignored. It
// returns false if the body does not contain a single delimiter.
func parseParts(raw, boundary string) ([]rawPart, bool) {
	delimiter := "--" + boundary
	closing := delimiter + "--"

	var (
		parts   []rawPart
		current []string
		inPart  bool
		found   bool
	)

	flush := func() {
		if inPart {
			parts = append(parts, splitPart(current))
		}
		current = nil
	}

	for line := range strings.SplitSeq(raw, "\n") {
		switch strings.TrimSpace(line) {
		case delimiter:
			flush()
			inPart = true
			found = true
		case closing:
			flush()
			inPart = false
			found = true
		default:
			if inPart {
				current = append(current, line)
			}
		}
	}

	flush()

	return parts, found
}

// splitPart splits the lines of a single multipart field into its headers and content.
func splitPart(lines []string) rawPart {
	var part rawPart

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++ // The blank line separates the headers from the content
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			if part.bad == "" {
				part.bad = line
			}
			continue
		}

		part.Headers = append(part.Headers, syntax.Header{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}

	if i < len(lines) {
		part.Content = parseContent(strings.Join(lines[i:], "\n"))
	}

	return part
}
