// Package scanner implements the lexical scanner for .http files.
package scanner

import (
	"bytes"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/token"
)

const (
	bufferSize = 32       // Benchmarking suggests this as the best token buffer size
	eof        = rune(-1) // eof signifies we have reached the end of the input
)

var (
	bom          = []byte("\ufeff")
	separator    = []byte("###")
	scriptOpen   = []byte("{%")
	scriptClose  = []byte("%}")
	httpVersion  = []byte(" HTTP/")
	responseRef  = []byte("<>")
	slashComment = []byte("//")
)

// scanFn represents the state of the scanner as a function that returns the next state.
type scanFn func(*Scanner) scanFn

// Scanner is the http file scanner.
type Scanner struct {
	handler   syntax.ErrorHandler // The error handler, if any
	tokens    chan token.Token    // Channel on which to emit scanned tokens
	name      string              // Name of the file
	src       []byte              // Raw source text
	start     int                 // The start position of the current token
	pos       int                 // Current scanner position in src (bytes, 0 indexed)
	line      int                 // Current line number (1 indexed)
	lineStart int                 // Offset at which the current line started
}

// New returns a new [Scanner] that reads from r.
//
// The scanner runs in its own goroutine, callers must call [Scanner.Scan] until
// it returns a [token.EOF] token so that it can exit.
func New(name string, src []byte, handler syntax.ErrorHandler) *Scanner {
	s := &Scanner{
		handler: handler,
		tokens:  make(chan token.Token, bufferSize),
		name:    name,
		src:     src,
		line:    1,
	}

	if bytes.HasPrefix(src, bom) {
		s.pos = len(bom)
		s.start = s.pos
		s.lineStart = s.pos
	}

	// run terminates when the scanning state machine is finished and all the tokens
	// drained from s.tokens so no wg.Add needed here
	go s.run()
	return s
}

// Scan scans the input and returns the next token.
//
// Once the input is exhausted, Scan returns [token.EOF] forever.
func (s *Scanner) Scan() token.Token {
	tok, ok := <-s.tokens
	if !ok {
		return token.Token{Kind: token.EOF, Start: len(s.src), End: len(s.src)}
	}
	return tok
}

// next returns, and consumes, the next character in the input or [eof].
func (s *Scanner) next() rune {
	if s.pos >= len(s.src) {
		return eof
	}

	char, width := utf8.DecodeRune(s.src[s.pos:])
	if char == utf8.RuneError && width == 1 {
		s.errorf("invalid utf8 char: %U", char)
		// Advance to the end to prevent cascade errors
		s.pos = len(s.src)
		return eof
	}

	s.pos += width
	if char == '\n' {
		s.line++
		s.lineStart = s.pos
	}

	return char
}

// char returns the character the scanner is currently sat on or [eof].
func (s *Scanner) char() rune {
	if s.pos >= len(s.src) {
		return eof
	}
	char, _ := utf8.DecodeRune(s.src[s.pos:])
	return char
}

// rest returns the rest of src, starting from the current position.
func (s *Scanner) rest() []byte {
	if s.pos >= len(s.src) {
		return nil
	}
	return s.src[s.pos:]
}

// restOfLine returns the rest of the current line, not including the line terminator.
func (s *Scanner) restOfLine() []byte {
	rest := s.rest()
	if idx := bytes.IndexByte(rest, '\n'); idx != -1 {
		rest = rest[:idx]
	}
	return bytes.TrimSuffix(rest, []byte("\r"))
}

// skip ignores any characters for which the predicate returns true, stopping at the
// first one that returns false such that after it returns, s.char returns the
// first 'false' char.
//
// The scanner start position is brought up to the current position before returning, effectively
// ignoring everything it's travelled over in the meantime.
func (s *Scanner) skip(predicate func(r rune) bool) {
	for s.char() != eof && predicate(s.char()) {
		s.next()
	}
	s.start = s.pos
}

// advance consumes n bytes worth of characters.
func (s *Scanner) advance(n int) {
	target := s.pos + n
	for s.pos < target && s.char() != eof {
		s.next()
	}
}

// toLineEnd consumes everything up to, but not including, the next '\n' or eof.
func (s *Scanner) toLineEnd() {
	for s.char() != '\n' && s.char() != eof {
		s.next()
	}
}

// nextLine consumes the rest of the current line including the '\n' and ignores it.
func (s *Scanner) nextLine() {
	s.toLineEnd()
	if s.char() == '\n' {
		s.next()
	}
	s.start = s.pos
}

// atBlankLine reports whether the rest of the current line is only whitespace.
func (s *Scanner) atBlankLine() bool {
	return len(bytes.TrimSpace(s.restOfLine())) == 0
}

// emit passes a token over the tokens channel, using the scanner's internal
// state to populate position information.
func (s *Scanner) emit(kind token.Kind) {
	s.tokens <- token.Token{
		Kind:  kind,
		Start: s.start,
		End:   s.pos,
	}
	s.start = s.pos
}

// emitTrimmed is like emit but trailing whitespace is not included in the token.
func (s *Scanner) emitTrimmed(kind token.Kind) {
	end := s.pos
	for end > s.start && isSpaceByte(s.src[end-1]) {
		end--
	}
	s.tokens <- token.Token{
		Kind:  kind,
		Start: s.start,
		End:   end,
	}
	s.start = s.pos
}

// run starts the state machine for the scanner, it runs with each [scanFn] returning the next
// state until one returns nil (typically an error or eof), at which point the tokens channel
// is closed as a signal to the receiver that no more tokens will be sent.
func (s *Scanner) run() {
	for state := scanStart; state != nil; {
		state = state(s)
	}
	s.tokens <- token.Token{Kind: token.EOF, Start: s.pos, End: s.pos}
	close(s.tokens)
}

// error calculates the position information and arranges for s.handler to be called
// with the information.
func (s *Scanner) error(msg string) {
	if s.handler == nil {
		return
	}

	// Column is the number of bytes between the last newline and the current position
	// +1 because columns are 1 indexed
	startCol := 1 + s.start - s.lineStart
	endCol := 1 + s.pos - s.lineStart

	if startCol < 1 {
		startCol = 1
	}
	if endCol < startCol {
		endCol = startCol
	}

	position := syntax.Position{
		Name:     s.name,
		Offset:   s.start,
		Line:     s.line,
		StartCol: startCol,
		EndCol:   endCol,
	}

	s.handler(position, msg)
}

// errorf calls error with a formatted message.
func (s *Scanner) errorf(format string, a ...any) {
	s.error(fmt.Sprintf(format, a...))
}

// fail reports a syntax error, emits an error token and stops the state machine.
func (s *Scanner) fail(format string, a ...any) scanFn {
	s.errorf(format, a...)
	s.emit(token.Error)
	return nil
}

// isComment reports whether the scanner is sat at the start of a comment.
func (s *Scanner) isComment() bool {
	return s.char() == '#' || bytes.HasPrefix(s.rest(), slashComment)
}

// scanStart is the initial state of the scanner, and the state between requests.
//
// Everything that can precede a request line is handled here: separators, comments,
// directives, variables and pre-request scripts.
func scanStart(s *Scanner) scanFn {
	s.skip(unicode.IsSpace)

	switch {
	case s.char() == eof:
		return nil // Break the state machine
	case bytes.HasPrefix(s.rest(), separator):
		return scanRequestSep
	case s.isComment():
		s.comment()
		return scanStart
	case s.char() == '@':
		return scanVar
	case s.char() == '<':
		return scanPreScript
	default:
		return scanRequestLine
	}
}

// scanRequestSep scans the literal '###' request separator.
//
// A request separator may either be followed by a '\n' or
// a line of arbitrary text which is the name of the request.
func scanRequestSep(s *Scanner) scanFn {
	for s.char() == '#' {
		s.next()
	}

	s.emit(token.RequestSeparator)

	// If we have any text on the same line, it's the request name
	s.skip(isLineSpace)
	if !s.atBlankLine() {
		s.toLineEnd()
		s.emitTrimmed(token.Text)
	}

	s.nextLine()
	return scanStart
}

// comment scans a single '#' or '//' comment line, which may be a directive
// like '# @name Login' or '// @no-redirect'.
func (s *Scanner) comment() {
	if s.char() == '#' {
		s.next()
	} else {
		s.advance(len(slashComment))
	}

	s.skip(isLineSpace)

	if s.char() != '@' {
		// Plain comment, the token is the comment text
		s.toLineEnd()
		s.emitTrimmed(token.Comment)
		s.nextLine()
		return
	}

	s.next() // Consume the '@'
	s.emit(token.Directive)

	for isIdent(s.char()) {
		s.next()
	}
	s.emit(token.Ident)

	s.skip(isLineSpace)
	if s.char() == '=' {
		s.next()
		s.emit(token.Eq)
		s.skip(isLineSpace)
	}

	if !s.atBlankLine() {
		s.toLineEnd()
		s.emitTrimmed(token.Text)
	}

	s.nextLine()
}

// scanVar scans a variable declaration e.g. '@base = https://example.com'.
func scanVar(s *Scanner) scanFn {
	s.next() // Consume the '@'
	s.emit(token.At)

	if !isAlpha(s.char()) && s.char() != '_' {
		return s.fail("expected variable name after '@', got %q", string(s.char()))
	}

	for isIdent(s.char()) {
		s.next()
	}
	s.emit(token.Ident)

	s.skip(isLineSpace)
	if s.char() == '=' {
		s.next()
		s.emit(token.Eq)
		s.skip(isLineSpace)
	}

	// The value is everything to the end of the line, including empty
	s.toLineEnd()
	s.emitTrimmed(token.Text)
	s.nextLine()

	return scanStart
}

// scanPreScript scans a pre-request script, either inline '< {% ... %}' or
// from a file '< ./before.js'.
func scanPreScript(s *Scanner) scanFn {
	s.next() // Consume the '<'
	s.emit(token.LeftAngle)
	s.skip(isLineSpace)

	if bytes.HasPrefix(s.rest(), scriptOpen) {
		if !s.script() {
			return nil
		}
		s.nextLine()
		return scanStart
	}

	if s.atBlankLine() {
		return s.fail("expected script block or script file after '<'")
	}

	s.toLineEnd()
	s.emitTrimmed(token.Text)
	s.nextLine()
	return scanStart
}

// script scans a '{% ... %}' script block, reporting whether it was terminated.
func (s *Scanner) script() bool {
	end := bytes.Index(s.rest(), scriptClose)
	if end == -1 {
		s.toLineEnd()
		s.fail("unterminated script block, expected %q", string(scriptClose))
		return false
	}

	s.advance(end + len(scriptClose))
	s.emit(token.Script)
	s.skip(isLineSpace)
	return true
}

// scanRequestLine scans a request line: '[METHOD] URL [HTTP-Version]'.
//
// If the line does not start with a method, the whole line is the URL and the
// method is implicitly GET.
func scanRequestLine(s *Scanner) scanFn {
	line := s.restOfLine()

	word := line
	if idx := bytes.IndexAny(line, " \t"); idx != -1 {
		word = line[:idx]
	}

	if kind, ok := token.Method(string(word)); ok {
		s.advance(len(word))
		s.emit(kind)
		s.skip(isLineSpace)
		line = s.restOfLine()
	}

	url := bytes.TrimRight(line, " \t")
	version := -1
	if idx := bytes.LastIndex(url, httpVersion); idx != -1 {
		version = idx
		url = bytes.TrimRight(url[:idx], " \t")
	}

	if len(url) == 0 {
		return s.fail("expected a URL")
	}

	s.advance(len(url))
	s.emit(token.URL)

	if version != -1 {
		s.skip(isLineSpace)
		s.toLineEnd()
		s.emitTrimmed(token.HTTPVersion)
	}

	s.nextLine()
	return scanHeaders
}

// scanHeaders scans 0 or more header lines, emitting the right tokens as it goes.
//
// It stops at a blank line (the start of the body), the next request separator, eof
// or the start of a response handler.
func scanHeaders(s *Scanner) scanFn {
	switch {
	case s.char() == eof:
		return nil
	case s.atBlankLine():
		s.nextLine()
		return scanBody
	case bytes.HasPrefix(s.rest(), separator):
		return scanRequestSep
	case s.isComment():
		s.comment()
		return scanHeaders
	case s.char() == '>' || bytes.HasPrefix(s.rest(), responseRef):
		return scanAfterBody
	case s.char() == '<':
		// A body straight after the headers e.g. '< ./input.json'
		return scanBody
	}

	s.skip(isLineSpace)

	line := s.restOfLine()
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		s.toLineEnd()
		return s.fail("expected a header 'Name: value', got %q", string(line))
	}

	name := bytes.TrimRight(line[:colon], " \t")
	s.advance(len(name))
	s.emit(token.Header)

	s.skip(isLineSpace)
	s.next() // ':'
	s.emit(token.Colon)

	s.skip(isLineSpace)
	s.toLineEnd()
	s.emitTrimmed(token.Text)
	s.nextLine()

	return scanHeaders
}

// scanBody scans a request body which is defined as anything up to
// the next request separator, a response handler or reference, or eof.
func scanBody(s *Scanner) scanFn {
	// Leading blank lines are not part of the body
	for s.char() != eof && s.atBlankLine() {
		s.nextLine()
	}

	start := s.pos
	for s.char() != eof && !s.atBodyEnd() {
		s.nextLine()
	}

	s.start = start
	if s.pos > start {
		s.emitTrimmed(token.Body)
	}

	return scanAfterBody
}

// atBodyEnd reports whether the current line ends a body.
func (s *Scanner) atBodyEnd() bool {
	rest := s.rest()
	if bytes.HasPrefix(rest, separator) || bytes.HasPrefix(rest, responseRef) {
		return true
	}

	if s.char() != '>' || bytes.HasPrefix(rest, []byte(">>")) {
		return false
	}

	// '> {% ... %}' or '> ./handler.js'
	handler := bytes.TrimSpace(s.restOfLine()[1:])
	return bytes.HasPrefix(handler, scriptOpen) || bytes.HasSuffix(handler, []byte(".js"))
}

// scanAfterBody scans the things that may follow a body: response handlers,
// response references and comments.
func scanAfterBody(s *Scanner) scanFn {
	s.skip(unicode.IsSpace)

	switch {
	case s.char() == eof:
		return nil
	case bytes.HasPrefix(s.rest(), separator):
		return scanRequestSep
	case bytes.HasPrefix(s.rest(), responseRef):
		s.advance(len(responseRef))
		s.emit(token.ResponseRef)
		s.skip(isLineSpace)
		if s.atBlankLine() {
			return s.fail("expected a file path after '<>'")
		}
		s.toLineEnd()
		s.emitTrimmed(token.Text)
		s.nextLine()
		return scanAfterBody
	case s.char() == '>':
		s.next()
		s.emit(token.RightAngle)
		s.skip(isLineSpace)
		if bytes.HasPrefix(s.rest(), scriptOpen) {
			if !s.script() {
				return nil
			}
			s.nextLine()
			return scanAfterBody
		}
		if s.atBlankLine() {
			return s.fail("expected script block or script file after '>'")
		}
		s.toLineEnd()
		s.emitTrimmed(token.Text)
		s.nextLine()
		return scanAfterBody
	case s.isComment():
		s.comment()
		return scanAfterBody
	default:
		s.toLineEnd()
		return s.fail("unexpected text after request body: %q", string(s.src[s.start:s.pos]))
	}
}

// isLineSpace reports whether r is a non line terminating whitespace character,
// imagine [unicode.IsSpace] but without '\n' or '\r'.
func isLineSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

// isSpaceByte reports whether b is an ASCII whitespace character.
func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// isAlpha reports whether r is an alpha character.
func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// isIdent reports whether r is a valid identifier character.
func isIdent(r rune) bool {
	return isAlpha(r) || isDigit(r) || r == '_' || r == '-' || r == '.'
}

// isDigit reports whether r is a valid ASCII digit.
func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
