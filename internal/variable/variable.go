// Package variable implements extraction of {{...}} variable tokens from arbitrary text.
//
// A token is a name, optionally followed by a parenthesised argument list of literals:
//
//	{{baseUrl}}
//	{{$random.alphanumeric(8)}}
//	${{$date(-1, "dd/MM/yyyy")}}
//
// Anything between the markers that does not fit this grammar is not a token and is
// left alone as literal text.
package variable

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// Kind is the kind of a [Literal].
type Kind int

const (
	String Kind = iota // String
	Int                // Int
	Float              // Float
)

// String implements [fmt.Stringer] for a [Kind].
func (k Kind) String() string {
	switch k {
	case String:
		return "String"
	case Int:
		return "Int"
	case Float:
		return "Float"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Literal is a single argument passed to a function call inside a token.
type Literal struct {
	Str   string  // The unquoted string value, or the source text of a number
	Int   int64   // Value of an Int literal
	Float float64 // Value of a Float literal (also set for Int literals)
	Kind  Kind    // The kind of literal
}

// String returns the literal as it would be substituted into text.
func (l Literal) String() string {
	return l.Str
}

// Token is a variable token found in a span of text.
type Token struct {
	Name  string    // The variable or function name e.g. "baseUrl" or "$random.uuid"
	Args  []Literal // Arguments, nil if the token was not a call
	Start int       // Byte offset of the start of the token (including any leading '$')
	End   int       // Byte offset immediately after the closing marker
	Call  bool      // Whether the token had a parenthesised argument list, even an empty one
}

// Parse extracts all the well formed tokens from text, in the order they appear.
//
// Parse never fails, malformed token interiors are simply not reported.
func Parse(text string) []Token {
	var tokens []Token

	pos := 0
	for pos < len(text) {
		idx := strings.Index(text[pos:], openMarker)
		if idx == -1 {
			break
		}

		start := pos + idx
		end := strings.Index(text[start+len(openMarker):], closeMarker)
		if end == -1 {
			break
		}

		interiorStart := start + len(openMarker)
		interiorEnd := interiorStart + end

		tok, ok := parseInterior(text[interiorStart:interiorEnd])
		if !ok {
			// Step over the opening marker only, a valid token may start inside
			// this one e.g. "{{ {{name}}"
			pos = start + 1
			continue
		}

		tok.Start = start
		tok.End = interiorEnd + len(closeMarker)

		if start > 0 && text[start-1] == '$' {
			tok.Start = start - 1
		}

		tokens = append(tokens, tok)
		pos = tok.End
	}

	return tokens
}

// Replace returns a copy of text with each token replaced by the result of calling fn
// with it. If fn returns false, the token's original text is kept.
func Replace(text string, tokens []Token, fn func(tok Token) (string, bool)) string {
	if len(tokens) == 0 {
		return text
	}

	var s strings.Builder
	s.Grow(len(text))

	last := 0
	for _, tok := range tokens {
		s.WriteString(text[last:tok.Start])
		if value, ok := fn(tok); ok {
			s.WriteString(value)
		} else {
			s.WriteString(text[tok.Start:tok.End])
		}
		last = tok.End
	}

	s.WriteString(text[last:])
	return s.String()
}

// cursor walks the interior of a single token.
type cursor struct {
	src string
	pos int
}

func (c *cursor) char() byte {
	if c.pos >= len(c.src) {
		return 0
	}
	return c.src[c.pos]
}

func (c *cursor) done() bool {
	return c.pos >= len(c.src)
}

func (c *cursor) skipSpace() {
	for !c.done() && (c.char() == ' ' || c.char() == '\t') {
		c.pos++
	}
}

// parseInterior parses the text between the markers of a token.
func parseInterior(interior string) (Token, bool) {
	c := &cursor{src: interior}
	c.skipSpace()

	name, ok := c.name()
	if !ok {
		return Token{}, false
	}

	tok := Token{Name: name}

	c.skipSpace()
	if c.char() == '(' {
		c.pos++
		args, ok := c.args()
		if !ok {
			return Token{}, false
		}
		tok.Args = args
		tok.Call = true
		c.skipSpace()
	}

	if !c.done() {
		return Token{}, false
	}

	return tok, true
}

// name consumes a dotted/bracket name with an optional leading '$'.
func (c *cursor) name() (string, bool) {
	start := c.pos
	if c.char() == '$' {
		c.pos++
	}

	if !c.ident() {
		return "", false
	}

	for {
		switch c.char() {
		case '.':
			c.pos++
			if !c.ident() {
				return "", false
			}
		case '[':
			c.pos++
			digits := c.pos
			for isDigit(c.char()) {
				c.pos++
			}
			if c.pos == digits || c.char() != ']' {
				return "", false
			}
			c.pos++
		default:
			return c.src[start:c.pos], true
		}
	}
}

// ident consumes a single identifier, reporting whether there was one.
func (c *cursor) ident() bool {
	if !isIdentStart(c.char()) {
		return false
	}
	for isIdent(c.char()) {
		c.pos++
	}
	return true
}

// args consumes a comma separated literal list, the opening '(' has already been consumed.
func (c *cursor) args() ([]Literal, bool) {
	args := []Literal{}

	c.skipSpace()
	if c.char() == ')' {
		c.pos++
		return args, true
	}

	for {
		c.skipSpace()
		lit, ok := c.literal()
		if !ok {
			return nil, false
		}
		args = append(args, lit)

		c.skipSpace()
		switch c.char() {
		case ',':
			c.pos++
		case ')':
			c.pos++
			return args, true
		default:
			return nil, false
		}
	}
}

// literal consumes a quoted string, integer or decimal.
func (c *cursor) literal() (Literal, bool) {
	switch char := c.char(); {
	case char == '"' || char == '\'':
		return c.quoted(char)
	case char == '-' || isDigit(char):
		return c.number()
	default:
		return Literal{}, false
	}
}

func (c *cursor) quoted(quote byte) (Literal, bool) {
	c.pos++ // Opening quote

	var s strings.Builder
	for {
		if c.done() {
			return Literal{}, false
		}

		char := c.char()
		c.pos++

		switch char {
		case quote:
			return Literal{Kind: String, Str: s.String()}, true
		case '\\':
			if c.done() {
				return Literal{}, false
			}
			escaped := c.char()
			c.pos++
			switch escaped {
			case 'n':
				s.WriteByte('\n')
			case 't':
				s.WriteByte('\t')
			case 'r':
				s.WriteByte('\r')
			default:
				s.WriteByte(escaped)
			}
		default:
			s.WriteByte(char)
		}
	}
}

func (c *cursor) number() (Literal, bool) {
	start := c.pos
	if c.char() == '-' {
		c.pos++
	}

	digits := c.pos
	for isDigit(c.char()) {
		c.pos++
	}
	if c.pos == digits {
		return Literal{}, false
	}

	isFloat := false
	if c.char() == '.' {
		isFloat = true
		c.pos++
		fraction := c.pos
		for isDigit(c.char()) {
			c.pos++
		}
		if c.pos == fraction {
			return Literal{}, false
		}
	}

	text := c.src[start:c.pos]

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Literal{}, false
		}
		return Literal{Kind: Float, Str: text, Float: f}, true
	}

	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Literal{}, false
	}
	return Literal{Kind: Int, Str: text, Int: i, Float: float64(i)}, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdent(b byte) bool {
	return isIdentStart(b) || isDigit(b) || b == '-'
}
