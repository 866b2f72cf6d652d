package scanner_test

import (
	"slices"
	"testing"

	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/scanner"
	"github.com/matoboco/IJ-HttpClient/internal/syntax/token"
	"go.followtheprocess.codes/test"
)

func TestScanner(t *testing.T) {
	tests := []struct {
		name string        // Name of the test case
		src  string        // Source text to scan
		want []token.Token // Expected tokens
		errs int           // Number of syntax errors expected
	}{
		{
			name: "empty",
			src:  "",
			want: []token.Token{
				{Kind: token.EOF, Start: 0, End: 0},
			},
		},
		{
			name: "bom",
			src:  "\ufeff",
			want: []token.Token{
				{Kind: token.EOF, Start: 3, End: 3},
			},
		},
		{
			name: "separator",
			src:  "###",
			want: []token.Token{
				{Kind: token.RequestSeparator, Start: 0, End: 3},
				{Kind: token.EOF, Start: 3, End: 3},
			},
		},
		{
			name: "named separator",
			src:  "### My Request\n",
			want: []token.Token{
				{Kind: token.RequestSeparator, Start: 0, End: 3},
				{Kind: token.Text, Start: 4, End: 14},
				{Kind: token.EOF, Start: 15, End: 15},
			},
		},
		{
			name: "comment",
			src:  "// hello\n",
			want: []token.Token{
				{Kind: token.Comment, Start: 3, End: 8},
				{Kind: token.EOF, Start: 9, End: 9},
			},
		},
		{
			name: "directive",
			src:  "# @name Login\n",
			want: []token.Token{
				{Kind: token.Directive, Start: 2, End: 3},
				{Kind: token.Ident, Start: 3, End: 7},
				{Kind: token.Text, Start: 8, End: 13},
				{Kind: token.EOF, Start: 14, End: 14},
			},
		},
		{
			name: "variable",
			src:  "@base = https://x.io\n",
			want: []token.Token{
				{Kind: token.At, Start: 0, End: 1},
				{Kind: token.Ident, Start: 1, End: 5},
				{Kind: token.Eq, Start: 6, End: 7},
				{Kind: token.Text, Start: 8, End: 20},
				{Kind: token.EOF, Start: 21, End: 21},
			},
		},
		{
			name: "variable missing name",
			src:  "@ = x",
			want: []token.Token{
				{Kind: token.At, Start: 0, End: 1},
				{Kind: token.Error, Start: 1, End: 1},
				{Kind: token.EOF, Start: 1, End: 1},
			},
			errs: 1,
		},
		{
			name: "simple request",
			src:  "GET https://example.com\n",
			want: []token.Token{
				{Kind: token.MethodGet, Start: 0, End: 3},
				{Kind: token.URL, Start: 4, End: 23},
				{Kind: token.EOF, Start: 24, End: 24},
			},
		},
		{
			name: "implicit get",
			src:  "https://example.com",
			want: []token.Token{
				{Kind: token.URL, Start: 0, End: 19},
				{Kind: token.EOF, Start: 19, End: 19},
			},
		},
		{
			name: "version and header",
			src:  "POST https://x.io HTTP/1.1\nAccept: application/json\n",
			want: []token.Token{
				{Kind: token.MethodPost, Start: 0, End: 4},
				{Kind: token.URL, Start: 5, End: 17},
				{Kind: token.HTTPVersion, Start: 18, End: 26},
				{Kind: token.Header, Start: 27, End: 33},
				{Kind: token.Colon, Start: 33, End: 34},
				{Kind: token.Text, Start: 35, End: 51},
				{Kind: token.EOF, Start: 52, End: 52},
			},
		},
		{
			name: "body",
			src:  "POST https://x.io\n\n{\"a\": 1}\n",
			want: []token.Token{
				{Kind: token.MethodPost, Start: 0, End: 4},
				{Kind: token.URL, Start: 5, End: 17},
				{Kind: token.Body, Start: 19, End: 27},
				{Kind: token.EOF, Start: 28, End: 28},
			},
		},
		{
			name: "pre request script",
			src:  "< {% request.variables.set('a', 1) %}\nGET https://x.io\n",
			want: []token.Token{
				{Kind: token.LeftAngle, Start: 0, End: 1},
				{Kind: token.Script, Start: 2, End: 37},
				{Kind: token.MethodGet, Start: 38, End: 41},
				{Kind: token.URL, Start: 42, End: 54},
				{Kind: token.EOF, Start: 55, End: 55},
			},
		},
		{
			name: "response handler",
			src:  "GET https://x.io\n\n> {% client.log(1) %}\n",
			want: []token.Token{
				{Kind: token.MethodGet, Start: 0, End: 3},
				{Kind: token.URL, Start: 4, End: 16},
				{Kind: token.RightAngle, Start: 18, End: 19},
				{Kind: token.Script, Start: 20, End: 39},
				{Kind: token.EOF, Start: 40, End: 40},
			},
		},
		{
			name: "response ref",
			src:  "GET https://x.io\n\n<> ./previous.json\n",
			want: []token.Token{
				{Kind: token.MethodGet, Start: 0, End: 3},
				{Kind: token.URL, Start: 4, End: 16},
				{Kind: token.ResponseRef, Start: 18, End: 20},
				{Kind: token.Text, Start: 21, End: 36},
				{Kind: token.EOF, Start: 37, End: 37},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := 0
			handler := func(pos syntax.Position, msg string) {
				t.Logf("%s: %s", pos, msg)
				errs++
			}

			s := scanner.New(tt.name, []byte(tt.src), handler)

			var tokens []token.Token
			for {
				tok := s.Scan()
				tokens = append(tokens, tok)
				if tok.Kind == token.EOF {
					break
				}
			}

			test.EqualFunc(t, tokens, tt.want, slices.Equal, test.Context("token stream mismatch"))
			test.Equal(t, errs, tt.errs, test.Context("wrong number of syntax errors"))
		})
	}
}

func FuzzScanner(f *testing.F) {
	corpus := []string{
		"",
		"###",
		"GET https://example.com\n",
		"@base = https://x.io\n\n### Get\nGET {{base}}/items HTTP/1.1\nAccept: */*\n\n{\"a\": 1}\n\n> {% client.log(1) %}\n",
		"POST https://x.io\nContent-Type: multipart/form-data; boundary=b\n\n--b\nContent-Disposition: form-data; name=\"f\"\n\n< ./f.txt\n--b--\n",
		"< {% unterminated",
		"\ufeff# @no-redirect\nGET /\n\n<> ./ref.json",
	}
	for _, item := range corpus {
		f.Add([]byte(item))
	}

	f.Fuzz(func(t *testing.T, src []byte) {
		s := scanner.New("fuzz", src, nil)

		last := 0
		for {
			tok := s.Scan()

			// Tokens must be well formed and in order
			if tok.Start < 0 || tok.End > len(src) || tok.Start > tok.End {
				t.Fatalf("token out of bounds: %s (len(src) = %d)", tok, len(src))
			}
			if tok.Start < last {
				t.Fatalf("token %s starts before the previous one ended (%d)", tok, last)
			}
			last = tok.End

			if tok.Kind == token.EOF {
				break
			}
		}
	})
}
