package variable_test

import (
	"strings"
	"testing"

	"github.com/matoboco/IJ-HttpClient/internal/variable"
	"go.followtheprocess.codes/test"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string           // Name of the test case
		text string           // Text to parse
		want []variable.Token // Expected tokens
	}{
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "no tokens",
			text: "GET https://example.com/users",
			want: nil,
		},
		{
			name: "simple",
			text: "{{baseUrl}}/users",
			want: []variable.Token{
				{Name: "baseUrl", Start: 0, End: 11},
			},
		},
		{
			name: "whitespace inside markers",
			text: "x {{ host }} y",
			want: []variable.Token{
				{Name: "host", Start: 2, End: 12},
			},
		},
		{
			name: "dollar prefix",
			text: "id=${{id}}",
			want: []variable.Token{
				{Name: "id", Start: 3, End: 10},
			},
		},
		{
			name: "builtin no args",
			text: "{{$random.uuid}}",
			want: []variable.Token{
				{Name: "$random.uuid", Start: 0, End: 16},
			},
		},
		{
			name: "empty call",
			text: "{{$timestamp()}}",
			want: []variable.Token{
				{Name: "$timestamp", Args: []variable.Literal{}, Call: true, Start: 0, End: 16},
			},
		},
		{
			name: "call with args",
			text: `{{$date(-1, "dd/MM/yyyy")}}`,
			want: []variable.Token{
				{
					Name: "$date",
					Args: []variable.Literal{
						{Kind: variable.Int, Str: "-1", Int: -1, Float: -1},
						{Kind: variable.String, Str: "dd/MM/yyyy"},
					},
					Call:  true,
					Start: 0,
					End:   27,
				},
			},
		},
		{
			name: "decimal and single quoted",
			text: `{{$random.pick(1.5, 'a\'b')}}`,
			want: []variable.Token{
				{
					Name: "$random.pick",
					Args: []variable.Literal{
						{Kind: variable.Float, Str: "1.5", Float: 1.5},
						{Kind: variable.String, Str: "a'b"},
					},
					Call:  true,
					Start: 0,
					End:   29,
				},
			},
		},
		{
			name: "bracket name",
			text: "{{items[0].id}}",
			want: []variable.Token{
				{Name: "items[0].id", Start: 0, End: 15},
			},
		},
		{
			name: "multiple",
			text: "{{a}}-{{b}}",
			want: []variable.Token{
				{Name: "a", Start: 0, End: 5},
				{Name: "b", Start: 6, End: 11},
			},
		},
		{
			name: "malformed interior is literal",
			text: `{{not valid}} {{"json": 1}}`,
			want: nil,
		},
		{
			name: "bad argument list",
			text: "{{$random.numeric(abc)}}",
			want: nil,
		},
		{
			name: "unterminated",
			text: "{{name",
			want: nil,
		},
		{
			name: "nested recovers inner token",
			text: "{{ {{name}}",
			want: []variable.Token{
				{Name: "name", Start: 3, End: 11},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := variable.Parse(tt.text)
			test.Equal(t, len(got), len(tt.want), test.Context("wrong number of tokens: %#v", got))

			for i := range got {
				test.Equal(t, got[i].Name, tt.want[i].Name)
				test.Equal(t, got[i].Start, tt.want[i].Start)
				test.Equal(t, got[i].End, tt.want[i].End)
				test.Equal(t, got[i].Call, tt.want[i].Call)
				test.Equal(t, len(got[i].Args), len(tt.want[i].Args))

				for j := range got[i].Args {
					test.Equal(t, got[i].Args[j], tt.want[i].Args[j])
				}
			}
		})
	}
}

func TestReplace(t *testing.T) {
	text := "{{a}} and ${{b}} and {{c}}"
	tokens := variable.Parse(text)

	got := variable.Replace(text, tokens, func(tok variable.Token) (string, bool) {
		if tok.Name == "c" {
			return "", false
		}
		return strings.ToUpper(tok.Name), true
	})

	test.Equal(t, got, "A and B and {{c}}")
}

func FuzzParse(f *testing.F) {
	f.Add("{{baseUrl}}/users?id={{$randomInt}}")
	f.Add(`${{$date(1, "yyyy")}}`)
	f.Add("{{{{}}}}")

	// Property: tokens are ordered, non overlapping and lie within the text
	f.Fuzz(func(t *testing.T, text string) {
		last := 0
		for _, tok := range variable.Parse(text) {
			if tok.Start < last || tok.End <= tok.Start || tok.End > len(text) {
				t.Fatalf("bad token span %d-%d (last end %d) in %q", tok.Start, tok.End, last, text)
			}
			last = tok.End
		}
	})
}
