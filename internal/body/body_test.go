package body_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/matoboco/IJ-HttpClient/internal/body"
	"github.com/matoboco/IJ-HttpClient/internal/resolve"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"go.followtheprocess.codes/test"
)

// resolver returns a resolver rooted at dir with a couple of variables declared.
func resolver(dir string) *resolve.Resolver {
	return resolve.New(
		resolve.WithBaseDir(dir),
		resolve.WithVars([]syntax.Var{
			{Name: "x", Value: "1"},
			{Name: "name", Value: "John Doe"},
		}),
	)
}

func write(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.Ok(t, os.WriteFile(path, contents, 0o644))
	return path
}

func TestNone(t *testing.T) {
	got, err := body.Materialize(syntax.Body{}, "", resolver(t.TempDir()), body.Options{})
	test.Ok(t, err)

	test.Equal(t, got.Kind, body.None)
	test.Equal(t, got.Len(), 0)
	test.Equal(t, len(got.Bytes()), 0)
}

func TestText(t *testing.T) {
	tests := []struct {
		name        string       // Name of the test case
		contentType string       // Request Content-Type
		text        string       // Inline body text
		want        string       // Expected body
		options     body.Options // Materialise options
	}{
		{
			name:        "json",
			contentType: "application/json",
			text:        `{"id": {{x}}}`,
			want:        `{"id": 1}`,
		},
		{
			name:        "form without encoding",
			contentType: "application/x-www-form-urlencoded",
			text:        "name={{name}}&city=New York",
			want:        "name=John Doe&city=New York",
		},
		{
			name:        "form with encoding",
			contentType: "application/x-www-form-urlencoded; charset=utf-8",
			text:        "name={{name}}&city=New York",
			want:        "name=John+Doe&city=New+York",
			options:     body.Options{AutoEncode: true},
		},
		{
			name:        "encoding only applies to forms",
			contentType: "text/plain",
			text:        "name={{name}}",
			want:        "name=John Doe",
			options:     body.Options{AutoEncode: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := syntax.Body{Content: syntax.Content{Text: tt.text}}

			got, err := body.Materialize(b, tt.contentType, resolver(t.TempDir()), tt.options)
			test.Ok(t, err)

			test.Equal(t, got.Kind, body.Text)
			test.Equal(t, got.Text, tt.want)
			test.Equal(t, string(got.Bytes()), tt.want)
			test.Equal(t, got.Len(), len(tt.want))
		})
	}
}

func TestTextWithFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "extra.json", []byte(`{"from": "file", "x": {{x}}}`))

	b := syntax.Body{Content: syntax.Content{Text: `{"x": {{x}}}`, File: "./extra.json"}}

	got, err := body.Materialize(b, "application/json", resolver(dir), body.Options{})
	test.Ok(t, err)

	test.Equal(t, got.Kind, body.Text)
	test.Equal(t, got.Text, "{\"x\": 1}\r\n{\"from\": \"file\", \"x\": 1}")
}

func TestBinaryFile(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("{{x}}\x00\x01")
	path := write(t, dir, "image.png", contents)

	b := syntax.Body{Content: syntax.Content{File: "image.png"}}

	got, err := body.Materialize(b, "image/png", resolver(dir), body.Options{})
	test.Ok(t, err)

	test.Equal(t, got.Kind, body.Binary)
	test.Equal(t, string(got.Bytes()), string(contents), test.Context("binary content must not be resolved"))
	test.Equal(t, got.Len(), 7)
	test.Equal(t, got.Binary.File, path)
	test.Equal(t, got.Binary.Description, "7 B "+path)
}

func TestTextWithBinaryFile(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "image.png", []byte{0x89, 'P', 'N', 'G'})

	t.Run("body", func(t *testing.T) {
		b := syntax.Body{Content: syntax.Content{Text: "prefix {{x}}", File: "image.png"}}

		_, err := body.Materialize(b, "image/png", resolver(dir), body.Options{})
		test.Err(t, err)
		test.True(t, errors.Is(err, body.ErrTextWithBinaryFile), test.Context("got %v", err))
	})

	t.Run("multipart field", func(t *testing.T) {
		b := syntax.Body{
			Parts: []syntax.Part{
				{
					Headers: []syntax.Header{
						{Name: "Content-Disposition", Value: `form-data; name="image"; filename="image.png"`},
						{Name: "Content-Type", Value: "image/png"},
					},
					Content: syntax.Content{Text: "prefix", File: "image.png"},
				},
			},
		}

		_, err := body.Materialize(b, "multipart/form-data; boundary=B", resolver(dir), body.Options{})
		test.Err(t, err)
		test.True(t, errors.Is(err, body.ErrTextWithBinaryFile), test.Context("got %v", err))
	})

	t.Run("text file keeps the text", func(t *testing.T) {
		write(t, dir, "note.txt", []byte("from file"))
		b := syntax.Body{Content: syntax.Content{Text: "inline", File: "note.txt"}}

		got, err := body.Materialize(b, "text/plain", resolver(dir), body.Options{})
		test.Ok(t, err)
		test.Equal(t, got.Text, "inline\r\nfrom file")
	})
}

func TestMultipart(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "data.json", []byte(`{"id": {{x}}}`))

	b := syntax.Body{
		Parts: []syntax.Part{
			{
				Headers: []syntax.Header{
					{Name: "Content-Disposition", Value: `form-data; name="field-name"`},
				},
				Content: syntax.Content{Text: "{{x}}"},
			},
			{
				Headers: []syntax.Header{
					{Name: "Content-Disposition", Value: `form-data; name="data"; filename="data.json"`},
					{Name: "Content-Type", Value: "application/json"},
				},
				Content: syntax.Content{File: "./data.json"},
			},
		},
	}

	got, err := body.Materialize(b, "multipart/form-data; boundary=WebAppBoundary", resolver(dir), body.Options{})
	test.Ok(t, err)

	want := "--WebAppBoundary\r\n" +
		"Content-Disposition: form-data; name=\"field-name\"\r\n" +
		"\r\n" +
		"1\r\n" +
		"--WebAppBoundary\r\n" +
		"Content-Disposition: form-data; name=\"data\"; filename=\"data.json\"\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		"{\"id\": 1}\r\n" +
		"--WebAppBoundary--"

	test.Equal(t, got.Kind, body.Multipart)
	test.Equal(t, got.Boundary, "WebAppBoundary")
	test.Diff(t, string(got.Bytes()), want)
	test.Equal(t, got.Len(), len(want))
	test.Equal(t, len(got.Segments), 7)

	test.Equal(t, len(got.Parts), 2)
	test.Equal(t, got.Parts[0].Name, "field-name")
	test.Equal(t, got.Parts[0].Filename, "")
	test.Equal(t, got.Parts[1].Name, "data")
	test.Equal(t, got.Parts[1].Filename, "data.json")
	test.Equal(t, got.Parts[1].ContentType, "application/json")
	test.Equal(t, got.Parts[1].Content.File, path)
}

func TestMultipartDefaultBoundary(t *testing.T) {
	b := syntax.Body{
		Parts: []syntax.Part{
			{
				Headers: []syntax.Header{{Name: "Content-Disposition", Value: `form-data; name="a"`}},
				Content: syntax.Content{Text: "b"},
			},
		},
	}

	got, err := body.Materialize(b, "multipart/form-data", resolver(t.TempDir()), body.Options{})
	test.Ok(t, err)

	want := "--boundary\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nb\r\n--boundary--"
	test.Equal(t, string(got.Bytes()), want)
}

func TestMissingFile(t *testing.T) {
	b := syntax.Body{Content: syntax.Content{File: "nope.json"}}

	_, err := body.Materialize(b, "application/json", resolver(t.TempDir()), body.Options{})
	test.Err(t, err)

	var pathErr *fs.PathError
	test.True(t, errors.As(err, &pathErr), test.Context("got %T: %v", err, err))
	test.Equal(t, filepath.Base(pathErr.Path), "nope.json")
}

func TestIsText(t *testing.T) {
	tests := []struct {
		contentType string // Content-Type to check
		want        bool   // Expected result
	}{
		{contentType: "", want: true},
		{contentType: "text/plain", want: true},
		{contentType: "TEXT/HTML; charset=utf-8", want: true},
		{contentType: "application/json", want: true},
		{contentType: "application/problem+json", want: true},
		{contentType: "application/atom+xml", want: true},
		{contentType: "application/javascript", want: true},
		{contentType: "application/x-www-form-urlencoded", want: true},
		{contentType: "application/graphql", want: true},
		{contentType: "application/x-yaml", want: true},
		{contentType: "application/octet-stream", want: false},
		{contentType: "image/png", want: false},
		{contentType: "application/pdf", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			test.Equal(t, body.IsText(tt.contentType), tt.want)
		})
	}
}

func TestEncodeForm(t *testing.T) {
	tests := []struct {
		name string // Name of the test case
		form string // Form body
		want string // Expected encoding
	}{
		{name: "empty", form: "", want: ""},
		{name: "simple", form: "a=b", want: "a=b"},
		{name: "spaces", form: "full name=John Doe", want: "full+name=John+Doe"},
		{name: "specials", form: "q=a&b=c/d?e", want: "q=a&b=c%2Fd%3Fe"},
		{name: "already encoded", form: "a=John%20Doe", want: "a=John+Doe"},
		{name: "multi line", form: "a=1\n&b=2\n", want: "a=1&b=2"},
		{name: "key only", form: "flag&a=1", want: "flag&a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test.Equal(t, body.EncodeForm(tt.form), tt.want)
		})
	}
}

func TestKindString(t *testing.T) {
	test.Equal(t, body.Multipart.String(), "Multipart")
	test.Equal(t, body.Kind(42).String(), "Kind(42)")
}
