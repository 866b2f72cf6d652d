// Package render renders resolved requests as text, either a curl command line or
// the raw HTTP request.
//
// Rendering never resolves anything, both modes render the values already in the
// [spec.Request] so the two can never disagree.
package render

import (
	"fmt"
	"strings"

	"github.com/matoboco/IJ-HttpClient/internal/body"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
)

const (
	crlf         = "\r\n"
	curlLineJoin = " \\\n  "
)

// Mode is the output format.
type Mode int

const (
	ModeCurl Mode = iota // A curl command line
	ModeRaw              // The raw HTTP/1.1 request text
)

// String implements [fmt.Stringer] for [Mode].
func (m Mode) String() string {
	switch m {
	case ModeCurl:
		return "Curl"
	case ModeRaw:
		return "Raw"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Render renders req in the given mode.
func Render(req spec.Request, mode Mode) string {
	if mode == ModeRaw {
		return Raw(req)
	}
	return Curl(req)
}

// Raw renders req as raw request text, suitable for pasting into a .http file.
//
// Binary content and file backed multipart fields are rendered as "< path" file
// references rather than their bytes.
func Raw(req spec.Request) string {
	builder := &strings.Builder{}

	if req.Name != "" {
		fmt.Fprintf(builder, "### %s%s", req.Name, crlf)
	}

	if req.HTTPVersion != "" {
		fmt.Fprintf(builder, "%s %s %s%s", req.Method, req.URL, req.HTTPVersion, crlf)
	} else {
		fmt.Fprintf(builder, "%s %s%s", req.Method, req.URL, crlf)
	}

	for _, header := range req.Headers {
		fmt.Fprintf(builder, "%s: %s%s", header.Name, header.Value, crlf)
	}

	switch req.Body.Kind {
	case body.Text:
		builder.WriteString(crlf)
		builder.WriteString(req.Body.Text)
		builder.WriteString(crlf)
	case body.Binary:
		builder.WriteString(crlf)
		fmt.Fprintf(builder, "< %s%s", req.Body.Binary.File, crlf)
	case body.Multipart:
		builder.WriteString(crlf)
		for _, part := range req.Body.Parts {
			fmt.Fprintf(builder, "--%s%s", req.Body.Boundary, crlf)
			for _, header := range part.Headers {
				fmt.Fprintf(builder, "%s: %s%s", header.Name, header.Value, crlf)
			}
			builder.WriteString(crlf)

			if part.Content.File != "" && !body.IsText(part.ContentType) {
				fmt.Fprintf(builder, "< %s%s", part.Content.File, crlf)
			} else {
				builder.Write(part.Content.Bytes)
				builder.WriteString(crlf)
			}
		}
		fmt.Fprintf(builder, "--%s--%s", req.Body.Boundary, crlf)
	}

	return builder.String()
}

// Curl renders req as a curl command line for a POSIX shell.
func Curl(req spec.Request) string {
	args := []string{fmt.Sprintf("curl -X %s --location %s", req.Method, Quote(req.URL))}

	if flag := versionFlag(req.HTTPVersion); flag != "" {
		args = append(args, flag)
	}

	for _, header := range req.Headers {
		args = append(args, "-H "+Quote(header.Name+": "+header.Value))
	}

	switch req.Body.Kind {
	case body.Text:
		args = append(args, "-d "+Quote(req.Body.Text))
	case body.Binary:
		args = append(args, "--data-binary "+Quote("@"+req.Body.Binary.File))
	case body.Multipart:
		for _, part := range req.Body.Parts {
			args = append(args, "-F "+Quote(field(part)))
		}
	}

	return strings.Join(args, curlLineJoin)
}

// field returns the curl -F value for a multipart field.
func field(part body.Part) string {
	builder := &strings.Builder{}
	builder.WriteString(part.Name)
	builder.WriteByte('=')

	if part.Content.File != "" && !body.IsText(part.ContentType) {
		builder.WriteString("@" + part.Content.File)
		if part.Filename != "" {
			builder.WriteString(";filename=" + part.Filename)
		}
	} else {
		builder.Write(part.Content.Bytes)
	}

	if part.ContentType != "" {
		builder.WriteString(";type=" + part.ContentType)
	}

	return builder.String()
}

// versionFlag returns the curl flag selecting the HTTP version, if any.
func versionFlag(version string) string {
	switch strings.ToUpper(version) {
	case "HTTP/1.0":
		return "--http1.0"
	case "HTTP/1.1":
		return "--http1.1"
	case "HTTP/2", "HTTP/2.0":
		return "--http2"
	case "HTTP/3", "HTTP/3.0":
		return "--http3"
	default:
		return ""
	}
}

// Quote quotes s for a POSIX shell, closing and reopening the quotes around any
// single quotes inside it.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
