package mock

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// listingDateFormat is how modification times are shown in directory listings.
const listingDateFormat = "2006/01/02 15:04"

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Directory listing for {{ .Path }}</title></head>
<body>
<h1>Directory listing for {{ .Path }}</h1>
<hr>
<table>
<tr><th>Name</th><th>Size</th><th>Modified</th></tr>
{{- range .Entries }}
<tr><td>{{ if .Dir }}(Dir) {{ else }}(File) {{ end }}<a href="{{ .Link }}">{{ .Name }}</a></td><td>{{ .Size }}</td><td>{{ .Modified }}</td></tr>
{{- end }}
</table>
<hr>
</body>
</html>
`))

var notFoundTemplate = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ .Status }}</title></head>
<body>
<h1>{{ .Status }}</h1>
<p>{{ .Message }}</p>
</body>
</html>
`))

// entry is a single row of a directory listing.
type entry struct {
	Name     string // File name
	Link     string // Link to the entry
	Size     string // Human readable size, empty for directories
	Modified string // Modification time
	Dir      bool   // Whether it is a directory
}

// checkStatic checks the static folder exists and is a directory.
func checkStatic(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("static folder: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("static folder %s is not a directory", root)
	}

	return nil
}

// static serves rel from the static folder, requested as path.
func (s *Server) static(requested, rel string) (status int, response []byte, file string, content []byte) {
	root, err := filepath.Abs(s.config.Static)
	if err != nil {
		return http.StatusNotFound, s.notFound(requested), "", nil
	}

	target := filepath.Join(root, filepath.FromSlash(rel))

	inside, err := filepath.Rel(root, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		s.logger.Warn("mock server refused path outside static folder", "path", requested)
		return http.StatusNotFound, s.notFound(requested), "", nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return http.StatusNotFound, s.notFound(requested), "", nil
	}

	if info.IsDir() {
		listing, err := s.listing(requested, target)
		if err != nil {
			s.logger.Warn("mock server could not list directory", "dir", target, "err", err)
			return http.StatusNotFound, s.notFound(requested), "", nil
		}
		return http.StatusOK, listing, "", nil
	}

	content, err = os.ReadFile(target)
	if err != nil {
		s.logger.Warn("mock server could not read file", "file", target, "err", err)
		return http.StatusNotFound, s.notFound(requested), "", nil
	}

	contentType := mime.TypeByExtension(filepath.Ext(target))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	buf := &bytes.Buffer{}
	head(buf, http.StatusOK)
	fmt.Fprintf(buf, "Content-Type: %s%s", contentType, crlf)
	fmt.Fprintf(buf, "Content-Disposition: attachment; filename=%q%s", info.Name(), crlf)
	fmt.Fprintf(buf, "Last-Modified: %s%s", info.ModTime().UTC().Format(http.TimeFormat), crlf)
	fmt.Fprintf(buf, "Content-Length: %d%s", len(content), crlf)
	buf.WriteString(crlf)

	return http.StatusOK, buf.Bytes(), target, content
}

// listing renders the HTML listing of dir, requested as path.
func (s *Server) listing(requested, dir string) ([]byte, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(requested, "/")
	entries := make([]entry, 0, len(dirEntries))

	for _, dirEntry := range dirEntries {
		info, err := dirEntry.Info()
		if err != nil {
			// Gone since we listed it
			continue
		}

		e := entry{
			Name:     dirEntry.Name(),
			Link:     base + "/" + url.PathEscape(dirEntry.Name()),
			Modified: info.ModTime().Format(listingDateFormat),
			Dir:      dirEntry.IsDir(),
		}

		if info.Mode().IsRegular() {
			e.Size = humanize.Bytes(uint64(info.Size()))
		}

		entries = append(entries, e)
	}

	page := &bytes.Buffer{}
	data := struct {
		Path    string
		Entries []entry
	}{
		Path:    path.Clean(requested),
		Entries: entries,
	}

	if err := listingTemplate.Execute(page, data); err != nil {
		return nil, fmt.Errorf("could not render listing: %w", err)
	}

	return htmlResponse(http.StatusOK, page.Bytes()), nil
}

// notFound returns the 404 response for path.
func (s *Server) notFound(requested string) []byte {
	return s.errorResponse(http.StatusNotFound, fmt.Sprintf("path [%s] not found", requested))
}

// errorResponse returns an HTML error page.
func (s *Server) errorResponse(status int, message string) []byte {
	page := &bytes.Buffer{}
	data := struct {
		Status  string
		Message string
	}{
		Status:  fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Message: message,
	}

	if err := notFoundTemplate.Execute(page, data); err != nil {
		s.logger.Error("could not render error page", "err", err)
		page.Reset()
		page.WriteString(message)
	}

	return htmlResponse(status, page.Bytes())
}

// htmlResponse wraps an HTML page in a response.
func htmlResponse(status int, page []byte) []byte {
	buf := &bytes.Buffer{}
	head(buf, status)
	fmt.Fprintf(buf, "Content-Type: text/html; charset=utf-8%s", crlf)
	fmt.Fprintf(buf, "Last-Modified: %s%s", time.Now().UTC().Format(http.TimeFormat), crlf)
	fmt.Fprintf(buf, "Content-Length: %d%s", len(page), crlf)
	buf.WriteString(crlf)
	buf.Write(page)
	return buf.Bytes()
}
