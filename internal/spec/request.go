package spec

import (
	"fmt"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/body"
)

const (
	MethodWebSocket = "WEBSOCKET"   // Method of a request opening a websocket session
	MethodMock      = "MOCK_SERVER" // Method of a request declaring a mock server
)

// Header is a single resolved request header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// A Request represents a single resolved HTTP request described in a [File].
//
// A Request is never modified once resolved.
type Request struct {
	// Optional name, if empty request should be named after it's index e.g. "#1"
	Name string `json:"name,omitempty"`

	// Optional request comment
	Comment string `json:"comment,omitempty"`

	// The HTTP method
	Method string `json:"method,omitempty"`

	// The complete URL with any variable interpolation evaluated
	URL string `json:"url,omitempty"`

	// Version of the HTTP protocol to use e.g. "HTTP/1.1"
	HTTPVersion string `json:"httpVersion,omitempty"`

	// If a response reference was provided, this is the path to the local file
	// holding the response
	ResponseRef string `json:"responseRef,omitempty"`

	// Directory served by a mock server request
	StaticFolder string `json:"staticFolder,omitempty"`

	// Request headers in declaration order, the same name may appear more than once
	Headers []Header `json:"headers,omitempty"`

	// The materialised request body
	Body body.Result `json:"body,omitzero"`

	// Line of the request line in the .http file
	Line int `json:"line,omitempty"`

	// Status served by a mock server request
	ResponseStatus int `json:"responseStatus,omitempty"`

	// Request timeout
	Timeout time.Duration `json:"timeout,omitempty"`

	// Request connection timeout
	ConnectionTimeout time.Duration `json:"connectionTimeout,omitempty"`

	// Disable following redirects for this request
	NoRedirect bool `json:"noRedirect,omitempty"`

	// Don't log the response
	NoLog bool `json:"noLog,omitempty"`
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

// IsWebSocket reports whether the request opens a websocket session.
func (r Request) IsWebSocket() bool {
	return r.Method == MethodWebSocket
}

// IsMock reports whether the request declares a mock server.
func (r Request) IsMock() bool {
	return r.Method == MethodMock
}

// FilterValue helps implement tea.list.Item.
//
// See https://github.com/charmbracelet/bubbles/tree/master/list#adding-custom-items.
func (r Request) FilterValue() string {
	return r.Name
}

// Title returns the request's name.
func (r Request) Title() string {
	return r.Name
}

// Description returns a description of the request, in this case the method and URL.
func (r Request) Description() string {
	return fmt.Sprintf("%s %s", r.Method, r.URL)
}
