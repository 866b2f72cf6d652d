// Package mock implements the mock server declared by a MOCK_SERVER request, a minimal
// HTTP/1.1 server working directly on TCP connections.
//
// Connections are handled one at a time, each fully served and closed before the next
// is accepted. A request for the declared path gets the computed response: the request is
// resolved afresh for every connection and its headers and materialised body sent. If a static folder is configured, paths under
// the declared path are served from it instead, with HTML listings for directories.
package mock

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"go.followtheprocess.codes/log"
)

const (
	// DefaultReadTimeout bounds how long the server waits for a client to send its request.
	DefaultReadTimeout = 10 * time.Second

	// DefaultPort is used when the declared URL has no port.
	DefaultPort = 80

	maxHeadSize = 1 << 20 // Largest request head accepted
	crlf        = "\r\n"
	serverName  = "ijhttp"
)

var (
	// ErrBind is returned when the server cannot listen on its address.
	ErrBind = errors.New("could not bind mock server")

	// errMalformed is returned when a request can't be parsed.
	errMalformed = errors.New("malformed request")
)

// State is the lifecycle state of a [Server].
type State int32

const (
	Idle      State = iota // Not yet listening
	Listening              // Waiting for a connection
	Serving                // Handling a connection
	Closed                 // Shut down
)

// String implements [fmt.Stringer] for [State].
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Listening:
		return "Listening"
	case Serving:
		return "Serving"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Exchange is a single request and the response it got.
type Exchange struct {
	Time     time.Time // When the request was received
	Remote   string    // Address of the client
	Method   string    // Request method
	Path     string    // Decoded request path
	File     string    // The static file served, if any
	Request  []byte    // The raw request
	Response []byte    // The raw response head, and body unless a file was served
	Status   int       // Response status code
}

// Observer is called with every exchange the server handles.
type Observer func(exchange Exchange)

// Responder computes the request whose headers and body make up the computed response,
// it is called once per connection asking for the declared path.
type Responder func() (spec.Request, error)

// Fixed returns a [Responder] that always answers with req.
func Fixed(req spec.Request) Responder {
	return func() (spec.Request, error) {
		return req, nil
	}
}

// Config configures a [Server].
type Config struct {
	Addr        string        // Address to listen on e.g. ":8080"
	Path        string        // The declared path
	Static      string        // Static folder, optional
	Respond     Responder     // Computes the response, an empty 200 if nil
	Status      int           // Overrides the status of the computed response
	ReadTimeout time.Duration // Read deadline for each request, defaults to DefaultReadTimeout
}

// ConfigFor returns the config serving req.
//
// The declared URL may be a bare path ("/api/users") or a full URL, whose port is
// used to listen on. A positive port overrides the declared one. The config answers
// with req as is, set Respond to compute it per connection instead.
func ConfigFor(req spec.Request, port int) (Config, error) {
	declared, err := url.Parse(req.URL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid mock server URL %q: %w", req.URL, err)
	}

	listen := DefaultPort
	if p := declared.Port(); p != "" {
		listen, err = strconv.Atoi(p)
		if err != nil {
			return Config{}, fmt.Errorf("invalid mock server port %q: %w", p, err)
		}
	}

	if port > 0 {
		listen = port
	}

	path := declared.Path
	if path == "" {
		path = "/"
	}

	return Config{
		Addr:    net.JoinHostPort("", strconv.Itoa(listen)),
		Path:    path,
		Static:  req.StaticFolder,
		Respond: Fixed(req),
	}, nil
}

// Server is the mock server.
type Server struct {
	logger   *log.Logger
	observer Observer
	listener net.Listener
	config   Config
	mu       sync.Mutex // Protects listener
	state    atomic.Int32
}

// New returns a new [Server], it does not start listening until [Server.Listen].
func New(config Config, logger *log.Logger, observer Observer) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}

	if config.Path == "" {
		config.Path = "/"
	}

	return &Server{
		config:   config,
		logger:   logger,
		observer: observer,
	}
}

// State returns the current state of the server.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Listen binds the server's address.
func (s *Server) Listen() error {
	if s.config.Static != "" {
		if err := checkStatic(s.config.Static); err != nil {
			return err
		}
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrBind, s.config.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.state.Store(int32(Listening))
	s.logger.Info("mock server listening", "addr", listener.Addr().String(), "path", s.config.Path)

	return nil
}

// Addr returns the address the server is listening on, or nil if it isn't.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts and handles connections one at a time until the server is closed.
//
// Closing the server is a normal shutdown and Serve returns nil. Failures handling
// a single connection are logged and never stop the server.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return errors.New("mock server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.state.Store(int32(Closed))
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn("mock server accept timed out, retrying", "err", err)
				continue
			}

			s.state.Store(int32(Closed))
			return fmt.Errorf("mock server accept: %w", err)
		}

		s.state.Store(int32(Serving))
		s.handle(conn)
		s.state.CompareAndSwap(int32(Serving), int32(Listening))
	}
}

// Close stops the server, unblocking [Server.Serve].
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(Closed))

	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// handle serves a single connection.
func (s *Server) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mock server panicked handling connection", "remote", remote, "panic", r)
		}
	}()
	defer closeGracefully(conn)

	s.logger.Debug("mock server accepted connection", "remote", remote)

	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		s.logger.Warn("could not set read deadline", "remote", remote, "err", err)
	}

	exchange := Exchange{Time: time.Now(), Remote: remote}

	req, err := readRequest(bufio.NewReader(conn))
	exchange.Request = req.raw
	if err != nil {
		if errors.Is(err, io.EOF) && len(req.raw) == 0 {
			// Connected and went away again, nothing to answer
			return
		}

		s.logger.Warn("mock server could not read request", "remote", remote, "err", err)
		exchange.Status = http.StatusBadRequest
		exchange.Response = s.errorResponse(http.StatusBadRequest, err.Error())
		s.write(conn, exchange, nil)
		return
	}

	exchange.Method = req.method

	path, err := decodePath(req.target)
	if err != nil {
		exchange.Status = http.StatusBadRequest
		exchange.Response = s.errorResponse(http.StatusBadRequest, err.Error())
		s.write(conn, exchange, nil)
		return
	}
	exchange.Path = path

	var file []byte
	exchange.Status, exchange.Response, exchange.File, file = s.respond(path)
	s.write(conn, exchange, file)
}

// respond returns the status, response and any file content for a request for path.
func (s *Server) respond(path string) (status int, response []byte, file string, content []byte) {
	if s.config.Static == "" {
		if path != s.config.Path {
			return http.StatusNotFound, s.notFound(path), "", nil
		}
		status, response := s.computed()
		return status, response, "", nil
	}

	rel, ok := under(s.config.Path, path)
	if !ok {
		return http.StatusNotFound, s.notFound(path), "", nil
	}

	return s.static(path, rel)
}

// write writes the response to conn and tells the observer about it.
func (s *Server) write(conn net.Conn, exchange Exchange, file []byte) {
	if _, err := conn.Write(exchange.Response); err != nil {
		s.logger.Warn("mock server could not write response", "remote", exchange.Remote, "err", err)
	}

	if file != nil {
		if _, err := conn.Write(file); err != nil {
			s.logger.Warn("mock server could not write file", "remote", exchange.Remote, "file", exchange.File, "err", err)
		}
	}

	if s.observer != nil {
		s.observer(exchange)
	}
}

// computed computes the response for the declared path, failing to do so is a 500.
func (s *Server) computed() (int, []byte) {
	var req spec.Request
	if s.config.Respond != nil {
		var err error
		req, err = s.config.Respond()
		if err != nil {
			s.logger.Error("mock server could not compute response", "path", s.config.Path, "err", err)
			return http.StatusInternalServerError, s.errorResponse(http.StatusInternalServerError, err.Error())
		}
	}

	status := s.config.Status
	if status <= 0 {
		status = req.ResponseStatus
	}
	if status <= 0 {
		status = http.StatusOK
	}

	headers := make([]spec.Header, 0, len(req.Headers))
	for _, header := range req.Headers {
		if strings.EqualFold(header.Name, "Content-Length") || strings.EqualFold(header.Name, "Connection") {
			continue
		}
		headers = append(headers, header)
	}

	return status, response(status, headers, req.Body.Bytes())
}

// closeGracefully half closes conn and discards whatever the client still sends, unread
// request bytes would otherwise turn the close into a reset and lose the response.
func closeGracefully(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
		conn.SetReadDeadline(time.Now().Add(time.Second))
		io.Copy(io.Discard, io.LimitReader(conn, maxHeadSize))
	}
	conn.Close()
}

// request is a request read off the wire.
type request struct {
	method string // Request method
	target string // Request target as sent
	raw    []byte // Everything read
}

// readRequest reads a request head line by line up to the blank line, then as many
// body bytes as the Content-Length header declares.
func readRequest(r *bufio.Reader) (request, error) {
	var (
		req    request
		raw    bytes.Buffer
		length int
		first  = true
	)

	for {
		line, err := r.ReadString('\n')
		raw.WriteString(line)
		req.raw = raw.Bytes()

		if err != nil {
			if errors.Is(err, io.EOF) && raw.Len() > 0 {
				return req, fmt.Errorf("%w: connection closed before end of headers", errMalformed)
			}
			return req, err
		}

		if raw.Len() > maxHeadSize {
			return req, fmt.Errorf("%w: request head larger than %d bytes", errMalformed, maxHeadSize)
		}

		line = strings.TrimRight(line, crlf)

		if first {
			first = false
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return req, fmt.Errorf("%w: bad request line %q", errMalformed, line)
			}
			req.method, req.target = fields[0], fields[1]
			continue
		}

		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return req, fmt.Errorf("%w: bad header line %q", errMalformed, line)
		}

		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			length, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil || length < 0 {
				return req, fmt.Errorf("%w: bad Content-Length %q", errMalformed, strings.TrimSpace(value))
			}
		}
	}

	if length > 0 {
		body := make([]byte, length)
		n, err := io.ReadFull(r, body)
		raw.Write(body[:n])
		req.raw = raw.Bytes()
		if err != nil {
			return req, fmt.Errorf("%w: short body, got %d of %d bytes", errMalformed, n, length)
		}
	}

	return req, nil
}

// decodePath strips the query from a request target and percent decodes it.
func decodePath(target string) (string, error) {
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		// Absolute form e.g. "GET http://localhost/path HTTP/1.1"
		target = u.RequestURI()
	}

	path, _, _ := strings.Cut(target, "?")

	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("bad request path %q: %w", path, err)
	}

	return decoded, nil
}

// under reports whether path is the declared path or beneath it, returning the
// remainder if so.
func under(declared, path string) (string, bool) {
	if declared == "/" {
		return path, true
	}

	declared = strings.TrimSuffix(declared, "/")
	if path == declared {
		return "/", true
	}

	rest, ok := strings.CutPrefix(path, declared+"/")
	if !ok {
		return "", false
	}

	return "/" + rest, true
}

// response builds a complete response.
func response(status int, headers []spec.Header, body []byte) []byte {
	buf := &bytes.Buffer{}
	head(buf, status)

	for _, header := range headers {
		fmt.Fprintf(buf, "%s: %s%s", header.Name, header.Value, crlf)
	}

	fmt.Fprintf(buf, "Content-Length: %d%s", len(body), crlf)
	buf.WriteString(crlf)
	buf.Write(body)

	return buf.Bytes()
}

// head writes the status line and the headers every response carries.
func head(buf *bytes.Buffer, status int) {
	text := http.StatusText(status)
	if text == "" {
		text = "Status"
	}

	fmt.Fprintf(buf, "HTTP/1.1 %d %s%s", status, text, crlf)
	fmt.Fprintf(buf, "Date: %s%s", time.Now().UTC().Format(http.TimeFormat), crlf)
	fmt.Fprintf(buf, "Server: %s%s", serverName, crlf)
	fmt.Fprintf(buf, "Connection: close%s", crlf)
}
