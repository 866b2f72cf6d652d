// Package client sends resolved requests over the network, plain HTTP requests with
// net/http and WEBSOCKET requests as a websocket session.
//
// Network failures never lose the description of the request that was being sent,
// they are captured in the [Result] alongside it.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/matoboco/IJ-HttpClient/internal/render"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"go.followtheprocess.codes/log"
)

const (
	messageSeparator = "==="                  // Line separating websocket messages in a request body
	waitForServer    = "=== wait-for-server" // Line separating messages, waiting for a server message first

	maxMessageSize = 16 << 20 // Largest websocket message read
)

// Options override the per request configuration, zero values leave the request's
// own configuration in place.
type Options struct {
	Timeout           time.Duration // Overall request timeout
	ConnectionTimeout time.Duration // Connection timeout
	NoRedirect        bool          // Don't follow redirects
}

// Message is a single websocket message.
type Message struct {
	Data   []byte // Message payload
	Binary bool   // Whether it was a binary message
}

// Response is a received response.
type Response struct {
	Header     http.Header   // Response headers
	Status     string        // Status line e.g. "200 OK"
	Proto      string        // Protocol e.g. "HTTP/1.1"
	Body       []byte        // Response body
	Messages   []Message     // Messages received over a websocket session
	StatusCode int           // Status code
	Duration   time.Duration // How long the exchange took
}

// Result is the outcome of sending a request.
type Result struct {
	Err         error        // Anything that went wrong, the response may be partial
	Description string       // Raw text of the request that was sent
	Request     spec.Request // The request that was sent
	Response    Response     // The response, possibly partial
}

// Client sends requests.
type Client struct {
	logger  *log.Logger
	options Options
}

// New returns a new [Client].
func New(logger *log.Logger, options Options) *Client {
	return &Client{logger: logger, options: options}
}

// Send sends req and waits for the response.
//
// Errors are never returned directly, they are captured in [Result.Err].
func (c *Client) Send(ctx context.Context, req spec.Request) Result {
	result := Result{
		Request:     req,
		Description: render.Raw(req),
	}

	start := time.Now()
	c.logger.Debug("sending request", "name", req.Name, "method", req.Method, "url", req.URL)

	var err error
	if req.IsWebSocket() {
		result.Response, err = c.sendWebSocket(ctx, req)
	} else {
		result.Response, err = c.sendHTTP(ctx, req)
	}

	result.Response.Duration = time.Since(start)
	result.Err = err

	c.logger.Debug(
		"request finished",
		"name", req.Name,
		"status", result.Response.StatusCode,
		"took", result.Response.Duration,
		"err", err,
	)

	return result
}

// Start prepares and sends a request in the background.
//
// prepare runs on the background goroutine before anything is sent, it is where
// scripts run and variables are resolved. An error from prepare ends the execution
// without sending anything.
func (c *Client) Start(ctx context.Context, prepare func(ctx context.Context) (spec.Request, error)) *Execution {
	ctx, cancel := context.WithCancel(ctx)

	execution := &Execution{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(execution.done)
		defer cancel()

		req, err := prepare(ctx)
		if err != nil {
			execution.result = Result{Err: err}
			return
		}

		execution.result = c.Send(ctx, req)
	}()

	return execution
}

// timeouts returns the effective timeouts for req.
func (c *Client) timeouts(req spec.Request) (timeout, connect time.Duration) {
	timeout, connect = req.Timeout, req.ConnectionTimeout
	if c.options.Timeout > 0 {
		timeout = c.options.Timeout
	}
	if c.options.ConnectionTimeout > 0 {
		connect = c.options.ConnectionTimeout
	}
	return timeout, connect
}

// httpClient returns a configured [http.Client] for req.
func (c *Client) httpClient(req spec.Request) *http.Client {
	timeout, connect := c.timeouts(req)

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
		TLSHandshakeTimeout: connect,
		ForceAttemptHTTP2:   !req.IsWebSocket() && !strings.HasPrefix(strings.ToUpper(req.HTTPVersion), "HTTP/1"),
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	if req.NoRedirect || c.options.NoRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client
}

// sendHTTP sends a plain HTTP request.
func (c *Client) sendHTTP(ctx context.Context, req spec.Request) (Response, error) {
	client := c.httpClient(req)
	defer client.CloseIdleConnections()

	httpRequest, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body.Bytes()))
	if err != nil {
		return Response{}, fmt.Errorf("could not build request: %w", err)
	}

	httpRequest.ContentLength = int64(req.Body.Len())
	if httpRequest.ContentLength == 0 {
		httpRequest.Body = http.NoBody
	}

	for _, header := range req.Headers {
		if strings.EqualFold(header.Name, "Host") {
			httpRequest.Host = header.Value
			continue
		}
		httpRequest.Header.Add(header.Name, header.Value)
	}

	response, err := client.Do(httpRequest)
	if err != nil {
		return Response{}, fmt.Errorf("HTTP: %w", err)
	}
	defer response.Body.Close()

	result := Response{
		Status:     response.Status,
		StatusCode: response.StatusCode,
		Proto:      response.Proto,
		Header:     response.Header,
	}

	result.Body, err = io.ReadAll(response.Body)
	if err != nil {
		return result, fmt.Errorf("could not read response body: %w", err)
	}

	return result, nil
}

// sendWebSocket runs a websocket session: the messages in the request body are sent and
// messages are read back until the server closes the session or the request times out.
func (c *Client) sendWebSocket(ctx context.Context, req spec.Request) (Response, error) {
	timeout, _ := c.timeouts(req)

	session, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	header := make(http.Header, len(req.Headers))
	for _, h := range req.Headers {
		header.Add(h.Name, h.Value)
	}

	client := c.httpClient(req)
	client.Timeout = 0 // The session context bounds the whole session
	defer client.CloseIdleConnections()

	conn, response, err := websocket.Dial(session, req.URL, &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: header,
	})
	if response != nil && response.Body != nil {
		defer response.Body.Close()
	}
	if err != nil {
		return Response{}, fmt.Errorf("websocket: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)

	// Cancellation must tear the connection down rather than wait for a close handshake
	stop := context.AfterFunc(ctx, func() {
		conn.CloseNow()
	})
	defer stop()

	result := Response{
		Status:     response.Status,
		StatusCode: response.StatusCode,
		Proto:      response.Proto,
		Header:     response.Header,
	}

	for _, message := range messages(req.Body.Text) {
		if message.wait {
			if err := c.receive(session, conn, &result); err != nil {
				return result, c.finish(ctx, conn, err)
			}
		}

		if message.waitOnly {
			continue
		}

		if err := conn.Write(session, websocket.MessageText, []byte(message.text)); err != nil {
			return result, c.finish(ctx, conn, fmt.Errorf("websocket: could not send message: %w", err))
		}
	}

	for {
		if err := c.receive(session, conn, &result); err != nil {
			return result, c.finish(ctx, conn, err)
		}
	}
}

// receive reads a single message into result.
func (c *Client) receive(ctx context.Context, conn *websocket.Conn, result *Response) error {
	kind, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}

	c.logger.Debug("websocket message received", "bytes", len(data))
	result.Messages = append(result.Messages, Message{Data: data, Binary: kind == websocket.MessageBinary})

	return nil
}

// finish ends a websocket session after err stopped it, returning nil if that was
// a normal end of the session.
func (c *Client) finish(ctx context.Context, conn *websocket.Conn, err error) error {
	defer conn.CloseNow()

	if ctx.Err() != nil {
		return fmt.Errorf("websocket: %w", ctx.Err())
	}

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		// The session ran for as long as it was allowed to, say goodbye
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}

	return fmt.Errorf("websocket: %w", err)
}

// message is a single outgoing websocket message.
type message struct {
	text     string // Message payload
	wait     bool   // Wait for a server message before sending
	waitOnly bool   // Nothing to send, only wait
}

// messages splits a websocket request body into messages.
func messages(text string) []message {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		out     []message
		current []string
		wait    bool
	)

	flush := func() {
		switch {
		case len(current) > 0:
			out = append(out, message{text: strings.Join(current, "\n"), wait: wait})
		case wait:
			// A wait with no message after it still waits
			out = append(out, message{wait: true, waitOnly: true})
		}
		current = nil
		wait = false
	}

	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch strings.TrimSpace(line) {
		case messageSeparator:
			flush()
		case waitForServer:
			flush()
			wait = true
		default:
			current = append(current, line)
		}
	}
	flush()

	return out
}
