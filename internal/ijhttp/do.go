package ijhttp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/client"
	"github.com/matoboco/IJ-HttpClient/internal/env"
	"github.com/matoboco/IJ-HttpClient/internal/resolve"
	"github.com/matoboco/IJ-HttpClient/internal/script"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"go.followtheprocess.codes/hue"
	"go.followtheprocess.codes/msg"
)

// DoOptions are the flags passed to the `ijhttp do` subcommand.
type DoOptions struct {
	ResolveOptions
	Output            string        // File to save the response body to
	Timeout           time.Duration // Overrides the request's timeout
	ConnectionTimeout time.Duration // Overrides the request's connection timeout
	NoRedirect        bool          // Don't follow redirects
}

// Do implements the `ijhttp do` subcommand.
//
// The request's pre-request script runs first and the variables it sets take precedence
// when resolving the request. The response handler, if any, runs against the response
// and a failing test fails the command. Ctrl+C cancels the request.
func (i IJHTTP) Do(ctx context.Context, file, name string, options DoOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	raw, err := i.parse(file)
	if err != nil {
		return err
	}

	request, err := find(raw, file, name)
	if err != nil {
		return err
	}

	if strings.EqualFold(request.Method, spec.MethodMock) {
		return fmt.Errorf("request %s is a %s request, serve it with `ijhttp mock`", name, spec.MethodMock)
	}

	dir, err := baseDir(file)
	if err != nil {
		return err
	}

	base := i.resolver(file, options.ResolveOptions).With(resolve.WithVars(raw.Vars, request.Vars))
	runner := i.runner(options.ResolveOptions, dir)

	prepare := func(ctx context.Context) (spec.Request, error) {
		resolver, err := preRequest(ctx, runner, request, base, dir)
		if err != nil {
			return spec.Request{}, err
		}
		return spec.Resolve(request, resolver)
	}

	httpClient := client.New(i.logger, client.Options{
		Timeout:           options.Timeout,
		ConnectionTimeout: options.ConnectionTimeout,
		NoRedirect:        options.NoRedirect,
	})

	result := httpClient.Start(ctx, prepare).Wait()

	if result.Description != "" {
		fmt.Fprintln(i.stdout, strings.TrimRight(result.Description, "\r\n"))
		fmt.Fprintln(i.stdout)
	}

	if result.Err != nil {
		return result.Err
	}

	i.showResponse(result)

	if options.Output != "" {
		if err := os.WriteFile(options.Output, responseBody(result.Response), 0o644); err != nil {
			return fmt.Errorf("could not save response: %w", err)
		}
		msg.Fsuccess(i.stdout, "Response saved to %s", options.Output)
	}

	handler, err := script.Load(request.ResponseHandler, request.ResponseHandlerFile, dir)
	if err != nil {
		return err
	}

	results, err := runner.ResponseHandler(ctx, handler, script.Response{
		Headers: result.Response.Header,
		Body:    responseBody(result.Response),
		Status:  result.Response.StatusCode,
	})
	if err != nil {
		return err
	}

	return i.showTests(results)
}

// runner returns a script runner whose environment is the selected one as seen from dir.
func (i IJHTTP) runner(options ResolveOptions, dir string) *script.Runner {
	store := env.New(i.logger, options.ProjectRoot)

	return script.New(i.logger, nil, func(key string) (string, bool) {
		return store.Lookup(key, options.Env, dir)
	})
}

// preRequest runs the pre-request script of request, returning base extended with the
// variables it set.
func preRequest(
	ctx context.Context,
	runner *script.Runner,
	request syntax.Request,
	base *resolve.Resolver,
	dir string,
) (*resolve.Resolver, error) {
	source, err := script.Load(request.PreScript, request.PreScriptFile, dir)
	if err != nil {
		return nil, err
	}

	vars, err := runner.PreRequest(ctx, source, nil)
	if err != nil {
		return nil, err
	}

	return base.With(resolve.WithRuntime(runner.Globals().Runtime(vars))), nil
}

// showResponse writes a received response to stdout.
func (i IJHTTP) showResponse(result client.Result) {
	response := result.Response

	hue.Cyan.Fprintf(i.stdout, "%s %s\n", response.Proto, response.Status)

	keys := make([]string, 0, len(response.Header))
	for key := range response.Header {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		for _, value := range response.Header[key] {
			fmt.Fprintf(i.stdout, "%s: %s\n", key, value)
		}
	}

	if result.Request.NoLog {
		i.logger.Debug("response body not shown", "request", result.Request.Name)
		return
	}

	if result.Request.IsWebSocket() {
		for _, message := range response.Messages {
			if message.Binary {
				fmt.Fprintf(i.stdout, "<= (%d bytes binary)\n", len(message.Data))
				continue
			}
			fmt.Fprintf(i.stdout, "<= %s\n", message.Data)
		}
		return
	}

	if len(response.Body) > 0 {
		fmt.Fprintln(i.stdout)
		fmt.Fprintln(i.stdout, strings.TrimRight(string(response.Body), "\r\n"))
	}

	i.logger.Debug("response received", "status", response.StatusCode, "took", response.Duration)
}

// showTests writes response handler test results, returning an error if any failed.
func (i IJHTTP) showTests(results []script.TestResult) error {
	if len(results) == 0 {
		return nil
	}

	fmt.Fprintln(i.stdout)

	failed := 0
	for _, result := range results {
		if result.Passed {
			hue.Green.Fprintf(i.stdout, "PASS")
			fmt.Fprintf(i.stdout, " %s (%s)\n", result.Name, result.Elapsed)
			continue
		}

		failed++
		hue.Red.Fprintf(i.stdout, "FAIL")
		fmt.Fprintf(i.stdout, " %s: %s\n", result.Name, result.Message)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d response test(s) failed", failed, len(results))
	}

	return nil
}

// responseBody returns the body of a response, the received messages joined by
// newlines for a websocket session.
func responseBody(response client.Response) []byte {
	if len(response.Messages) == 0 {
		return response.Body
	}

	messages := make([][]byte, 0, len(response.Messages))
	for _, message := range response.Messages {
		messages = append(messages, message.Data)
	}

	return bytes.Join(messages, []byte("\n"))
}
