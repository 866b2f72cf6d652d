package ijhttp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/matoboco/IJ-HttpClient/internal/mock"
	"github.com/matoboco/IJ-HttpClient/internal/resolve"
	"github.com/matoboco/IJ-HttpClient/internal/spec"
	"go.followtheprocess.codes/hue"
	"go.followtheprocess.codes/msg"
	"golang.org/x/sync/errgroup"
)

// observerTimeFormat is how mock server exchanges are timestamped.
const observerTimeFormat = "2006-01-02 15:04:05.000"

// MockOptions are the flags passed to the `ijhttp mock` subcommand.
type MockOptions struct {
	ResolveOptions
	Static string // Overrides the request's static folder
	Port   int    // Overrides the port from the request's URL
	Status int    // Overrides the request's response status
}

// Mock implements the `ijhttp mock` subcommand, serving a MOCK_SERVER request until
// ctx is cancelled or the user hits Ctrl+C.
//
// The request's pre-request script runs once before serving. The request is then
// resolved again for every connection so built-ins like {{$uuid}} and edits to the
// environment files show up in each response.
func (i IJHTTP) Mock(ctx context.Context, file, name string, options MockOptions) error {
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

	if !strings.EqualFold(request.Method, spec.MethodMock) {
		return fmt.Errorf("request %s is not a %s request", name, spec.MethodMock)
	}

	dir, err := baseDir(file)
	if err != nil {
		return err
	}

	base := i.resolver(file, options.ResolveOptions).With(resolve.WithVars(raw.Vars, request.Vars))

	resolver, err := preRequest(ctx, i.runner(options.ResolveOptions, dir), request, base, dir)
	if err != nil {
		return err
	}

	respond := func() (spec.Request, error) {
		return spec.Resolve(request, resolver)
	}

	resolved, err := respond()
	if err != nil {
		return err
	}

	config, err := mock.ConfigFor(resolved, options.Port)
	if err != nil {
		return err
	}
	config.Respond = respond

	if options.Static != "" {
		config.Static = options.Static
	}

	if options.Status != 0 {
		config.Status = options.Status
	}

	server := mock.New(config, i.logger, observe(i.stdout))
	if err := server.Listen(); err != nil {
		return err
	}

	msg.Finfo(i.stdout, "Serving %s on %s, press Ctrl+C to stop", config.Path, server.Addr())

	group, ctx := errgroup.WithContext(ctx)

	group.Go(server.Serve)
	group.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})

	return group.Wait()
}

// observe returns a mock server observer writing a timestamped line per exchange to w.
func observe(w io.Writer) mock.Observer {
	return func(exchange mock.Exchange) {
		hue.Cyan.Fprintf(w, "%s", exchange.Time.Format(observerTimeFormat))

		status := hue.Green
		if exchange.Status >= 400 {
			status = hue.Red
		}

		fmt.Fprintf(w, " - %s %s -> ", exchange.Method, exchange.Path)
		status.Fprintf(w, "%d", exchange.Status)

		if exchange.File != "" {
			fmt.Fprintf(w, " (%s)", exchange.File)
		}
		fmt.Fprintln(w)
	}
}
