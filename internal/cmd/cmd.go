// Package cmd implements ijhttp's CLI.
package cmd

import (
	"context"
	"os"
	"slices"

	"github.com/matoboco/IJ-HttpClient/internal/ijhttp"
	"github.com/matoboco/IJ-HttpClient/internal/tui"
	"go.followtheprocess.codes/cli"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build returns the root ijhttp CLI command.
func Build() (*cli.Command, error) {
	var (
		options ijhttp.DoOptions
		debug   bool
	)

	return cli.New(
		"ijhttp",
		slices.Concat(
			[]cli.Option{
				cli.Short("Work with .http files on the command line"),
				cli.Long(rootLong),
				cli.Allow(cli.NoArgs()),
				cli.Version(version),
				cli.Commit(commit),
				cli.BuildDate(date),
				cli.Run(func(cmd *cli.Command, args []string) error {
					dir, err := os.Getwd()
					if err != nil {
						return err
					}

					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return tui.Run(context.Background(), app, dir, options)
				}),
				cli.SubCommands(check, show, env, curl, do, mock),
			},
			resolveFlags(&options.ResolveOptions, &debug),
		)...,
	)
}

const rootLong = `
With no arguments, ijhttp starts an interactive picker for the .http files
under the current directory and sends the request you pick.

Variables are resolved from, in order of precedence: values set by scripts,
built-ins like {{$uuid}}, variables declared in the file and the environment
selected with '--env' from http-client.env.json and http-client.private.env.json.
`

// resolveFlags returns the flags shared by every command that resolves requests.
func resolveFlags(options *ijhttp.ResolveOptions, debug *bool) []cli.Option {
	return []cli.Option{
		cli.Flag(&options.Env, "env", 'e', "", "The environment to take variables from"),
		cli.Flag(
			&options.ProjectRoot,
			"project-root",
			cli.NoShortHand,
			"",
			"Directory where the search for environment files stops",
		),
		cli.Flag(&options.Strict, "strict", cli.NoShortHand, false, "Fail on unresolved variables"),
		cli.Flag(debug, "debug", 'd', false, "Enable debug logging"),
	}
}

// check returns the check subcommand.
func check() (*cli.Command, error) {
	var debug bool
	return cli.New(
		"check",
		cli.Short("Check .http files for syntax errors"),
		cli.Long("Arguments may be paths or globs like 'requests/**/*.http'."),
		cli.Allow(cli.MinArgs(1)),
		cli.Flag(&debug, "debug", 'd', false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
			return app.Check(args)
		}),
	)
}

// show returns the show subcommand.
func show() (*cli.Command, error) {
	var (
		options ijhttp.ShowOptions
		debug   bool
	)
	return cli.New(
		"show",
		slices.Concat(
			[]cli.Option{
				cli.Short("Show the contents of a .http file"),
				cli.RequiredArg("file", "Path of the .http file"),
				cli.Flag(&options.Resolve, "resolve", 'r', false, "Resolve variables and materialise bodies"),
				cli.Flag(&options.JSON, "json", 'j', false, "Output the file as JSON"),
				cli.Run(func(cmd *cli.Command, args []string) error {
					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return app.Show(cmd.Arg("file"), options)
				}),
			},
			resolveFlags(&options.ResolveOptions, &debug),
		)...,
	)
}

// env returns the env subcommand.
func env() (*cli.Command, error) {
	var (
		options ijhttp.ResolveOptions
		debug   bool
	)
	return cli.New(
		"env",
		slices.Concat(
			[]cli.Option{
				cli.Short("List the environments available to a .http file"),
				cli.Long("With '--env', the merged variables of that environment are shown too."),
				cli.RequiredArg("file", "Path of the .http file"),
				cli.Run(func(cmd *cli.Command, args []string) error {
					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return app.Env(cmd.Arg("file"), options)
				}),
			},
			resolveFlags(&options, &debug),
		)...,
	)
}

// curl returns the curl subcommand.
func curl() (*cli.Command, error) {
	var (
		options ijhttp.CurlOptions
		debug   bool
	)
	return cli.New(
		"curl",
		slices.Concat(
			[]cli.Option{
				cli.Short("Render a request as a curl command"),
				cli.RequiredArg("file", ".http file containing the request"),
				cli.RequiredArg("name", "The name of the request to render"),
				cli.Flag(&options.Raw, "raw", cli.NoShortHand, false, "Render the raw HTTP request instead"),
				cli.Run(func(cmd *cli.Command, args []string) error {
					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return app.Curl(cmd.Arg("file"), cmd.Arg("name"), options)
				}),
			},
			resolveFlags(&options.ResolveOptions, &debug),
		)...,
	)
}

const doLong = `
The request headers, body and other settings will be taken from the
file but may be overridden by the use of command line flags like
'--timeout' etc.

Pre-request scripts run before the request is resolved and response
handlers run against the response, a failing response test fails the
command.

Responses can be saved to a file with the '--output' flag.
`

// do returns the do subcommand.
func do() (*cli.Command, error) {
	var (
		options ijhttp.DoOptions
		debug   bool
	)
	return cli.New(
		"do",
		slices.Concat(
			[]cli.Option{
				cli.Short("Execute a http request from a file"),
				cli.Long(doLong),
				cli.RequiredArg("file", ".http file containing the request"),
				cli.RequiredArg("name", "The name of the request to send"),
				cli.Flag(&options.Timeout, "timeout", cli.NoShortHand, 0, "Timeout for the request"),
				cli.Flag(
					&options.ConnectionTimeout,
					"connection-timeout",
					cli.NoShortHand,
					0,
					"Connection timeout for the request",
				),
				cli.Flag(&options.NoRedirect, "no-redirect", cli.NoShortHand, false, "Disable following redirects"),
				cli.Flag(&options.Output, "output", 'o', "", "Name of a file to save the response"),
				cli.Run(func(cmd *cli.Command, args []string) error {
					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return app.Do(context.Background(), cmd.Arg("file"), cmd.Arg("name"), options)
				}),
			},
			resolveFlags(&options.ResolveOptions, &debug),
		)...,
	)
}

const mockLong = `
The request must be a MOCK_SERVER request, its resolved headers and body
are served for its path. With a static folder, files under the path are
served from the folder instead.

The server runs until interrupted with Ctrl+C.
`

// mock returns the mock subcommand.
func mock() (*cli.Command, error) {
	var (
		options ijhttp.MockOptions
		debug   bool
	)
	return cli.New(
		"mock",
		slices.Concat(
			[]cli.Option{
				cli.Short("Serve a MOCK_SERVER request from a file"),
				cli.Long(mockLong),
				cli.RequiredArg("file", ".http file containing the request"),
				cli.RequiredArg("name", "The name of the request to serve"),
				cli.Flag(&options.Port, "port", 'p', 0, "Port to listen on, overrides the request URL"),
				cli.Flag(&options.Static, "static", 's', "", "Folder to serve static files from"),
				cli.Flag(&options.Status, "status", cli.NoShortHand, 0, "Status code of the computed response"),
				cli.Run(func(cmd *cli.Command, args []string) error {
					app := ijhttp.New(cmd.Stdout(), cmd.Stderr(), debug)
					return app.Mock(context.Background(), cmd.Arg("file"), cmd.Arg("name"), options)
				}),
			},
			resolveFlags(&options.ResolveOptions, &debug),
		)...,
	)
}
