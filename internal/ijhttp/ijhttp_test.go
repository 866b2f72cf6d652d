package ijhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/ijhttp"
	"go.followtheprocess.codes/test"
	"go.uber.org/goleak"
)

// ignoreSignals ignores the signal handling goroutine, once started it lives for the
// rest of the process.
var ignoreSignals = goleak.IgnoreAnyFunction("os/signal.loop")

// write writes files into a fresh temporary directory, returning the directory.
func write(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, contents := range files {
		test.Ok(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}

	return dir
}

// freePort returns a local TCP port that nothing is listening on.
func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	test.Ok(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	test.Ok(t, listener.Close())

	return port
}

// fetch GETs url, retrying while the server is coming up, and returns the body.
func fetch(t *testing.T, url string) string {
	t.Helper()

	client := &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}
	defer client.CloseIdleConnections()

	deadline := time.Now().Add(5 * time.Second)
	for {
		response, err := client.Get(url)
		if err != nil {
			if time.Now().After(deadline) {
				t.Fatalf("GET %s: %v", url, err)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		contents, err := io.ReadAll(response.Body)
		response.Body.Close()
		test.Ok(t, err)

		return string(contents)
	}
}

func TestCheck(t *testing.T) {
	good := filepath.Join("testdata", "check", "good.http")
	bad := filepath.Join("testdata", "check", "bad.http")

	t.Run("good", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := ijhttp.New(stdout, stderr, false)

		err := app.Check([]string{good})
		test.Ok(t, err)

		// Stderr should be empty
		test.Equal(t, stderr.String(), "")

		// Stdout should have the success message
		want := fmt.Sprintf("Success: %s is valid\n", good)
		test.Equal(t, stdout.String(), want)
	})

	t.Run("bad", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := ijhttp.New(stdout, stderr, false)

		err := app.Check([]string{bad})
		test.Err(t, err)
		test.Equal(t, err.Error(), "1 of 1 file(s) contain syntax errors")

		got := stderr.String()

		// Replace \ with / on windows
		if runtime.GOOS == "windows" {
			got = strings.ReplaceAll(got, `\`, "/")
		}

		// Stderr should have the syntax error
		test.True(
			t,
			strings.Contains(got, `testdata/check/bad.http:1:12-16: bad timeout value: time: invalid duration "soon"`),
			test.Context("stderr was %q", got),
		)

		// Stdout should be empty
		test.Equal(t, stdout.String(), "")
	})

	t.Run("keeps going after a failure", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Check([]string{bad, good})
		test.Err(t, err)
		test.Equal(t, err.Error(), "1 of 2 file(s) contain syntax errors")
		test.True(t, strings.Contains(stdout.String(), "good.http is valid"))
	})

	t.Run("glob", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Check([]string{"testdata/**/good*.http"})
		test.Ok(t, err)
		test.True(t, strings.Contains(stdout.String(), "good.http is valid"), test.Context("stdout was %q", stdout.String()))
	})

	t.Run("glob with no matches", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Check([]string{"testdata/**/*.nope"})
		test.Err(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Check([]string{filepath.Join("testdata", "missing.http")})
		test.Err(t, err)
	})
}

func TestShow(t *testing.T) {
	good := filepath.Join("testdata", "check", "good.http")

	t.Run("template", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := ijhttp.New(stdout, stderr, false)

		err := app.Show(good, ijhttp.ShowOptions{})
		test.Ok(t, err)

		test.Equal(t, stderr.String(), "")

		for _, want := range []string{
			"@base = https://api.example.com",
			"### Good",
			"GET {{base}}/users HTTP/1.1",
			"Accept: application/json",
			"### Create",
			`{"name": "{{$random.alphanumeric(8)}}"}`,
		} {
			test.True(t, strings.Contains(stdout.String(), want), test.Context("stdout missing %q:\n%s", want, stdout.String()))
		}
	})

	t.Run("resolved", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Show(good, ijhttp.ShowOptions{Resolve: true})
		test.Ok(t, err)

		test.True(t, strings.Contains(stdout.String(), "GET https://api.example.com/users HTTP/1.1"))
		test.False(t, strings.Contains(stdout.String(), "{{"), test.Context("unresolved tokens in:\n%s", stdout.String()))
	})

	t.Run("resolved json", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Show(good, ijhttp.ShowOptions{Resolve: true, JSON: true})
		test.Ok(t, err)

		var got struct {
			Requests []struct {
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"requests"`
		}
		test.Ok(t, json.Unmarshal(stdout.Bytes(), &got))

		test.Equal(t, len(got.Requests), 2)
		test.Equal(t, got.Requests[0].Name, "Good")
		test.Equal(t, got.Requests[0].URL, "https://api.example.com/users")
	})
}

func TestCurl(t *testing.T) {
	dir := write(t, map[string]string{
		"http-client.env.json": `{"dev": {"host": "https://dev.example.com"}, "prod": {"host": "https://example.com"}}`,
		"users.http":           "### Users\nGET {{host}}/users\nAccept: application/json\n",
	})
	file := filepath.Join(dir, "users.http")

	t.Run("curl", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Curl(file, "Users", ijhttp.CurlOptions{ResolveOptions: ijhttp.ResolveOptions{Env: "dev"}})
		test.Ok(t, err)

		want := "curl -X GET --location 'https://dev.example.com/users' \\\n  -H 'Accept: application/json'\n"
		test.Diff(t, stdout.String(), want)
	})

	t.Run("raw", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Curl(file, "Users", ijhttp.CurlOptions{Raw: true, ResolveOptions: ijhttp.ResolveOptions{Env: "prod"}})
		test.Ok(t, err)

		want := "### Users\r\nGET https://example.com/users\r\nAccept: application/json\n"
		test.Diff(t, stdout.String(), want)
	})

	t.Run("strict", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Curl(file, "Users", ijhttp.CurlOptions{ResolveOptions: ijhttp.ResolveOptions{Strict: true}})
		test.Err(t, err)
		test.True(t, strings.Contains(err.Error(), "host"), test.Context("got %v", err))
	})

	t.Run("missing request", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Curl(file, "Nope", ijhttp.CurlOptions{})
		test.Err(t, err)
		test.True(t, strings.Contains(err.Error(), `does not contain request "Nope", it has: Users`), test.Context("got %v", err))
	})
}

func TestEnv(t *testing.T) {
	dir := write(t, map[string]string{
		"http-client.env.json":         `{"dev": {"host": "https://dev.example.com", "user": "shared"}, "prod": {"host": "https://example.com"}}`,
		"http-client.private.env.json": `{"dev": {"user": "private"}}`,
		"api.http":                     "GET {{host}}\n",
	})
	file := filepath.Join(dir, "api.http")

	t.Run("list", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		test.Ok(t, app.Env(file, ijhttp.ResolveOptions{}))
		test.Diff(t, stdout.String(), "  dev\n  prod\n")
	})

	t.Run("selected", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		test.Ok(t, app.Env(file, ijhttp.ResolveOptions{Env: "dev"}))
		test.Diff(t, stdout.String(), "* dev\n  prod\n\nhost = https://dev.example.com\nuser = private\n")
	})

	t.Run("unknown", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Env(file, ijhttp.ResolveOptions{Env: "staging"})
		test.Err(t, err)
		test.Equal(t, err.Error(), `environment "staging" not found, expected one of dev, prod`)
	})
}

func TestRequests(t *testing.T) {
	src := "### Good\n" +
		"GET https://example.com/{{missing}}\n" +
		"\n" +
		"### Broken\n" +
		"POST https://example.com/upload\n" +
		"Content-Type: application/json\n" +
		"\n" +
		"< ./missing.json\n"

	file := filepath.Join(write(t, map[string]string{"api.http": src}), "api.http")

	stderr := &bytes.Buffer{}
	app := ijhttp.New(&bytes.Buffer{}, stderr, false)

	requests, err := app.Requests(file, ijhttp.ResolveOptions{Strict: true})
	test.Ok(t, err)
	test.Equal(t, len(requests), 2)

	test.Equal(t, requests[0].Name, "Good")
	test.Equal(t, requests[0].URL, "https://example.com/{{missing}}")

	test.Equal(t, requests[1].Name, "Broken")
	test.Equal(t, requests[1].Method, "POST")
	test.Equal(t, requests[1].URL, "https://example.com/upload")
	test.True(t, strings.Contains(stderr.String(), "could not resolve request"), test.Context("stderr was %q", stderr.String()))
}

func TestDo(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSignals)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/7" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Date", "fixed")
		fmt.Fprint(w, `{"id": 7}`)
	}))
	defer server.Close()

	src := fmt.Sprintf(`@host = %s

### Test
< {%% request.variables.set("id", "7") %%}
GET {{host}}/users/{{id}}
Accept: application/json

> {%% client.test("status ok", function () { if (response.status !== 200) throw new Error("bad status"); }); %%}

### Failing
GET {{host}}/users/7

> {%% client.assert(response.status === 201, "created"); %%}

### Mock
MOCK_SERVER /api
`, server.URL)

	dir := write(t, map[string]string{"api.http": src})
	file := filepath.Join(dir, "api.http")

	t.Run("ok", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		output := filepath.Join(t.TempDir(), "out.json")

		err := app.Do(context.Background(), file, "Test", ijhttp.DoOptions{
			Output:            output,
			Timeout:           5 * time.Second,
			ConnectionTimeout: time.Second,
		})
		test.Ok(t, err)

		for _, want := range []string{
			"GET " + server.URL + "/users/7",
			"200 OK",
			"Content-Type: application/json",
			`{"id": 7}`,
			"status ok",
		} {
			test.True(t, strings.Contains(stdout.String(), want), test.Context("stdout missing %q:\n%s", want, stdout.String()))
		}

		saved, err := os.ReadFile(output)
		test.Ok(t, err)
		test.Equal(t, string(saved), `{"id": 7}`)
	})

	t.Run("failing test", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		err := app.Do(context.Background(), file, "Failing", ijhttp.DoOptions{Timeout: 5 * time.Second})
		test.Err(t, err)
		test.Equal(t, err.Error(), "1 of 1 response test(s) failed")
		test.True(t, strings.Contains(stdout.String(), "created"))
	})

	t.Run("mock request", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Do(context.Background(), file, "Mock", ijhttp.DoOptions{})
		test.Err(t, err)
	})
}

func TestDoNetworkError(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSignals)

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	dir := write(t, map[string]string{"api.http": "### Gone\nGET " + url + "/gone\n"})

	stdout := &bytes.Buffer{}
	app := ijhttp.New(stdout, &bytes.Buffer{}, false)

	err := app.Do(context.Background(), filepath.Join(dir, "api.http"), "Gone", ijhttp.DoOptions{Timeout: time.Second})
	test.Err(t, err)
	test.True(t, strings.HasPrefix(err.Error(), "HTTP:"), test.Context("got %v", err))

	// The description of what was being sent survives
	test.True(t, strings.Contains(stdout.String(), "GET "+url+"/gone"), test.Context("stdout was %q", stdout.String()))
}

func TestMock(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreSignals)

	dir := write(t, map[string]string{
		"mock.http": "### Mock\nMOCK_SERVER http://127.0.0.1:0/api\nContent-Type: text/plain\n\nhello\n\n### Get\nGET https://example.com\n",
	})
	file := filepath.Join(dir, "mock.http")

	t.Run("serves until cancelled", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		app := ijhttp.New(stdout, &bytes.Buffer{}, false)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := app.Mock(ctx, file, "Mock", ijhttp.MockOptions{})
		test.Ok(t, err)
		test.True(t, strings.Contains(stdout.String(), "Serving /api"), test.Context("stdout was %q", stdout.String()))
	})

	t.Run("resolves every connection", func(t *testing.T) {
		src := "### Greet\n" +
			"< {% request.variables.set(\"greeting\", \"hi\") %}\n" +
			"MOCK_SERVER /greet\n" +
			"Content-Type: text/plain\n" +
			"\n" +
			"{{greeting}} there {{$uuid}}\n"

		greet := filepath.Join(write(t, map[string]string{"greet.http": src}), "greet.http")
		port := freePort(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		done := make(chan error, 1)
		go func() {
			done <- app.Mock(ctx, greet, "Greet", ijhttp.MockOptions{Port: port})
		}()

		url := fmt.Sprintf("http://127.0.0.1:%d/greet", port)
		first := fetch(t, url)
		second := fetch(t, url)

		cancel()
		test.Ok(t, <-done)

		test.True(t, strings.HasPrefix(first, "hi there "), test.Context("first was %q", first))
		test.True(t, strings.HasPrefix(second, "hi there "), test.Context("second was %q", second))
		test.NotEqual(t, first, second)
	})

	t.Run("not a mock", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Mock(context.Background(), file, "Get", ijhttp.MockOptions{})
		test.Err(t, err)
		test.Equal(t, err.Error(), "request Get is not a MOCK_SERVER request")
	})

	t.Run("missing static folder", func(t *testing.T) {
		app := ijhttp.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Mock(context.Background(), file, "Mock", ijhttp.MockOptions{Static: filepath.Join(dir, "nope")})
		test.Err(t, err)
	})
}
