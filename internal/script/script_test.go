package script_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/script"
	"go.followtheprocess.codes/log"
	"go.followtheprocess.codes/test"
	"go.uber.org/goleak"
)

func TestPreRequest(t *testing.T) {
	env := func(name string) (string, bool) {
		if name == "host" {
			return "example.com", true
		}
		return "", false
	}

	runner := script.New(log.New(io.Discard), nil, env)

	src := `
request.variables.set("token", "abc" + 1);
request.variables.set("host", request.environment.get("host"));
request.variables.set("existing", request.variables.get("given") + "!");
request.variables.set("missing", String(request.environment.get("nope")));
client.global.set("count", 42);
`

	got, err := runner.PreRequest(context.Background(), src, map[string]string{"given": "yes"})
	test.Ok(t, err)

	test.Equal(t, got["token"], "abc1")
	test.Equal(t, got["host"], "example.com")
	test.Equal(t, got["existing"], "yes!")
	test.Equal(t, got["missing"], "null")
	test.Equal(t, got["given"], "yes")

	count, ok := runner.Globals().Get("count")
	test.True(t, ok)
	test.Equal(t, count, "42")
}

func TestPreRequestEmpty(t *testing.T) {
	runner := script.New(log.New(io.Discard), nil, nil)

	got, err := runner.PreRequest(context.Background(), "   \n", nil)
	test.Ok(t, err)
	test.Equal(t, len(got), 0)
}

func TestConsoleLog(t *testing.T) {
	buf := &bytes.Buffer{}
	runner := script.New(log.New(buf), nil, nil)

	_, err := runner.PreRequest(context.Background(), `console.log("hello", "world"); client.log("from client")`, nil)
	test.Ok(t, err)

	test.True(t, strings.Contains(buf.String(), "hello world"), test.Context("log was %q", buf.String()))
	test.True(t, strings.Contains(buf.String(), "from client"), test.Context("log was %q", buf.String()))
}

func TestResponseHandler(t *testing.T) {
	globals := script.NewGlobals()
	runner := script.New(log.New(io.Discard), globals, nil)

	response := script.Response{
		Status: http.StatusOK,
		Headers: http.Header{
			"Content-Type": []string{"application/json; charset=utf-8"},
			"X-Test":       []string{"yes"},
		},
		Body: []byte(`{"id": 7, "name": "widget"}`),
	}

	src := `
client.test("status is 200", function () {
  if (response.status !== 200) throw new Error("bad status");
});
client.test("fails", function () {
  throw new Error("boom");
});
client.assert(response.headers.valueOf("X-Test") === "yes", "has header");
client.assert(response.contentType.mimeType === "application/json", "mime type");
client.assert(response.contentType.charset === "utf-8", "charset");
client.global.set("id", response.body.id);
client.global.set("name", response.body.name);
`

	results, err := runner.ResponseHandler(context.Background(), src, response)
	test.Ok(t, err)

	test.Equal(t, len(results), 5)

	test.Equal(t, results[0].Name, "status is 200")
	test.True(t, results[0].Passed)

	test.Equal(t, results[1].Name, "fails")
	test.False(t, results[1].Passed)
	test.True(t, strings.Contains(results[1].Message, "boom"), test.Context("message was %q", results[1].Message))

	for _, result := range results[2:] {
		test.True(t, result.Passed, test.Context("assert %q failed", result.Name))
	}

	id, _ := globals.Get("id")
	test.Equal(t, id, "7")

	name, _ := globals.Get("name")
	test.Equal(t, name, "widget")
}

func TestResponseHandlerTextBody(t *testing.T) {
	runner := script.New(log.New(io.Discard), nil, nil)

	response := script.Response{Status: http.StatusTeapot, Body: []byte("short and stout")}

	_, err := runner.ResponseHandler(context.Background(), `client.global.set("body", response.body)`, response)
	test.Ok(t, err)

	body, _ := runner.Globals().Get("body")
	test.Equal(t, body, "short and stout")
}

func TestScriptError(t *testing.T) {
	runner := script.New(log.New(io.Discard), nil, nil)

	_, err := runner.PreRequest(context.Background(), `this is not javascript`, nil)
	test.Err(t, err)
	test.True(t, strings.HasPrefix(err.Error(), "pre-request script:"), test.Context("got %v", err))
}

func TestInterrupt(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := script.New(log.New(io.Discard), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.PreRequest(ctx, `while (true) {}`, nil)
	test.Err(t, err)
	test.True(t, errors.Is(err, script.ErrInterrupted), test.Context("got %v", err))

	// Already cancelled never starts
	_, err = runner.PreRequest(ctx, `request.variables.set("a", "b")`, nil)
	test.True(t, errors.Is(err, script.ErrInterrupted), test.Context("got %v", err))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	test.Ok(t, os.WriteFile(filepath.Join(dir, "pre.js"), []byte(`client.log("hi")`), 0o644))

	got, err := script.Load("inline", "", dir)
	test.Ok(t, err)
	test.Equal(t, got, "inline")

	got, err = script.Load("", "./pre.js", dir)
	test.Ok(t, err)
	test.Equal(t, got, `client.log("hi")`)

	_, err = script.Load("", "missing.js", dir)
	test.Err(t, err)
}

func TestGlobals(t *testing.T) {
	globals := script.NewGlobals()
	globals.Set("a", "global")
	globals.Set("b", "global")

	runtime := globals.Runtime(map[string]string{"b": "request"})
	test.Equal(t, runtime["a"], "global")
	test.Equal(t, runtime["b"], "request")

	globals.Clear("a")
	_, ok := globals.Get("a")
	test.False(t, ok)

	globals.ClearAll()
	test.Equal(t, len(globals.Snapshot()), 0)
}
