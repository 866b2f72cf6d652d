package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

// waitDelay is how long $exec waits for output pipes to close after the command is killed.
const waitDelay = 500 * time.Millisecond

// scriptFuncs returns $eval and $exec.
func scriptFuncs() []Function {
	eval := function{name: "$eval", usage: `$eval("expression")`, min: 1, max: 1}
	eval.call = func(_ Context, args []variable.Literal) (string, error) {
		src, err := eval.stringArg(args, 0)
		if err != nil {
			return "", err
		}
		return Eval(src)
	}

	run := function{name: "$exec", usage: `$exec("command")`, min: 1, max: 1}
	run.call = func(ctx Context, args []variable.Literal) (string, error) {
		command, err := run.stringArg(args, 0)
		if err != nil {
			return "", err
		}
		return Exec(command, ctx.execTimeout())
	}

	return []Function{eval, run}
}

// Eval evaluates a sandboxed expression e.g. "1 + 2" or `upper("abc")` and returns its
// result as a string.
//
// The expression has no access to the filesystem, network or process environment.
func Eval(src string) (string, error) {
	env := map[string]any{}

	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return "", fmt.Errorf("$eval: compile %q: %w", src, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("$eval: run %q: %w", src, err)
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprint(result), nil
}

// Exec runs command in the system shell, waiting at most timeout for it to finish.
//
// Whatever the command wrote to stdout is returned or, if it wrote nothing there, whatever
// it wrote to stderr. A command that times out is not an error, the output captured up
// to that point is returned. Control characters in the output are escaped so the result
// can be placed inside a string literal e.g. in a JSON body.
func Exec(command string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := shell(ctx, command)
	cmd.WaitDelay = waitDelay

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil, errors.Is(err, exec.ErrWaitDelay), errors.As(err, &exitErr):
			// Timed out or failed, the output is still what the user wants to see
		default:
			return "", fmt.Errorf("$exec: %w", err)
		}
	}

	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}

	return escape(strings.TrimRight(output, "\r\n")), nil
}

// shell returns the command to run a shell command line on the current platform.
func shell(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/c", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// escape escapes quotes, backslashes and control characters in s.
func escape(s string) string {
	quoted := strconv.Quote(s)
	return quoted[1 : len(quoted)-1]
}
