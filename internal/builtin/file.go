package builtin

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/matoboco/IJ-HttpClient/internal/syntax"
	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

// fileFuncs returns the built-ins that read local files.
func fileFuncs() []Function {
	base64Func := func(name string) function {
		fn := function{name: name, usage: name + `("path")`, min: 1, max: 1}
		fn.call = func(ctx Context, args []variable.Literal) (string, error) {
			path, err := fn.stringArg(args, 0)
			if err != nil {
				return "", err
			}
			contents, err := os.ReadFile(syntax.FilePath(ctx.BaseDir, path))
			if err != nil {
				return "", fmt.Errorf("%s: %w", name, err)
			}
			return base64.StdEncoding.EncodeToString(contents), nil
		}
		return fn
	}

	read := function{name: "$readString", usage: `$readString("path")`, min: 1, max: 1}
	read.call = func(ctx Context, args []variable.Literal) (string, error) {
		path, err := read.stringArg(args, 0)
		if err != nil {
			return "", err
		}
		contents, err := os.ReadFile(syntax.FilePath(ctx.BaseDir, path))
		if err != nil {
			return "", fmt.Errorf("$readString: %w", err)
		}
		return string(contents), nil
	}

	return []Function{
		base64Func("$imageToBase64"),
		base64Func("$fileToBase64"),
		read,
	}
}
