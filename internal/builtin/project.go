package builtin

import (
	"fmt"
	"path/filepath"

	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

// projectFuncs returns the built-ins that need a [Project].
func projectFuncs() []Function {
	return []Function{
		projectFunc("$projectRoot", func(p *Project) string { return p.Root }),
		projectFunc("$historyFolder", func(p *Project) string { return filepath.Join(p.Root, ".idea", "httpClient") }),
		projectFunc("$mvnTarget", func(p *Project) string {
			if p.ModuleDir == "" {
				return ""
			}
			return filepath.Join(p.ModuleDir, "target")
		}),
	}
}

// projectFunc returns a no-argument built-in derived from the project.
func projectFunc(name string, fn func(p *Project) string) function {
	return function{
		name:  name,
		usage: name,
		call: func(ctx Context, _ []variable.Literal) (string, error) {
			if ctx.Project == nil || ctx.Project.Root == "" {
				return "", fmt.Errorf("%s: %w", name, ErrUnsupportedContext)
			}
			value := fn(ctx.Project)
			if value == "" {
				return "", fmt.Errorf("%s: %w", name, ErrUnsupportedContext)
			}
			return filepath.ToSlash(value), nil
		},
	}
}
