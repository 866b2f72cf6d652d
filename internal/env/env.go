// Package env implements the environment store: layered http-client.env.json and
// http-client.private.env.json files holding named sets of variables.
//
// An environment file is a JSON object whose keys are environment names and whose
// values are objects of variables:
//
//	{
//	  "dev": {"baseUrl": "http://localhost:8080", "auth": {"user": "admin"}},
//	  "common": {"contextPath": "/api"}
//	}
//
// Nested objects are flattened to dotted keys ("auth.user") and the special "common"
// environment applies whichever environment is selected.
package env

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.followtheprocess.codes/log"
)

const (
	// SharedFile is the name of the shared (checked in) environment file.
	SharedFile = "http-client.env.json"

	// PrivateFile is the name of the private (git ignored) environment file, its
	// values take precedence over the shared file.
	PrivateFile = "http-client.private.env.json"

	// Common is the environment whose values apply regardless of the selected one.
	Common = "common"
)

// Role is the role of an environment file.
type Role int

const (
	Shared  Role = iota // Shared
	Private             // Private
)

// String implements [fmt.Stringer] for [Role].
func (r Role) String() string {
	switch r {
	case Shared:
		return "shared"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// filename returns the environment file name for the role.
func (r Role) filename() string {
	if r == Private {
		return PrivateFile
	}
	return SharedFile
}

// Scope is a single environment from a single environment file.
type Scope struct {
	Entries map[string]string // Flattened variables
	Dir     string            // Directory containing the file
	Env     string            // Environment name e.g. "dev" or "common"
	Role    Role              // Whether it came from the shared or private file
}

// Path returns the path of the environment file the scope came from.
func (s Scope) Path() string {
	return filepath.Join(s.Dir, s.Role.filename())
}

// envFile is a parsed environment file, cached against its modification time.
type envFile struct {
	modTime time.Time
	envs    map[string]map[string]string
	size    int64
}

// Store looks up environment variables from the environment files visible
// from a directory.
//
// Files are searched for from the directory of the .http file upwards to the root
// passed to [New], nearer files taking precedence over further ones. Parsed files
// are cached until they change on disk. A Store is safe for concurrent use.
type Store struct {
	logger *log.Logger        // Warnings about malformed files go here
	files  map[string]envFile // Parsed files by path
	root   string             // Directory at which the upwards search stops (inclusive)
	mu     sync.Mutex         // Protects files
}

// New returns a new [Store].
//
// If root is empty, only the directory of the .http file itself is searched.
func New(logger *log.Logger, root string) *Store {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	return &Store{
		logger: logger,
		root:   root,
		files:  make(map[string]envFile),
	}
}

// Lookup returns the raw value of key in the selected environment as seen from baseDir.
//
// The precedence is: the selected environment in the private then shared files, then the
// common environment in the private then shared files. Values are returned as written,
// any variable tokens inside them are left for the caller to resolve.
func (s *Store) Lookup(key, selected, baseDir string) (string, bool) {
	for _, scope := range s.Scopes(selected, baseDir) {
		if value, ok := scope.Entries[key]; ok {
			return value, true
		}
	}
	return "", false
}

// Scopes returns every environment scope that applies to the selected environment
// as seen from baseDir, highest precedence first.
func (s *Store) Scopes(selected, baseDir string) []Scope {
	type step struct {
		env  string
		role Role
	}

	steps := make([]step, 0, 4)
	if selected != "" && selected != Common {
		steps = append(steps, step{env: selected, role: Private}, step{env: selected, role: Shared})
	}
	steps = append(steps, step{env: Common, role: Private}, step{env: Common, role: Shared})

	dirs := s.dirs(baseDir)

	var scopes []Scope
	for _, step := range steps {
		for _, dir := range dirs {
			file := s.load(filepath.Join(dir, step.role.filename()))
			entries, ok := file[step.env]
			if !ok {
				continue
			}
			scopes = append(scopes, Scope{
				Role:    step.role,
				Dir:     dir,
				Env:     step.env,
				Entries: entries,
			})
		}
	}

	return scopes
}

// Snapshot returns the merged variables of the selected environment as seen from baseDir.
func (s *Store) Snapshot(selected, baseDir string) map[string]string {
	scopes := s.Scopes(selected, baseDir)

	merged := make(map[string]string)

	// Lowest precedence first so higher ones overwrite
	for _, scope := range slices.Backward(scopes) {
		for key, value := range scope.Entries {
			merged[key] = value
		}
	}

	return merged
}

// Environments returns the sorted names of the environments declared in any file
// visible from baseDir, excluding [Common].
func (s *Store) Environments(baseDir string) []string {
	seen := make(map[string]struct{})
	for _, dir := range s.dirs(baseDir) {
		for _, role := range []Role{Private, Shared} {
			for name := range s.load(filepath.Join(dir, role.filename())) {
				if name != Common {
					seen[name] = struct{}{}
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// dirs returns the directories to search from baseDir, nearest first.
func (s *Store) dirs(baseDir string) []string {
	dir, err := filepath.Abs(baseDir)
	if err != nil {
		dir = filepath.Clean(baseDir)
	}

	if s.root == "" || !within(s.root, dir) {
		return []string{dir}
	}

	var dirs []string
	for {
		dirs = append(dirs, dir)
		if dir == s.root {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return dirs
}

// within reports whether dir is root or inside it.
func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// load returns the parsed environments of the file at path, using the cache if the
// file hasn't changed. Missing and malformed files have no environments.
func (s *Store) load(path string) map[string]map[string]string {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("could not stat environment file", "path", path, "err", err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.files[path]; ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.envs
	}

	envs, err := parse(path)
	if err != nil {
		s.logger.Warn("malformed environment file, ignoring it", "path", path, "err", err)
		envs = nil
	}

	s.files[path] = envFile{modTime: info.ModTime(), size: info.Size(), envs: envs}
	return envs
}

// parse reads and flattens an environment file.
func parse(path string) (map[string]map[string]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(contents))
	decoder.UseNumber()

	var top any
	if err := decoder.Decode(&top); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	object, ok := top.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level value must be an object of environments, got %s", kind(top))
	}

	envs := make(map[string]map[string]string, len(object))
	for name, value := range object {
		vars, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("environment %q must be an object, got %s", name, kind(value))
		}

		entries := make(map[string]string)
		flatten("", vars, entries)
		envs[name] = entries
	}

	return envs, nil
}

// flatten writes the leaves of object into out under dotted keys, arrays are
// flattened with indexes as in "items[0]". Objects and arrays are also available
// under their own key as compact JSON.
func flatten(prefix string, object map[string]any, out map[string]string) {
	for key, value := range object {
		flattenValue(prefix+key, value, out)
	}
}

// flattenValue writes a single value under key.
func flattenValue(key string, value any, out map[string]string) {
	switch value := value.(type) {
	case map[string]any:
		out[key] = compact(value)
		flatten(key+".", value, out)
	case []any:
		out[key] = compact(value)
		for i, item := range value {
			flattenValue(key+"["+strconv.Itoa(i)+"]", item, out)
		}
	case string:
		out[key] = value
	case json.Number:
		out[key] = value.String()
	case bool:
		out[key] = strconv.FormatBool(value)
	case nil:
		out[key] = ""
	default:
		out[key] = fmt.Sprint(value)
	}
}

// compact returns value as compact JSON.
func compact(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(raw)
}

// kind describes the JSON type of a decoded value for error messages.
func kind(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}
