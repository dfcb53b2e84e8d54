package seed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mocify/mocify/pkg/route"
)

// File is the on-disk shape of a seed file.
type File struct {
	Collections []CollectionSpec `yaml:"collections"`
}

// CollectionSpec declares a collection and its routes.
type CollectionSpec struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Port        int         `yaml:"port"`
	BasePath    string      `yaml:"basePath,omitempty"`
	Routes      []RouteSpec `yaml:"routes,omitempty"`
}

// RouteSpec declares one route. Method defaults to GET and Status to 200.
// ID defaults to a UUID derived from the collection, method and path, so
// re-applying the same file updates routes in place.
type RouteSpec struct {
	ID      string          `yaml:"id,omitempty"`
	Name    string          `yaml:"name,omitempty"`
	Method  string          `yaml:"method,omitempty"`
	Path    string          `yaml:"path"`
	Status  int             `yaml:"status,omitempty"`
	Headers route.HeaderSet `yaml:"headers,omitempty"`
	Body    *string         `yaml:"body,omitempty"`
	DelayMs *int            `yaml:"delayMs,omitempty"`
}

// Entry is a collection read from a seed file, with its routes.
type Entry struct {
	Source     string
	Collection *route.Collection
	Routes     []*route.Route
}

// Bundle is the validated result of loading a set of seed files.
type Bundle struct {
	Files   []string
	Entries []*Entry
}

// CollectionIDs returns the IDs of every collection in the bundle.
func (b *Bundle) CollectionIDs() []string {
	ids := make([]string, 0, len(b.Entries))
	for _, e := range b.Entries {
		ids = append(ids, e.Collection.ID)
	}
	return ids
}

// RouteCount returns the number of routes across all collections.
func (b *Bundle) RouteCount() int {
	n := 0
	for _, e := range b.Entries {
		n += len(e.Routes)
	}
	return n
}

// ErrNoFiles is returned by Load when no pattern matched a file.
var ErrNoFiles = errors.New("no seed files matched")

var routeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://mocify.dev/routes"))

// RouteID returns the ID a seeded route gets when its file does not set one.
func RouteID(collectionID string, method route.Method, path string) string {
	return uuid.NewSHA1(routeNamespace, []byte(collectionID+"\x00"+method.String()+"\x00"+path)).String()
}

// Load expands patterns relative to baseDir, then parses and validates every
// matching file. Files are read in sorted order and each file is read once
// even when several patterns match it. Collection IDs and ports must be
// unique across the whole set.
func Load(patterns []string, baseDir string) (*Bundle, error) {
	files, err := Expand(patterns, baseDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, strings.Join(patterns, ", "))
	}

	bundle := &Bundle{Files: files}
	ids := make(map[string]string)
	ports := make(map[int]string)
	for _, path := range files {
		entries, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", relative(baseDir, path), err)
		}
		for _, e := range entries {
			c := e.Collection
			if prev, ok := ids[c.ID]; ok {
				return nil, fmt.Errorf("loading %s: collection %q already defined in %s",
					relative(baseDir, path), c.ID, relative(baseDir, prev))
			}
			if prev, ok := ports[c.Port]; ok {
				return nil, fmt.Errorf("loading %s: port %d of collection %q already used by collection %q",
					relative(baseDir, path), c.Port, c.ID, prev)
			}
			ids[c.ID] = path
			ports[c.Port] = c.ID
			bundle.Entries = append(bundle.Entries, e)
		}
	}
	return bundle, nil
}

// LoadFile parses and validates a single seed file.
func LoadFile(path string) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied: %s", path)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	var file File
	if err := yaml.Unmarshal([]byte(ExpandEnvVars(string(data))), &file); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(file.Collections) == 0 {
		return nil, fmt.Errorf("no collections defined: %s", path)
	}

	entries := make([]*Entry, 0, len(file.Collections))
	for i, spec := range file.Collections {
		e, err := spec.build(path)
		if err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s CollectionSpec) build(source string) (*Entry, error) {
	c := &route.Collection{
		ID:          strings.TrimSpace(s.ID),
		Name:        s.Name,
		Description: s.Description,
		Port:        s.Port,
		BasePath:    s.BasePath,
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	e := &Entry{Source: source, Collection: c}
	seen := make(map[string]int)
	for i, rs := range s.Routes {
		r, err := rs.build(c.ID)
		if err != nil {
			return nil, fmt.Errorf("collection %q: routes[%d]: %w", c.ID, i, err)
		}
		if prev, ok := seen[r.Key()]; ok {
			return nil, fmt.Errorf("collection %q: routes[%d]: %s already defined by routes[%d]", c.ID, i, r.Key(), prev)
		}
		seen[r.Key()] = i
		e.Routes = append(e.Routes, r)
	}
	return e, nil
}

func (s RouteSpec) build(collectionID string) (*route.Route, error) {
	method := route.MethodGet
	if s.Method != "" {
		m, err := route.ParseMethod(s.Method)
		if err != nil {
			return nil, &route.ValidationError{Field: "method", Message: err.Error()}
		}
		method = m
	}
	status := s.Status
	if status == 0 {
		status = 200
	}

	r := &route.Route{
		ID:              s.ID,
		CollectionID:    collectionID,
		Name:            s.Name,
		Method:          method,
		Path:            s.Path,
		StatusCode:      status,
		ResponseBody:    s.Body,
		ResponseHeaders: s.Headers,
		DelayMs:         s.DelayMs,
	}
	if r.ID == "" {
		r.ID = RouteID(collectionID, method, s.Path)
	}
	if r.Name == "" {
		r.Name = r.Key()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Expand resolves patterns against baseDir and returns the sorted, de-duplicated
// list of matching regular files. Patterns without glob characters must name
// an existing file.
func Expand(patterns []string, baseDir string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		resolved := resolvePath(baseDir, pattern)

		var matches []string
		if hasMeta(resolved) {
			m, err := doublestar.FilepathGlob(resolved, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
			}
			matches = m
		} else {
			info, err := os.Stat(resolved)
			if err != nil {
				return nil, fmt.Errorf("seed file %q: %w", pattern, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("seed file %q is a directory", pattern)
			}
			matches = []string{resolved}
		}

		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}

func relative(baseDir, path string) string {
	if baseDir == "" {
		return path
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel == "" {
		return path
	}
	return rel
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvVars expands ${VAR_NAME} and ${VAR_NAME:-default}. Unset or empty
// variables without a default expand to "".
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if val := os.Getenv(sub[1]); val != "" {
			return val
		}
		if len(sub) >= 3 {
			return sub[2]
		}
		return ""
	})
}
