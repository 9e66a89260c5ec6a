// Package loader reads resource files from disk for import into the store.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"fhirsync/internal/resource"
)

// File is one imported file and the resources it contained.
type File struct {
	Path      string
	Resources []*resource.Resource
}

// Loader walks a directory and decodes every .json, .yaml and .yml file.
// A Bundle is unpacked into its entry resources.
type Loader struct {
	patterns []string
}

// New creates a Loader. patterns are ignore globs applied on top of the
// root's ignore file.
func New(patterns []string) *Loader {
	return &Loader{patterns: patterns}
}

// LoadDir decodes every resource file under root. Hidden directories are
// skipped along with anything matched by the ignore patterns.
func (l *Loader) LoadDir(root string) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat import root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import root is not a directory: %s", root)
	}

	extra, err := ReadIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(append(append([]string{}, l.patterns...), extra...))

	var files []File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || matcher.Match(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) || !supported(p) {
			return nil
		}

		resources, err := LoadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: p, Resources: resources})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking import root: %w", err)
	}
	return files, nil
}

// LoadFile decodes a single resource file. YAML files may hold several
// documents.
func LoadFile(path string) ([]*resource.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var resources []*resource.Resource
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		r, err := resource.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		resources, err = unbundle(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".yaml", ".yml":
		resources, err = decodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	return resources, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func decodeYAML(data []byte) ([]*resource.Resource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var out []*resource.Resource
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
		if doc == nil {
			continue
		}

		fields, ok := normalize(doc).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("yaml document is not a mapping")
		}
		r, err := resource.FromFields(fields)
		if err != nil {
			return nil, err
		}
		unpacked, err := unbundle(r)
		if err != nil {
			return nil, err
		}
		out = append(out, unpacked...)
	}
	return out, nil
}

// normalize converts the generic maps yaml produces for non-string keys into
// JSON-compatible string-keyed maps.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalize(elem)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalize(elem)
		}
		return out
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	default:
		return val
	}
}

func unbundle(r *resource.Resource) ([]*resource.Resource, error) {
	if r.Type != "Bundle" {
		return []*resource.Resource{r}, nil
	}

	entries, _ := r.Fields["entry"].([]any)
	out := make([]*resource.Resource, 0, len(entries))
	for i, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bundle entry %d is not an object", i)
		}
		fields, ok := entry["resource"].(map[string]any)
		if !ok {
			continue
		}
		inner, err := resource.FromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}
		out = append(out, inner)
	}
	return out, nil
}
