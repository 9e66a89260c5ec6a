// Package index derives the searchable rows of a resource payload: the
// references it holds and its normalized string values.
package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/buger/jsonparser"
)

// Reference is one Reference.reference element found in a payload. Path is
// the dotted element path of the Reference, e.g. "subject" or
// "performer.actor".
type Reference struct {
	Path  string
	Value string
}

// String is one string leaf of a payload with its value normalized.
type String struct {
	Path  string
	Value string
}

// Entries holds everything extracted from a single payload.
type Entries struct {
	References []Reference
	Strings    []String
}

// skipped top-level elements are never string-indexed.
var skipped = map[string]bool{
	"resourceType": true,
	"id":           true,
	"meta":         true,
	"text":         true,
}

// Extract walks a JSON payload and collects its references and strings.
// Array positions are not part of the path. Duplicate entries are dropped.
func Extract(payload []byte) (Entries, error) {
	var e Entries
	if err := walkObject(payload, "", &e); err != nil {
		return Entries{}, fmt.Errorf("extracting index entries: %w", err)
	}

	e.References = dedupe(e.References, func(r Reference) string { return r.Path + "\x00" + r.Value })
	e.Strings = dedupe(e.Strings, func(s String) string { return s.Path + "\x00" + s.Value })
	return e, nil
}

// ReferencesOf returns only the distinct reference values in a payload.
func ReferencesOf(payload []byte) ([]Reference, error) {
	e, err := Extract(payload)
	if err != nil {
		return nil, err
	}
	return e.References, nil
}

func walkObject(data []byte, path string, e *Entries) error {
	return jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name := string(key)
		if path == "" && skipped[name] {
			return nil
		}
		child := joinPath(path, name)

		if name == "reference" && dataType == jsonparser.String && path != "" {
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", child, err)
			}
			e.References = append(e.References, Reference{Path: path, Value: LocalReference(s)})
			return nil
		}
		return walkValue(value, dataType, child, e)
	})
}

// LocalReference reduces an absolute reference such as
// "https://host/fhir/Patient/42" to its "Patient/42" tail. Relative references
// and absolute ones without a Type/id tail are returned unchanged.
func LocalReference(ref string) string {
	if !strings.Contains(ref, "://") {
		return ref
	}
	segs := strings.Split(strings.TrimSuffix(ref, "/"), "/")
	if len(segs) < 5 {
		return ref
	}
	typ, id := segs[len(segs)-2], segs[len(segs)-1]
	if id == "" || typ == "" || typ[0] < 'A' || typ[0] > 'Z' {
		return ref
	}
	return typ + "/" + id
}

func walkValue(value []byte, dataType jsonparser.ValueType, path string, e *Entries) error {
	switch dataType {
	case jsonparser.Object:
		return walkObject(value, path, e)
	case jsonparser.Array:
		var walkErr error
		_, err := jsonparser.ArrayEach(value, func(elem []byte, elemType jsonparser.ValueType, _ int, _ error) {
			if walkErr != nil {
				return
			}
			walkErr = walkValue(elem, elemType, path, e)
		})
		if walkErr != nil {
			return walkErr
		}
		return err
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if s = Normalize(s); s != "" {
			e.Strings = append(e.Strings, String{Path: path, Value: s})
		}
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func dedupe[T any](items []T, key func(T) string) []T {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		k := key(it)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	slices.SortStableFunc(out, func(a, b T) int { return strings.Compare(key(a), key(b)) })
	return out
}
