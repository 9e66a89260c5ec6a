package resource

import (
	"bytes"
	"fmt"
	"maps"
	"time"
)

// Resource is a parsed clinical resource. Fields holds the complete JSON
// object, including "resourceType", "id" and "meta"; Type and ID mirror the
// first two so callers do not have to dig through the map.
type Resource struct {
	Type   string
	ID     string
	Fields map[string]any
}

// Meta is the server-maintained metadata of a resource.
type Meta struct {
	VersionID   string
	LastUpdated time.Time
}

// Complete reports whether both the version and the last-updated instant are set.
func (m Meta) Complete() bool {
	return m.VersionID != "" && !m.LastUpdated.IsZero()
}

// New creates a resource of the given type. fields may be nil.
func New(resourceType, id string, fields map[string]any) *Resource {
	f := make(map[string]any, len(fields)+2)
	maps.Copy(f, fields)
	r := &Resource{Type: resourceType, Fields: f}
	f["resourceType"] = resourceType
	r.SetID(id)
	return r
}

// ReferenceTo returns the relative reference string "Type/id".
func ReferenceTo(resourceType, id string) string {
	return resourceType + "/" + id
}

// Reference returns the relative reference string pointing at r.
func (r *Resource) Reference() string {
	return ReferenceTo(r.Type, r.ID)
}

// SetID changes the logical id. An empty id removes it from the payload.
func (r *Resource) SetID(id string) {
	r.ID = id
	if id == "" {
		delete(r.Fields, "id")
		return
	}
	r.Fields["id"] = id
}

// Meta returns the version and last-updated metadata, if present.
// A lastUpdated value that does not parse as an instant is treated as absent.
func (r *Resource) Meta() Meta {
	var m Meta
	raw, ok := r.Fields["meta"].(map[string]any)
	if !ok {
		return m
	}
	if v, ok := raw["versionId"].(string); ok {
		m.VersionID = v
	}
	if s, ok := raw["lastUpdated"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			m.LastUpdated = t
		}
	}
	return m
}

// SetMeta stamps versionId and lastUpdated into the payload, keeping any
// other meta elements (profiles, tags) that are already there.
func (r *Resource) SetMeta(versionID string, lastUpdated time.Time) {
	raw, ok := r.Fields["meta"].(map[string]any)
	if !ok {
		raw = make(map[string]any, 2)
		r.Fields["meta"] = raw
	}
	raw["versionId"] = versionID
	raw["lastUpdated"] = lastUpdated.UTC().Format(time.RFC3339Nano)
}

// Clone returns a deep copy of r.
func (r *Resource) Clone() *Resource {
	return &Resource{
		Type:   r.Type,
		ID:     r.ID,
		Fields: cloneValue(r.Fields).(map[string]any),
	}
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// Equal reports whether a and b are structurally identical. Fields are
// compared by their canonical encoding, so an int and a parsed json.Number of
// the same value, or a []string and a []any of the same strings, are equal.
func Equal(a, b *Resource) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.ID != b.ID {
		return false
	}
	ea, err := Encode(a.Clone())
	if err != nil {
		return false
	}
	eb, err := Encode(b.Clone())
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
