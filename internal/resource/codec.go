package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parse decodes a JSON payload into a Resource. Numbers are kept as
// json.Number so that re-encoding a parsed payload does not alter them.
func Parse(data []byte) (*Resource, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decoding resource: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding resource: trailing data after object")
	}

	return FromFields(fields)
}

// FromFields builds a Resource from an already-decoded JSON object.
func FromFields(fields map[string]any) (*Resource, error) {
	if fields == nil {
		return nil, fmt.Errorf("resource is not a JSON object")
	}
	resourceType, ok := fields["resourceType"].(string)
	if !ok || resourceType == "" {
		return nil, fmt.Errorf("resource has no resourceType")
	}

	r := &Resource{Type: resourceType, Fields: fields}
	if id, ok := fields["id"]; ok {
		s, ok := id.(string)
		if !ok {
			return nil, fmt.Errorf("resource id must be a string, got %T", id)
		}
		r.ID = s
	}
	return r, nil
}

// Encode serializes r as compact JSON. Object keys are emitted in sorted order,
// so equal resources always encode to identical bytes.
func Encode(r *Resource) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("encoding resource: nil resource")
	}
	r.Fields["resourceType"] = r.Type
	if r.ID != "" {
		r.Fields["id"] = r.ID
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Fields); err != nil {
		return nil, fmt.Errorf("encoding resource %s: %w", r, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
