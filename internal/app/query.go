package app

import (
	"fmt"
	"strings"

	"fhirsync/internal/search"
)

// SearchParams are the command-line arguments of a search.
//
// Where entries are "path=value" or "path:op=value" with op one of exact,
// contains and starts-with. Reference entries are "path=Type/id". Include
// entries are "path:TargetType" and RevInclude entries are "Type:path".
type SearchParams struct {
	Type       string
	Where      []string
	References []string
	Include    []string
	RevInclude []string
	Sort       bool
	Desc       bool
	Limit      int
	Offset     int
}

// Builder translates the parameters into a search.Builder.
func (p SearchParams) Builder() (*search.Builder, error) {
	if p.Type == "" {
		return nil, fmt.Errorf("resource type is required")
	}
	b := search.New(p.Type)

	for _, w := range p.Where {
		lhs, value, ok := strings.Cut(w, "=")
		if !ok || lhs == "" {
			return nil, fmt.Errorf("invalid filter %q: want path=value or path:op=value", w)
		}
		path, opName, _ := strings.Cut(lhs, ":")
		op, err := search.ParseOp(opName)
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", w, err)
		}
		b.WhereString(path, op, value)
	}

	for _, r := range p.References {
		path, ref, ok := strings.Cut(r, "=")
		if !ok || path == "" || ref == "" {
			return nil, fmt.Errorf("invalid reference filter %q: want path=Type/id", r)
		}
		b.WhereReference(path, ref)
	}

	for _, inc := range p.Include {
		path, target, ok := strings.Cut(inc, ":")
		if !ok || path == "" || target == "" {
			return nil, fmt.Errorf("invalid include %q: want path:TargetType", inc)
		}
		b.Include(path, target)
	}

	for _, rev := range p.RevInclude {
		typ, path, ok := strings.Cut(rev, ":")
		if !ok || typ == "" || path == "" {
			return nil, fmt.Errorf("invalid revinclude %q: want Type:path", rev)
		}
		b.RevInclude(typ, path)
	}

	if p.Sort || p.Desc {
		b.SortByLastUpdated(p.Desc)
	}
	return b.Limit(p.Limit).Offset(p.Offset), nil
}
