// Package search compiles resource queries into parametrized SQL statements
// over the resources table and its derived index tables.
package search

import (
	"fmt"
	"strings"

	"fhirsync/internal/fhir"
	"fhirsync/internal/index"
)

// Op is a string comparison against the normalized string index.
type Op string

const (
	Exact      Op = "exact"
	Contains   Op = "contains"
	StartsWith Op = "starts-with"
)

// ParseOp maps a user-facing operator name to an Op.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case Exact, Contains, StartsWith:
		return op, nil
	case "":
		return Exact, nil
	default:
		return "", fmt.Errorf("unknown string operator: %s", s)
	}
}

type filter struct {
	table string // string_index or reference_index
	path  string
	op    Op
	value string
}

// Include names a reference path of the base type whose targets are fetched
// alongside the results.
type Include struct {
	Path       string
	TargetType string
}

// RevInclude names resources of Type that reference a result through Path.
type RevInclude struct {
	Type string
	Path string
}

// Builder accumulates the clauses of one search. The zero value is not
// usable; start with New.
type Builder struct {
	resourceType string
	filters      []filter
	sorted       bool
	desc         bool
	limit        int
	offset       int
	includes     []Include
	revIncludes  []RevInclude
}

// New starts a search over resources of the given type.
func New(resourceType string) *Builder {
	return &Builder{resourceType: resourceType}
}

// WhereString matches resources holding a string element at path. The value
// is normalized the same way the index is.
func (b *Builder) WhereString(path string, op Op, value string) *Builder {
	b.filters = append(b.filters, filter{table: "string_index", path: path, op: op, value: index.Normalize(value)})
	return b
}

// WhereReference matches resources whose Reference at path equals value.
func (b *Builder) WhereReference(path, value string) *Builder {
	b.filters = append(b.filters, filter{table: "reference_index", path: path, op: Exact, value: value})
	return b
}

// SortByLastUpdated orders results by local modification time.
func (b *Builder) SortByLastUpdated(desc bool) *Builder {
	b.sorted = true
	b.desc = desc
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Include adds a forward include.
func (b *Builder) Include(path, targetType string) *Builder {
	b.includes = append(b.includes, Include{Path: path, TargetType: targetType})
	return b
}

// RevInclude adds a reverse include.
func (b *Builder) RevInclude(resourceType, path string) *Builder {
	b.revIncludes = append(b.revIncludes, RevInclude{Type: resourceType, Path: path})
	return b
}

// Includes returns the forward includes requested so far.
func (b *Builder) Includes() []Include { return b.includes }

// RevIncludes returns the reverse includes requested so far.
func (b *Builder) RevIncludes() []RevInclude { return b.revIncludes }

// Compile returns the statement selecting (resource_uuid, serialized_resource)
// for every matching resource.
func (b *Builder) Compile() (fhir.SearchQuery, error) {
	var sb strings.Builder
	sb.WriteString("SELECT a.resource_uuid, a.serialized_resource\nFROM resources a\n")
	args, err := b.writeWhere(&sb)
	if err != nil {
		return fhir.SearchQuery{}, err
	}

	if b.sorted {
		dir := "ASC"
		if b.desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "\nORDER BY a.last_updated_local %s", dir)
	}

	switch {
	case b.limit < 0 || b.offset < 0:
		return fhir.SearchQuery{}, fmt.Errorf("limit and offset must not be negative")
	case b.limit > 0 && b.offset > 0:
		sb.WriteString("\nLIMIT ? OFFSET ?")
		args = append(args, b.limit, b.offset)
	case b.limit > 0:
		sb.WriteString("\nLIMIT ?")
		args = append(args, b.limit)
	case b.offset > 0:
		sb.WriteString("\nLIMIT -1 OFFSET ?")
		args = append(args, b.offset)
	}

	return fhir.SearchQuery{Query: sb.String(), Args: args}, nil
}

// CompileCount returns a statement selecting the number of matching
// resources. Sorting and paging are ignored.
func (b *Builder) CompileCount() (fhir.SearchQuery, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)\nFROM resources a\n")
	args, err := b.writeWhere(&sb)
	if err != nil {
		return fhir.SearchQuery{}, err
	}
	return fhir.SearchQuery{Query: sb.String(), Args: args}, nil
}

// CompileForwardIncludes returns the statement fetching the targets of the
// requested includes for the given base resources. ok is false when there is
// nothing to fetch.
func (b *Builder) CompileForwardIncludes(baseUUIDs []string) (q fhir.SearchQuery, ok bool) {
	if len(b.includes) == 0 || len(baseUUIDs) == 0 {
		return fhir.SearchQuery{}, false
	}

	var sb strings.Builder
	sb.WriteString("SELECT ri.resource_type || ':' || ri.index_path, ri.resource_uuid, r.serialized_resource\n")
	sb.WriteString("FROM reference_index ri\n")
	sb.WriteString("JOIN resources r ON r.resource_type || '/' || r.resource_id = ri.index_value\n")
	args := writeIn(&sb, "ri.resource_uuid", baseUUIDs)

	clauses := make([]string, len(b.includes))
	for i, inc := range b.includes {
		clauses[i] = "(ri.index_path = ? AND r.resource_type = ?)"
		args = append(args, inc.Path, inc.TargetType)
	}
	fmt.Fprintf(&sb, "\nAND (%s)", strings.Join(clauses, " OR "))
	sb.WriteString("\nORDER BY ri.index_path, ri.resource_uuid, r.resource_id")

	return fhir.SearchQuery{Query: sb.String(), Args: args}, true
}

// CompileReverseIncludes returns the statement fetching resources that
// reference the given base resources through the requested paths. ok is
// false when there is nothing to fetch.
func (b *Builder) CompileReverseIncludes(baseUUIDs []string) (q fhir.SearchQuery, ok bool) {
	if len(b.revIncludes) == 0 || len(baseUUIDs) == 0 {
		return fhir.SearchQuery{}, false
	}

	var sb strings.Builder
	sb.WriteString("SELECT ri.resource_type || ':' || ri.index_path, b.resource_uuid, r.serialized_resource\n")
	sb.WriteString("FROM reference_index ri\n")
	sb.WriteString("JOIN resources r ON r.resource_uuid = ri.resource_uuid\n")
	sb.WriteString("JOIN resources b ON b.resource_type || '/' || b.resource_id = ri.index_value\n")
	args := writeIn(&sb, "b.resource_uuid", baseUUIDs)

	clauses := make([]string, len(b.revIncludes))
	for i, inc := range b.revIncludes {
		clauses[i] = "(ri.resource_type = ? AND ri.index_path = ?)"
		args = append(args, inc.Type, inc.Path)
	}
	fmt.Fprintf(&sb, "\nAND (%s)", strings.Join(clauses, " OR "))
	sb.WriteString("\nORDER BY ri.resource_type, ri.index_path, b.resource_uuid, r.resource_id")

	return fhir.SearchQuery{Query: sb.String(), Args: args}, true
}

func (b *Builder) writeWhere(sb *strings.Builder) ([]any, error) {
	if b.resourceType == "" {
		return nil, fmt.Errorf("search requires a resource type")
	}
	sb.WriteString("WHERE a.resource_type = ?")
	args := []any{b.resourceType}

	for _, f := range b.filters {
		if f.path == "" {
			return nil, fmt.Errorf("search filter requires a path")
		}
		cmp, value, err := comparison(f.op, f.value)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(sb, "\nAND a.resource_uuid IN (SELECT resource_uuid FROM %s WHERE resource_type = ? AND index_path = ? AND index_value %s)", f.table, cmp)
		args = append(args, b.resourceType, f.path, value)
	}
	return args, nil
}

func comparison(op Op, value string) (string, string, error) {
	switch op {
	case Exact:
		return "= ?", value, nil
	case Contains:
		return `LIKE ? ESCAPE '\'`, "%" + escapeLike(value) + "%", nil
	case StartsWith:
		return `LIKE ? ESCAPE '\'`, escapeLike(value) + "%", nil
	default:
		return "", "", fmt.Errorf("unknown string operator: %s", op)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func writeIn(sb *strings.Builder, column string, values []string) []any {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	fmt.Fprintf(sb, "WHERE %s IN (%s)", column, marks)
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
