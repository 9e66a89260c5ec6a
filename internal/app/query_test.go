package app

import (
	"slices"
	"strings"
	"testing"
)

func TestSearchParams_Builder(t *testing.T) {
	p := SearchParams{
		Type:       "Patient",
		Where:      []string{"name.family=Müller", "name.given:starts-with=Jo"},
		References: []string{"generalPractitioner=Practitioner/dr1"},
		Include:    []string{"generalPractitioner:Practitioner"},
		RevInclude: []string{"Observation:subject"},
		Desc:       true,
		Limit:      10,
	}

	b, err := p.Builder()
	if err != nil {
		t.Fatalf("Builder() error = %v", err)
	}
	q, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	for _, want := range []string{"string_index", "reference_index", "LIKE", "DESC", "LIMIT ?"} {
		if !strings.Contains(q.Query, want) {
			t.Errorf("query missing %q:\n%s", want, q.Query)
		}
	}
	for _, want := range []any{"muller", "jo%", "Practitioner/dr1", 10} {
		if !slices.Contains(q.Args, want) {
			t.Errorf("args %v missing %v", q.Args, want)
		}
	}
	if n := len(b.Includes()); n != 1 {
		t.Errorf("len(Includes()) = %d, want 1", n)
	}
	if n := len(b.RevIncludes()); n != 1 {
		t.Errorf("len(RevIncludes()) = %d, want 1", n)
	}
}

func TestSearchParams_BuilderErrors(t *testing.T) {
	tests := []struct {
		name   string
		params SearchParams
	}{
		{name: "missing type", params: SearchParams{}},
		{name: "filter without value", params: SearchParams{Type: "Patient", Where: []string{"name.family"}}},
		{name: "filter without path", params: SearchParams{Type: "Patient", Where: []string{"=x"}}},
		{name: "unknown operator", params: SearchParams{Type: "Patient", Where: []string{"name.family:regex=x"}}},
		{name: "reference without target", params: SearchParams{Type: "Observation", References: []string{"subject="}}},
		{name: "include without type", params: SearchParams{Type: "Observation", Include: []string{"subject"}}},
		{name: "revinclude without path", params: SearchParams{Type: "Patient", RevInclude: []string{"Observation:"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.params.Builder(); err == nil {
				t.Error("Builder() should return error")
			}
		})
	}
}
