package resource

import (
	"testing"
	"time"
)

func TestParseEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "patient with nested fields",
			input: `{"birthDate":"1970-01-01","id":"p1","name":[{"family":"Smith","given":["Ann"]}],"resourceType":"Patient"}`,
		},
		{
			name:  "numbers keep their precision",
			input: `{"id":"o1","resourceType":"Observation","valueQuantity":{"unit":"mg","value":12.50}}`,
		},
		{
			name:  "no id yet",
			input: `{"resourceType":"Encounter","status":"planned"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			got, err := Encode(r)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.input {
				t.Errorf("Encode() = %s, want %s", got, tt.input)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `not json`},
		{name: "array", input: `[1,2]`},
		{name: "missing resourceType", input: `{"id":"x"}`},
		{name: "numeric id", input: `{"resourceType":"Patient","id":7}`},
		{name: "trailing data", input: `{"resourceType":"Patient"} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.input)); err == nil {
				t.Errorf("Parse(%s) expected error, got nil", tt.input)
			}
		})
	}
}

func TestResource_Meta(t *testing.T) {
	r := New("Patient", "p1", nil)

	if r.Meta().Complete() {
		t.Fatal("Meta().Complete() = true for a fresh resource, want false")
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetMeta("3", ts)

	m := r.Meta()
	if m.VersionID != "3" {
		t.Errorf("VersionID = %q, want %q", m.VersionID, "3")
	}
	if !m.LastUpdated.Equal(ts) {
		t.Errorf("LastUpdated = %v, want %v", m.LastUpdated, ts)
	}
	if !m.Complete() {
		t.Error("Meta().Complete() = false after SetMeta, want true")
	}
}

func TestResource_SetMetaKeepsOtherElements(t *testing.T) {
	r, err := Parse([]byte(`{"resourceType":"Patient","id":"p1","meta":{"tag":[{"code":"x"}]}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	r.SetMeta("1", time.Unix(0, 0))

	meta := r.Fields["meta"].(map[string]any)
	if _, ok := meta["tag"]; !ok {
		t.Error("SetMeta() dropped meta.tag")
	}
}

func TestResource_ReplaceReference(t *testing.T) {
	r, err := Parse([]byte(`{
		"resourceType":"Observation","id":"o1",
		"subject":{"reference":"Patient/local-1"},
		"performer":[{"reference":"Practitioner/d1"},{"reference":"http://example.org/fhir/Patient/local-1"}],
		"note":[{"text":"Patient/local-1"}]
	}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	n := r.ReplaceReference("Patient/local-1", "Patient/42")
	if n != 2 {
		t.Fatalf("ReplaceReference() = %d, want 2", n)
	}

	subject := r.Fields["subject"].(map[string]any)["reference"]
	if subject != "Patient/42" {
		t.Errorf("subject.reference = %v, want Patient/42", subject)
	}
	performers := r.Fields["performer"].([]any)
	if got := performers[0].(map[string]any)["reference"]; got != "Practitioner/d1" {
		t.Errorf("performer[0].reference = %v, want unchanged", got)
	}
	if got := performers[1].(map[string]any)["reference"]; got != "http://example.org/fhir/Patient/42" {
		t.Errorf("performer[1].reference = %v, want absolute url rewritten", got)
	}
	note := r.Fields["note"].([]any)[0].(map[string]any)["text"]
	if note != "Patient/local-1" {
		t.Errorf("note.text = %v, want untouched (not a reference element)", note)
	}
}

func TestResource_CloneIsDeep(t *testing.T) {
	r, _ := Parse([]byte(`{"resourceType":"Observation","id":"o1","subject":{"reference":"Patient/1"}}`))
	c := r.Clone()

	c.ReplaceReference("Patient/1", "Patient/2")

	if !Equal(r, r.Clone()) {
		t.Error("Equal(r, r.Clone()) = false")
	}
	if Equal(r, c) {
		t.Error("modifying the clone changed the original")
	}
}

func TestEqual_NativeAndParsedValues(t *testing.T) {
	native := New("Observation", "o1", map[string]any{
		"valueInteger": 5,
		"valueBoolean": true,
		"codes":        []string{"a", "b"},
		"component":    []map[string]any{{"valueDecimal": 1.5}},
	})
	data, err := Encode(native.Clone())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !Equal(native, parsed) {
		t.Errorf("Equal(native, parsed) = false for %s", data)
	}

	parsed.Fields["valueInteger"] = 6
	if Equal(native, parsed) {
		t.Error("Equal() = true after changing valueInteger")
	}
	if Equal(native, New("Observation", "o2", nil)) {
		t.Error("Equal() = true for different ids")
	}
}
