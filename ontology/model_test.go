package ontology

import (
	"testing"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m := &Model{
		Version: "1",
		Classes: []Class{
			{ID: "Resource"},
			{ID: "Document", Parents: []string{"Resource"}},
			{ID: "Report", Parents: []string{"Document"}},
			{ID: "TextChunk", Parents: []string{"Resource"}},
		},
		Properties: []Property{
			{ID: "hasChunk", Kind: KindRelational, Domain: "Document", Range: "TextChunk"},
			{ID: "hasId", Kind: KindLiteral, Domain: "Resource", Range: "string"},
		},
		Restrictions: []Restriction{
			{Class: "Document", Property: "hasChunk", Kind: RestrictionAtLeast, Cardinality: 1},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return m
}

func TestClosure(t *testing.T) {
	m := testModel(t)

	closure := m.Closure([]string{"Report"})
	for _, want := range []string{"Report", "Document", "Resource"} {
		if !closure[want] {
			t.Errorf("closure missing %s", want)
		}
	}
	if closure["TextChunk"] {
		t.Error("closure includes unrelated class TextChunk")
	}

	// Undefined classes stay in their own closure so validation can
	// still report them by name.
	closure = m.Closure([]string{"Mystery"})
	if !closure["Mystery"] {
		t.Error("closure dropped undefined class")
	}
	if len(closure) != 1 {
		t.Errorf("closure of undefined class has %d entries, want 1", len(closure))
	}
}

func TestClosureToleratesCycles(t *testing.T) {
	m := &Model{
		Classes: []Class{
			{ID: "A", Parents: []string{"B"}},
			{ID: "B", Parents: []string{"A"}},
		},
		Properties: []Property{
			{ID: "p", Kind: KindLiteral, Domain: "A", Range: "string"},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	closure := m.Closure([]string{"A"})
	if !closure["A"] || !closure["B"] {
		t.Errorf("cycle closure = %v, want A and B", closure)
	}
}

func TestIsSubclassOf(t *testing.T) {
	m := testModel(t)

	if !m.IsSubclassOf("Report", "Resource") {
		t.Error("Report should be a transitive subclass of Resource")
	}
	if !m.IsSubclassOf("Document", "Document") {
		t.Error("a class is a subclass of itself")
	}
	if m.IsSubclassOf("Resource", "Document") {
		t.Error("subclass relation is not symmetric")
	}
}

func TestModelValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Model)
	}{
		{
			name: "undeclared parent",
			modify: func(m *Model) {
				m.Classes = append(m.Classes, Class{ID: "Orphan", Parents: []string{"Nowhere"}})
			},
		},
		{
			name: "undeclared property domain",
			modify: func(m *Model) {
				m.Properties = append(m.Properties, Property{ID: "bad", Kind: KindLiteral, Domain: "Nowhere"})
			},
		},
		{
			name: "undeclared relational range",
			modify: func(m *Model) {
				m.Properties = append(m.Properties, Property{ID: "bad", Kind: KindRelational, Domain: "Document", Range: "Nowhere"})
			},
		},
		{
			name: "unknown property kind",
			modify: func(m *Model) {
				m.Properties = append(m.Properties, Property{ID: "bad", Kind: "fuzzy"})
			},
		},
		{
			name: "restriction on undeclared class",
			modify: func(m *Model) {
				m.Restrictions = append(m.Restrictions, Restriction{Class: "Nowhere", Property: "hasId", Kind: RestrictionExactly, Cardinality: 1})
			},
		},
		{
			name: "restriction with undeclared property",
			modify: func(m *Model) {
				m.Restrictions = append(m.Restrictions, Restriction{Class: "Document", Property: "nope", Kind: RestrictionExactly, Cardinality: 1})
			},
		},
		{
			name: "restriction property domain does not cover class",
			modify: func(m *Model) {
				// hasChunk is declared on Document; TextChunk is not a
				// subclass of Document.
				m.Restrictions = append(m.Restrictions, Restriction{Class: "TextChunk", Property: "hasChunk", Kind: RestrictionAtMost, Cardinality: 1})
			},
		},
		{
			name: "negative cardinality",
			modify: func(m *Model) {
				m.Restrictions = append(m.Restrictions, Restriction{Class: "Document", Property: "hasChunk", Kind: RestrictionAtLeast, Cardinality: -1})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel(t)
			tt.modify(m)
			if err := m.Validate(); err == nil {
				t.Error("Validate() accepted invalid model")
			}
		})
	}
}

func TestMergeLaterDocumentWins(t *testing.T) {
	base := &Model{
		Version: "1",
		Classes: []Class{{ID: "Document", Label: "old"}},
		Properties: []Property{
			{ID: "hasId", Kind: KindLiteral, Domain: "Document", Range: "string"},
		},
		Restrictions: []Restriction{
			{Class: "Document", Property: "hasId", Kind: RestrictionExactly, Cardinality: 1},
		},
	}
	overlay := &Model{
		Version: "2",
		Classes: []Class{{ID: "Document", Label: "new"}, {ID: "Keyword"}},
		Restrictions: []Restriction{
			{Class: "Document", Property: "hasId", Kind: RestrictionAtMost, Cardinality: 1},
		},
	}

	base.Merge(overlay)
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if base.Version != "2" {
		t.Errorf("version = %s, want 2", base.Version)
	}
	if got := base.Class("Document").Label; got != "new" {
		t.Errorf("Document label = %s, want new", got)
	}
	if base.Class("Keyword") == nil {
		t.Error("merged class Keyword missing")
	}
	if len(base.Restrictions) != 2 {
		t.Errorf("restrictions = %d, want 2 (appended)", len(base.Restrictions))
	}
}

func TestIsEmpty(t *testing.T) {
	var nilModel *Model
	if !nilModel.IsEmpty() {
		t.Error("nil model should be empty")
	}
	if !(&Model{}).IsEmpty() {
		t.Error("zero model should be empty")
	}
	if testModel(t).IsEmpty() {
		t.Error("populated model should not be empty")
	}
}
