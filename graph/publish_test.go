package graph

import (
	"testing"
	"time"
)

func TestMessageTriples(t *testing.T) {
	g := &FactGraph{DocumentID: "doc-1"}
	g.Add("doc-1", TypeProperty, Entity(ClassDocument))
	g.Add("doc-1", "hasId", String("doc-1"))
	g.Add("doc-1", "hasTextLength", Integer(42))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	triples := MessageTriples(g, at)
	if len(triples) != 3 {
		t.Fatalf("triples = %d, want 3", len(triples))
	}

	first := triples[0]
	if first.Subject != "doc-1" || first.Predicate != TypeProperty {
		t.Errorf("triple = %+v", first)
	}
	if first.Object != ClassDocument {
		t.Errorf("entity object = %v, want %s", first.Object, ClassDocument)
	}
	if first.Source != "semgraph.pipeline" || !first.Timestamp.Equal(at) {
		t.Errorf("source/timestamp = %s %v", first.Source, first.Timestamp)
	}

	// Literals keep their lexical form.
	if triples[2].Object != "42" {
		t.Errorf("literal object = %v", triples[2].Object)
	}
}
