package graph

import (
	"strings"
	"testing"
)

func TestStagingKey(t *testing.T) {
	if got := StagingKey("doc-1"); got != "graph-staging/doc-1/data.nt" {
		t.Errorf("StagingKey = %s", got)
	}
}

func TestSerializeNTriples(t *testing.T) {
	g := &FactGraph{DocumentID: "doc-1"}
	g.Add("b", TypeProperty, Entity(ClassDocument))
	g.Add("a", "hasId", String("doc-1"))
	g.Add("b", "hasTextLength", Integer(42))

	out := SerializeNTriples(g)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}

	// Subjects in lexical order, each subject's facts in input order.
	want := []string{
		`<https://semgraph.c360.dev/entity/a> <https://semgraph.c360.dev/ontology#hasId> "doc-1" .`,
		`<https://semgraph.c360.dev/entity/b> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <https://semgraph.c360.dev/entity/Document> .`,
		`<https://semgraph.c360.dev/entity/b> <https://semgraph.c360.dev/ontology#hasTextLength> "42"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d:\n got %s\nwant %s", i, line, want[i])
		}
	}
}

func TestSerializeNTriplesIsDeterministic(t *testing.T) {
	doc := sampleDocument()
	builder := NewBuilderWithClock(fixedClock())

	g1, err := builder.Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	g2, err := builder.Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if SerializeNTriples(g1) != SerializeNTriples(g2) {
		t.Error("serializations of identical graphs differ")
	}
}

func TestLiteralEscaping(t *testing.T) {
	tests := []struct {
		name string
		in   Object
		want string
	}{
		{"quotes", String(`say "hi"`), `"say \"hi\""`},
		{"backslash", String(`a\b`), `"a\\b"`},
		{"newline", String("a\nb"), `"a\nb"`},
		{"tab", String("a\tb"), `"a\tb"`},
		{"timestamp", Timestamp(fixedClock()()), `"2025-06-01T12:00:00Z"^^<http://www.w3.org/2001/XMLSchema#dateTime>`},
		{"decimal", Decimal(3.5), `"3.5"^^<http://www.w3.org/2001/XMLSchema#decimal>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLiteral(tt.in); got != tt.want {
				t.Errorf("formatLiteral = %s, want %s", got, tt.want)
			}
		})
	}
}
