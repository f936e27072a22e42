package ontology

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestParseModel(t *testing.T) {
	data := []byte(`
version: "1"
classes:
  - id: Document
properties:
  - id: hasId
    kind: literal
    domain: Document
    range: string
restrictions:
  - class: Document
    property: hasId
    kind: exactly
    cardinality: 1
`)
	m, err := ParseModel(data)
	if err != nil {
		t.Fatalf("ParseModel() error = %v", err)
	}
	if m.Class("Document") == nil {
		t.Error("Document class missing")
	}
	if len(m.RestrictionsFor("Document")) != 1 {
		t.Errorf("restrictions = %d, want 1", len(m.RestrictionsFor("Document")))
	}

	if _, err := ParseModel([]byte("classes: {not a list}")); err == nil {
		t.Error("ParseModel() accepted malformed YAML")
	}
	if _, err := ParseModel([]byte("classes:\n  - id: A\n    parents: [Missing]\n")); err == nil {
		t.Error("ParseModel() accepted inconsistent model")
	}
}

func TestDirLoaderMergesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "10-base.yaml", `
version: "1"
classes:
  - id: Document
    label: base
properties:
  - id: hasId
    kind: literal
    domain: Document
    range: string
`)
	writeSchema(t, dir, "20-overlay.yaml", `
version: "2"
classes:
  - id: Document
    label: overlay
`)
	writeSchema(t, dir, "nested/30-extra.yaml", `
classes:
  - id: Keyword
`)

	loader := NewDirLoader(dir, "", nil)
	m, err := loader.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if m.Version != "2" {
		t.Errorf("version = %s, want 2", m.Version)
	}
	if got := m.Class("Document").Label; got != "overlay" {
		t.Errorf("Document label = %s, want overlay", got)
	}
	if m.Class("Keyword") == nil {
		t.Error("nested schema file was not loaded")
	}
}

func TestDirLoaderEmptyDir(t *testing.T) {
	loader := NewDirLoader(t.TempDir(), "", nil)
	if _, err := loader.Fetch(context.Background()); err == nil {
		t.Error("Fetch() succeeded on empty directory")
	}
}
