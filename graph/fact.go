// Package graph defines fact graphs, the typed triples derived from one
// parsed document, and their staging serialization for the bulk loader.
package graph

import (
	"fmt"
	"time"
)

// TypeProperty is the reserved property declaring class membership.
const TypeProperty = "rdf:type"

// LiteralType names the scalar type of a literal object.
type LiteralType string

const (
	LiteralString    LiteralType = "string"
	LiteralInteger   LiteralType = "integer"
	LiteralDecimal   LiteralType = "decimal"
	LiteralTimestamp LiteralType = "timestamp"
)

// Object is the object position of a fact: either an entity reference or
// a typed literal. Exactly one of EntityID / Literal is meaningful.
type Object struct {
	EntityID    string      `json:"entity_id,omitempty"`
	Literal     string      `json:"literal,omitempty"`
	LiteralType LiteralType `json:"literal_type,omitempty"`
}

// IsEntity reports whether the object is an entity reference.
func (o Object) IsEntity() bool { return o.EntityID != "" }

// Entity returns an entity-reference object.
func Entity(id string) Object { return Object{EntityID: id} }

// String returns a string-literal object.
func String(v string) Object {
	return Object{Literal: v, LiteralType: LiteralString}
}

// Integer returns an integer-literal object.
func Integer(v int64) Object {
	return Object{Literal: fmt.Sprintf("%d", v), LiteralType: LiteralInteger}
}

// Decimal returns a decimal-literal object.
func Decimal(v float64) Object {
	return Object{Literal: fmt.Sprintf("%g", v), LiteralType: LiteralDecimal}
}

// Timestamp returns a timestamp-literal object in RFC3339.
func Timestamp(t time.Time) Object {
	return Object{Literal: t.UTC().Format(time.RFC3339), LiteralType: LiteralTimestamp}
}

// Fact is one (subject, property, object) triple.
type Fact struct {
	Subject  string `json:"subject"`
	Property string `json:"property"`
	Object   Object `json:"object"`
}

// FactGraph is the set of facts derived from exactly one source document.
type FactGraph struct {
	DocumentID string `json:"document_id"`
	Facts      []Fact `json:"facts"`
}

// Add appends a fact to the graph.
func (g *FactGraph) Add(subject, property string, object Object) {
	g.Facts = append(g.Facts, Fact{Subject: subject, Property: property, Object: object})
}

// Validate checks structural well-formedness: a document ID, and no fact
// with an empty subject or property. Ontology conformance is the
// validator's job, not this method's.
func (g *FactGraph) Validate() error {
	if g == nil {
		return fmt.Errorf("fact graph is nil")
	}
	if g.DocumentID == "" {
		return fmt.Errorf("fact graph has no document ID")
	}
	for i, f := range g.Facts {
		if f.Subject == "" {
			return fmt.Errorf("fact %d has no subject", i)
		}
		if f.Property == "" {
			return fmt.Errorf("fact %d has no property", i)
		}
	}
	return nil
}

// TypesOf returns the declared classes of a subject, in fact order.
func (g *FactGraph) TypesOf(subject string) []string {
	var types []string
	for _, f := range g.Facts {
		if f.Subject == subject && f.Property == TypeProperty && f.Object.IsEntity() {
			types = append(types, f.Object.EntityID)
		}
	}
	return types
}
