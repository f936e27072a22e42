package graph

import (
	"time"

	"github.com/c360studio/semstreams/message"
)

// graphSource tags triples published from this module.
const graphSource = "semgraph.pipeline"

// MessageTriples converts a fact graph to semstreams triples for graph
// ingest messages. Entity references stay strings; literals are carried
// as their lexical form.
func MessageTriples(g *FactGraph, at time.Time) []message.Triple {
	triples := make([]message.Triple, 0, len(g.Facts))
	for _, f := range g.Facts {
		var object any
		if f.Object.IsEntity() {
			object = f.Object.EntityID
		} else {
			object = f.Object.Literal
		}
		triples = append(triples, message.Triple{
			Subject:    f.Subject,
			Predicate:  f.Property,
			Object:     object,
			Source:     graphSource,
			Timestamp:  at,
			Confidence: 1.0,
		})
	}
	return triples
}
