package graph

import (
	"fmt"
	"sort"
	"strings"
)

// BaseIRI anchors entity and property IRIs in the staged output.
const BaseIRI = "https://semgraph.c360.dev"

// StagingKey returns the deterministic object-store path for one
// document's staged triples.
// Format: graph-staging/<documentID>/data.nt
func StagingKey(documentID string) string {
	return fmt.Sprintf("graph-staging/%s/data.nt", documentID)
}

// SerializeNTriples renders the fact graph as N-Triples, grouped by
// subject in lexical order with each subject's facts in input order, so
// repeated serialization of the same graph is byte-identical.
func SerializeNTriples(g *FactGraph) string {
	bySubject := make(map[string][]Fact)
	var subjects []string
	for _, f := range g.Facts {
		if _, seen := bySubject[f.Subject]; !seen {
			subjects = append(subjects, f.Subject)
		}
		bySubject[f.Subject] = append(bySubject[f.Subject], f)
	}
	sort.Strings(subjects)

	var b strings.Builder
	for _, subject := range subjects {
		for _, f := range bySubject[subject] {
			b.WriteString(formatTriple(f))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatTriple(f Fact) string {
	subject := entityIRI(f.Subject)
	predicate := propertyIRI(f.Property)

	var object string
	switch {
	case f.Object.IsEntity():
		object = entityIRI(f.Object.EntityID)
	default:
		object = formatLiteral(f.Object)
	}

	return fmt.Sprintf("%s %s %s .", subject, predicate, object)
}

func entityIRI(id string) string {
	return fmt.Sprintf("<%s/entity/%s>", BaseIRI, id)
}

func propertyIRI(property string) string {
	if property == TypeProperty {
		return "<http://www.w3.org/1999/02/22-rdf-syntax-ns#type>"
	}
	return fmt.Sprintf("<%s/ontology#%s>", BaseIRI, property)
}

func formatLiteral(o Object) string {
	escaped := escapeLiteral(o.Literal)
	switch o.LiteralType {
	case LiteralInteger:
		return fmt.Sprintf(`"%s"^^<http://www.w3.org/2001/XMLSchema#integer>`, escaped)
	case LiteralDecimal:
		return fmt.Sprintf(`"%s"^^<http://www.w3.org/2001/XMLSchema#decimal>`, escaped)
	case LiteralTimestamp:
		return fmt.Sprintf(`"%s"^^<http://www.w3.org/2001/XMLSchema#dateTime>`, escaped)
	default:
		return fmt.Sprintf(`"%s"`, escaped)
	}
}

func escapeLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
