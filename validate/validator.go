package validate

import (
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/ontology"
)

// Validator checks fact graphs against an ontology model. It holds no
// mutable state; the same (graph, model) pair always yields the same
// report, with subjects in lexical order and restrictions in declaration
// order.
type Validator struct {
	now func() time.Time
}

// New creates a validator.
func New() *Validator {
	return &Validator{now: time.Now}
}

// NewWithClock creates a validator with a fixed time source so repeated
// runs produce byte-identical reports.
func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// subjectFacts groups one subject's declared classes and property counts.
type subjectFacts struct {
	types     []string
	propOrder []string
	props     map[string][]graph.Object
}

// Validate produces the validation report for one fact graph. An error
// return means the call itself was misused (nil model, malformed graph)
// and is distinct from an ontology violation.
func (v *Validator) Validate(g *graph.FactGraph, model *ontology.Model) (*Report, error) {
	if model.IsEmpty() {
		return nil, fmt.Errorf("ontology model is nil or empty")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("malformed fact graph: %w", err)
	}

	report := &Report{
		Violations: []Violation{},
		Warnings:   []Warning{},
		CheckedAt:  v.now(),
	}

	subjects, order := groupBySubject(g)
	report.SubjectsChecked = len(order)
	report.FactsChecked = len(g.Facts)

	v.checkUndefinedTerms(subjects, order, model, report)
	v.checkRestrictions(subjects, order, model, report)
	v.checkDomainRange(subjects, order, model, report)

	report.ChecksPerformed = []string{"undefined_terms", "cardinality_restrictions", "property_domains_ranges"}

	switch {
	case len(report.Violations) > 0:
		report.Status = StatusFail
	case len(report.Warnings) > 0:
		report.Status = StatusWarn
	default:
		report.Status = StatusPass
	}

	return report, nil
}

// groupBySubject collects each subject's declared types and per-property
// objects. The returned order is lexical so reports are stable.
func groupBySubject(g *graph.FactGraph) (map[string]*subjectFacts, []string) {
	subjects := make(map[string]*subjectFacts)
	var order []string

	for _, f := range g.Facts {
		sf := subjects[f.Subject]
		if sf == nil {
			sf = &subjectFacts{props: make(map[string][]graph.Object)}
			subjects[f.Subject] = sf
			order = append(order, f.Subject)
		}
		if f.Property == graph.TypeProperty {
			if f.Object.IsEntity() {
				sf.types = append(sf.types, f.Object.EntityID)
			}
			continue
		}
		if _, seen := sf.props[f.Property]; !seen {
			sf.propOrder = append(sf.propOrder, f.Property)
		}
		sf.props[f.Property] = append(sf.props[f.Property], f.Object)
	}

	sort.Strings(order)
	return subjects, order
}

// checkUndefinedTerms warns about classes and properties the model does
// not declare. Unknown terms are tolerated so the schema can evolve
// without blocking ingestion.
func (v *Validator) checkUndefinedTerms(subjects map[string]*subjectFacts, order []string, model *ontology.Model, report *Report) {
	for _, subject := range order {
		sf := subjects[subject]
		for _, class := range sf.types {
			if model.Class(class) == nil {
				report.Warnings = append(report.Warnings, Warning{
					Kind:      UndefinedClass,
					SubjectID: subject,
					ClassName: class,
					Message:   fmt.Sprintf("subject %s declares type %s which is not defined in the ontology", subject, class),
				})
			}
		}
		for _, prop := range sf.propOrder {
			if model.Property(prop) == nil {
				report.Warnings = append(report.Warnings, Warning{
					Kind:         UndefinedProperty,
					SubjectID:    subject,
					PropertyName: prop,
					Message:      fmt.Sprintf("subject %s uses property %s which is not defined in the ontology", subject, prop),
				})
			}
		}
	}
}

// checkRestrictions enforces cardinality rules from every class in each
// subject's ancestor closure.
func (v *Validator) checkRestrictions(subjects map[string]*subjectFacts, order []string, model *ontology.Model, report *Report) {
	for _, subject := range order {
		sf := subjects[subject]
		if len(sf.types) == 0 {
			continue
		}

		closure := model.Closure(sf.types)
		for _, classID := range closureOrder(closure) {
			for _, r := range model.RestrictionsFor(classID) {
				count := len(sf.props[r.Property])
				switch r.Kind {
				case ontology.RestrictionExactly:
					if count > r.Cardinality {
						report.Violations = append(report.Violations, cardinalityViolation(
							CardinalityExceeded, subject, classID, r, count))
					} else if count < r.Cardinality {
						kind := CardinalityUnmet
						if count == 0 {
							kind = MissingRequiredProperty
						}
						report.Violations = append(report.Violations, cardinalityViolation(
							kind, subject, classID, r, count))
					}
				case ontology.RestrictionAtLeast:
					if count < r.Cardinality {
						report.Violations = append(report.Violations, cardinalityViolation(
							CardinalityUnmet, subject, classID, r, count))
					}
				case ontology.RestrictionAtMost:
					if count > r.Cardinality {
						report.Violations = append(report.Violations, cardinalityViolation(
							CardinalityExceeded, subject, classID, r, count))
					}
				}
			}
		}
	}
}

func cardinalityViolation(kind ViolationKind, subject, class string, r ontology.Restriction, count int) Violation {
	return Violation{
		Kind:         kind,
		SubjectID:    subject,
		ClassName:    class,
		PropertyName: r.Property,
		Message: fmt.Sprintf("subject %s: property %s requires %s %d, has %d",
			subject, r.Property, r.Kind, r.Cardinality, count),
	}
}

// checkDomainRange verifies declared property domains against each
// subject's class closure and relational ranges against each object's
// declared classes.
func (v *Validator) checkDomainRange(subjects map[string]*subjectFacts, order []string, model *ontology.Model, report *Report) {
	for _, subject := range order {
		sf := subjects[subject]
		closure := model.Closure(sf.types)

		for _, propName := range sf.propOrder {
			prop := model.Property(propName)
			if prop == nil {
				continue // already warned as undefined
			}

			if prop.Domain != "" && !closure[prop.Domain] {
				report.Violations = append(report.Violations, Violation{
					Kind:         DomainMismatch,
					SubjectID:    subject,
					ClassName:    prop.Domain,
					PropertyName: propName,
					Message: fmt.Sprintf("subject %s uses property %s whose domain %s is not among its classes",
						subject, propName, prop.Domain),
				})
			}

			if prop.Kind != ontology.KindRelational || prop.Range == "" {
				continue
			}
			for _, obj := range sf.props[propName] {
				if !obj.IsEntity() {
					continue
				}
				target := subjects[obj.EntityID]
				if target == nil || len(target.types) == 0 {
					// Object outside this graph; range cannot be checked here.
					continue
				}
				if !model.Closure(target.types)[prop.Range] {
					report.Violations = append(report.Violations, Violation{
						Kind:         RangeMismatch,
						SubjectID:    subject,
						ClassName:    prop.Range,
						PropertyName: propName,
						Message: fmt.Sprintf("subject %s property %s references %s which is not a %s",
							subject, propName, obj.EntityID, prop.Range),
					})
				}
			}
		}
	}
}

// closureOrder returns closure members in lexical order for stable output.
func closureOrder(closure map[string]bool) []string {
	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
