// Package ontology defines the published schema that fact graphs must
// conform to, and the cache that shares one model across concurrent
// pipeline executions.
package ontology

import (
	"fmt"
	"time"
)

// PropertyKind distinguishes relational properties (entity to entity)
// from literal properties (entity to scalar value).
type PropertyKind string

const (
	KindRelational PropertyKind = "relational"
	KindLiteral    PropertyKind = "literal"
)

// RestrictionKind is the cardinality rule attached to a class/property pair.
type RestrictionKind string

const (
	RestrictionExactly RestrictionKind = "exactly"
	RestrictionAtLeast RestrictionKind = "atLeast"
	RestrictionAtMost  RestrictionKind = "atMost"
)

// Class is a node in the class hierarchy. Multiple parents are allowed.
type Class struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
	Parents []string `yaml:"parents,omitempty" json:"parents,omitempty"`
}

// Property declares a named relation or literal attachment, its domain
// class and its range (a class ID for relational properties, a scalar
// type name for literal properties).
type Property struct {
	ID        string       `yaml:"id" json:"id"`
	Kind      PropertyKind `yaml:"kind" json:"kind"`
	Domain    string       `yaml:"domain,omitempty" json:"domain,omitempty"`
	Range     string       `yaml:"range,omitempty" json:"range,omitempty"`
	Symmetric bool         `yaml:"symmetric,omitempty" json:"symmetric,omitempty"`
	InverseOf string       `yaml:"inverse_of,omitempty" json:"inverse_of,omitempty"`
}

// Restriction attaches a cardinality rule to a class for a given property.
type Restriction struct {
	Class       string          `yaml:"class" json:"class"`
	Property    string          `yaml:"property" json:"property"`
	Kind        RestrictionKind `yaml:"kind" json:"kind"`
	Cardinality int             `yaml:"cardinality" json:"cardinality"`
}

// Model is one versioned ontology snapshot. Restrictions are kept in
// declaration order so validation reports are stable across calls.
type Model struct {
	Version      string        `yaml:"version" json:"version"`
	Classes      []Class       `yaml:"classes" json:"classes"`
	Properties   []Property    `yaml:"properties" json:"properties"`
	Restrictions []Restriction `yaml:"restrictions,omitempty" json:"restrictions,omitempty"`

	// LoadedAt records when this snapshot was fetched from the schema store.
	LoadedAt time.Time `yaml:"-" json:"loaded_at"`

	classIndex    map[string]*Class
	propIndex     map[string]*Property
	restrictIndex map[string][]Restriction
}

// buildIndexes populates the lookup maps. Called by Validate.
func (m *Model) buildIndexes() {
	m.classIndex = make(map[string]*Class, len(m.Classes))
	for i := range m.Classes {
		m.classIndex[m.Classes[i].ID] = &m.Classes[i]
	}
	m.propIndex = make(map[string]*Property, len(m.Properties))
	for i := range m.Properties {
		m.propIndex[m.Properties[i].ID] = &m.Properties[i]
	}
	m.restrictIndex = make(map[string][]Restriction, len(m.Restrictions))
	for _, r := range m.Restrictions {
		m.restrictIndex[r.Class] = append(m.restrictIndex[r.Class], r)
	}
}

// Class returns the class with the given ID, or nil if undefined.
func (m *Model) Class(id string) *Class {
	return m.classIndex[id]
}

// Property returns the property with the given ID, or nil if undefined.
func (m *Model) Property(id string) *Property {
	return m.propIndex[id]
}

// RestrictionsFor returns the restrictions declared directly on a class,
// in declaration order.
func (m *Model) RestrictionsFor(classID string) []Restriction {
	return m.restrictIndex[classID]
}

// IsEmpty reports whether the model declares no classes and no properties.
func (m *Model) IsEmpty() bool {
	return m == nil || (len(m.Classes) == 0 && len(m.Properties) == 0)
}

// Closure returns the transitive ancestor closure of the given classes,
// including the classes themselves. Cycles in the parent graph are
// tolerated; each class is visited once.
func (m *Model) Closure(classIDs []string) map[string]bool {
	closure := make(map[string]bool, len(classIDs))
	stack := append([]string(nil), classIDs...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if closure[id] {
			continue
		}
		closure[id] = true
		if c := m.classIndex[id]; c != nil {
			stack = append(stack, c.Parents...)
		}
	}
	return closure
}

// IsSubclassOf reports whether classID equals ancestorID or declares it
// as a transitive ancestor.
func (m *Model) IsSubclassOf(classID, ancestorID string) bool {
	return m.Closure([]string{classID})[ancestorID]
}

// Validate checks internal consistency and builds the lookup indexes.
// Every restriction must name a declared class, and a property whose
// domain is that class or one of its ancestors.
func (m *Model) Validate() error {
	m.buildIndexes()

	for _, c := range m.Classes {
		for _, p := range c.Parents {
			if m.classIndex[p] == nil {
				return fmt.Errorf("class %q: undeclared parent %q", c.ID, p)
			}
		}
	}

	for _, p := range m.Properties {
		if p.Kind != KindRelational && p.Kind != KindLiteral {
			return fmt.Errorf("property %q: unknown kind %q", p.ID, p.Kind)
		}
		if p.Domain != "" && m.classIndex[p.Domain] == nil {
			return fmt.Errorf("property %q: undeclared domain class %q", p.ID, p.Domain)
		}
		if p.Kind == KindRelational && p.Range != "" && m.classIndex[p.Range] == nil {
			return fmt.Errorf("property %q: undeclared range class %q", p.ID, p.Range)
		}
		if p.InverseOf != "" && m.propIndex[p.InverseOf] == nil {
			return fmt.Errorf("property %q: undeclared inverse %q", p.ID, p.InverseOf)
		}
	}

	for _, r := range m.Restrictions {
		if m.classIndex[r.Class] == nil {
			return fmt.Errorf("restriction on %q/%q: undeclared class", r.Class, r.Property)
		}
		prop := m.propIndex[r.Property]
		if prop == nil {
			return fmt.Errorf("restriction on %q/%q: undeclared property", r.Class, r.Property)
		}
		switch r.Kind {
		case RestrictionExactly, RestrictionAtLeast, RestrictionAtMost:
		default:
			return fmt.Errorf("restriction on %q/%q: unknown kind %q", r.Class, r.Property, r.Kind)
		}
		if r.Cardinality < 0 {
			return fmt.Errorf("restriction on %q/%q: negative cardinality", r.Class, r.Property)
		}
		// The restricted property must apply to the owning class: its
		// declared domain is the class itself or an ancestor of it.
		if prop.Domain != "" && !m.IsSubclassOf(r.Class, prop.Domain) {
			return fmt.Errorf("restriction on %q/%q: property domain %q does not cover class",
				r.Class, r.Property, prop.Domain)
		}
	}

	return nil
}

// Merge combines another model into this one. Later documents win on ID
// collisions; restrictions are appended in document order.
func (m *Model) Merge(other *Model) {
	if other == nil {
		return
	}
	if other.Version != "" {
		m.Version = other.Version
	}
	for _, c := range other.Classes {
		if i := indexOfClass(m.Classes, c.ID); i >= 0 {
			m.Classes[i] = c
		} else {
			m.Classes = append(m.Classes, c)
		}
	}
	for _, p := range other.Properties {
		if i := indexOfProperty(m.Properties, p.ID); i >= 0 {
			m.Properties[i] = p
		} else {
			m.Properties = append(m.Properties, p)
		}
	}
	m.Restrictions = append(m.Restrictions, other.Restrictions...)
}

func indexOfClass(classes []Class, id string) int {
	for i, c := range classes {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func indexOfProperty(props []Property, id string) int {
	for i, p := range props {
		if p.ID == id {
			return i
		}
	}
	return -1
}
