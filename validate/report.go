// Package validate checks fact graphs against the ontology model and
// produces the pass/warn/fail report the pipeline decides on.
package validate

import (
	"fmt"
	"strings"
	"time"
)

// Status is the overall validation verdict.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// ViolationKind classifies schema non-conformances that fail validation.
type ViolationKind string

const (
	MissingRequiredProperty ViolationKind = "MissingRequiredProperty"
	CardinalityExceeded     ViolationKind = "CardinalityExceeded"
	CardinalityUnmet        ViolationKind = "CardinalityUnmet"
	DomainMismatch          ViolationKind = "DomainMismatch"
	RangeMismatch           ViolationKind = "RangeMismatch"
)

// WarningKind classifies non-fatal schema gaps.
type WarningKind string

const (
	UndefinedClass    WarningKind = "UndefinedClass"
	UndefinedProperty WarningKind = "UndefinedProperty"
)

// Violation is one schema non-conformance.
type Violation struct {
	Kind         ViolationKind `json:"kind"`
	SubjectID    string        `json:"subjectId"`
	ClassName    string        `json:"className,omitempty"`
	PropertyName string        `json:"propertyName,omitempty"`
	Message      string        `json:"message"`
}

// Warning is a non-fatal schema gap; unknown terms never block ingestion
// so the schema can evolve ahead of producers.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	SubjectID    string      `json:"subjectId"`
	ClassName    string      `json:"className,omitempty"`
	PropertyName string      `json:"propertyName,omitempty"`
	Message      string      `json:"message"`
}

// Report is the validation result for one fact graph.
type Report struct {
	Status          Status      `json:"status"`
	Violations      []Violation `json:"violations"`
	Warnings        []Warning   `json:"warnings"`
	ChecksPerformed []string    `json:"checksPerformed"`
	SubjectsChecked int         `json:"subjectsChecked"`
	FactsChecked    int         `json:"factsChecked"`
	CheckedAt       time.Time   `json:"checkedAt"`
}

// Summary renders a short human-readable description for logs and
// dead-letter records.
func (r *Report) Summary() string {
	if r.Status == StatusPass {
		return fmt.Sprintf("PASS: %d subjects, %d facts", r.SubjectsChecked, r.FactsChecked)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d violations, %d warnings", r.Status, len(r.Violations), len(r.Warnings))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "\n  [%s] %s", v.Kind, v.Message)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  [%s] %s", w.Kind, w.Message)
	}
	return b.String()
}
