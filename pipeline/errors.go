package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/semgraph/ontology"
	"github.com/c360studio/semgraph/retry"
)

// Error kinds recorded on dead-letter entries. Dead-letter consumers key
// re-drive decisions off these, so the set is part of the wire contract.
const (
	KindTransient         = "TransientError"
	KindPermanent         = "PermanentError"
	KindValidation        = "ValidationError"
	KindSchemaUnavailable = "SchemaUnavailable"
	KindTimeout           = "TimeoutError"
)

// ValidationError marks an execution rejected by the validator. It is
// never retried.
type ValidationError struct {
	DocumentID string
	Violations int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document %s rejected with %d violations", e.DocumentID, e.Violations)
}

// Classify maps a terminal error to its dead-letter kind.
func Classify(err error) string {
	var vErr *ValidationError
	var exhausted *retry.ExhaustedError

	switch {
	case errors.As(err, &vErr):
		return KindValidation
	case errors.Is(err, ontology.ErrSchemaUnavailable):
		return KindSchemaUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &exhausted):
		return KindTransient
	default:
		return KindPermanent
	}
}
