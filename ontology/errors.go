package ontology

import "errors"

// ErrSchemaUnavailable indicates no model has ever loaded and the
// backing schema store cannot be reached. Executions cannot proceed.
var ErrSchemaUnavailable = errors.New("ontology schema unavailable")
