package graph

// Ontology terms used by generated fact graphs. These mirror the built-in
// document schema shipped in DefaultSchemaYAML.
const (
	ClassDocument  = "Document"
	ClassTextChunk = "TextChunk"
	ClassKeyword   = "Keyword"
	ClassAuthor    = "Author"

	PropHasID         = "hasId"
	PropHasFileName   = "hasFileName"
	PropHasTextLength = "hasTextLength"
	PropCreatedAt     = "createdAt"
	PropHasType       = "hasType"
	PropHasChunk      = "hasChunk"
	PropHasChunkID    = "hasChunkId"
	PropHasText       = "hasText"
	PropHasStartPos   = "hasStartPosition"
	PropHasLength     = "hasLength"
	PropHasEmbedding  = "hasEmbedding"
	PropHasKeyword    = "hasKeyword"
	PropHasAuthor     = "hasAuthor"
	PropHasValue      = "hasValue"
	PropHasName       = "hasName"
)

// DefaultSchemaYAML is the built-in document ontology. It seeds an empty
// schema store and serves as the fixture model in tests.
const DefaultSchemaYAML = `version: "1.0"
classes:
  - id: Document
    label: Source document
  - id: TextChunk
    label: Contiguous slice of extracted text
  - id: Keyword
    label: Document keyword
  - id: Author
    label: Document author
properties:
  - id: hasId
    kind: literal
    domain: Document
    range: string
  - id: hasFileName
    kind: literal
    domain: Document
    range: string
  - id: hasTextLength
    kind: literal
    domain: Document
    range: integer
  - id: createdAt
    kind: literal
    domain: Document
    range: timestamp
  - id: hasType
    kind: literal
    domain: Document
    range: string
  - id: hasChunk
    kind: relational
    domain: Document
    range: TextChunk
  - id: hasChunkId
    kind: literal
    domain: TextChunk
    range: integer
  - id: hasText
    kind: literal
    domain: TextChunk
    range: string
  - id: hasStartPosition
    kind: literal
    domain: TextChunk
    range: integer
  - id: hasLength
    kind: literal
    domain: TextChunk
    range: integer
  - id: hasEmbedding
    kind: literal
    domain: TextChunk
    range: string
  - id: hasKeyword
    kind: relational
    domain: Document
    range: Keyword
  - id: hasAuthor
    kind: relational
    domain: Document
    range: Author
  - id: hasValue
    kind: literal
    domain: Keyword
    range: string
  - id: hasName
    kind: literal
    domain: Author
    range: string
restrictions:
  - class: Document
    property: hasId
    kind: exactly
    cardinality: 1
  - class: Document
    property: hasFileName
    kind: atMost
    cardinality: 1
  - class: Document
    property: hasChunk
    kind: atLeast
    cardinality: 1
  - class: TextChunk
    property: hasChunkId
    kind: exactly
    cardinality: 1
  - class: TextChunk
    property: hasEmbedding
    kind: atMost
    cardinality: 1
`
