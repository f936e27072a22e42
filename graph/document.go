package graph

// ParsedDocument is the input artifact produced by the external parsing
// collaborator. One artifact yields one fact graph.
type ParsedDocument struct {
	DocumentID    string           `json:"documentId"`
	FileName      string           `json:"fileName,omitempty"`
	ExtractedText string           `json:"extractedText"`
	Chunks        []Chunk          `json:"chunks"`
	Metadata      DocumentMetadata `json:"metadata"`
}

// Chunk is one contiguous slice of the extracted text.
type Chunk struct {
	ChunkID     int    `json:"chunkId"`
	Text        string `json:"text"`
	StartOffset int    `json:"startOffset"`
	Length      int    `json:"length"`
}

// DocumentMetadata carries optional descriptive fields from the parser.
type DocumentMetadata struct {
	Keywords     string `json:"keywords,omitempty"`
	DocumentType string `json:"documentType,omitempty"`
	Author       string `json:"author,omitempty"`
}
