package graph

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// chunkTextLimit bounds how much chunk text is stored in the graph; the
// full text lives in the vector index.
const chunkTextLimit = 500

// DocumentEntityID returns the graph entity ID for a document.
// Format: semgraph.document.<documentID>
func DocumentEntityID(documentID string) string {
	return fmt.Sprintf("semgraph.document.%s", documentID)
}

// ChunkEntityID returns the graph entity ID for a chunk of a document.
func ChunkEntityID(documentID string, chunkID int) string {
	return fmt.Sprintf("semgraph.document.%s.chunk.%d", documentID, chunkID)
}

// KeywordEntityID returns the graph entity ID for a keyword.
func KeywordEntityID(keyword string) string {
	return fmt.Sprintf("semgraph.keyword.%s", url.PathEscape(keyword))
}

// AuthorEntityID returns the graph entity ID for an author.
func AuthorEntityID(author string) string {
	return fmt.Sprintf("semgraph.author.%s", url.PathEscape(author))
}

// Builder converts parsed-document artifacts into fact graphs.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a fact graph builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderWithClock creates a builder with a fixed time source so tests
// get byte-identical graphs.
func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// Build derives the fact graph for one parsed document.
func (b *Builder) Build(doc *ParsedDocument) (*FactGraph, error) {
	if doc == nil || doc.DocumentID == "" {
		return nil, fmt.Errorf("parsed document has no document ID")
	}

	g := &FactGraph{DocumentID: doc.DocumentID}
	docEntity := DocumentEntityID(doc.DocumentID)

	g.Add(docEntity, TypeProperty, Entity(ClassDocument))
	g.Add(docEntity, PropHasID, String(doc.DocumentID))
	if doc.FileName != "" {
		g.Add(docEntity, PropHasFileName, String(doc.FileName))
	}
	g.Add(docEntity, PropHasTextLength, Integer(int64(len(doc.ExtractedText))))
	g.Add(docEntity, PropCreatedAt, Timestamp(b.now()))

	if doc.Metadata.DocumentType != "" {
		g.Add(docEntity, PropHasType, String(doc.Metadata.DocumentType))
	}

	for _, keyword := range splitKeywords(doc.Metadata.Keywords) {
		kwEntity := KeywordEntityID(keyword)
		g.Add(kwEntity, TypeProperty, Entity(ClassKeyword))
		g.Add(kwEntity, PropHasValue, String(keyword))
		g.Add(docEntity, PropHasKeyword, Entity(kwEntity))
	}

	if doc.Metadata.Author != "" {
		authorEntity := AuthorEntityID(doc.Metadata.Author)
		g.Add(authorEntity, TypeProperty, Entity(ClassAuthor))
		g.Add(authorEntity, PropHasName, String(doc.Metadata.Author))
		g.Add(docEntity, PropHasAuthor, Entity(authorEntity))
	}

	for _, chunk := range doc.Chunks {
		chunkEntity := ChunkEntityID(doc.DocumentID, chunk.ChunkID)
		g.Add(chunkEntity, TypeProperty, Entity(ClassTextChunk))
		g.Add(chunkEntity, PropHasChunkID, Integer(int64(chunk.ChunkID)))
		g.Add(chunkEntity, PropHasText, String(truncate(chunk.Text, chunkTextLimit)))
		g.Add(chunkEntity, PropHasStartPos, Integer(int64(chunk.StartOffset)))
		g.Add(chunkEntity, PropHasLength, Integer(int64(chunk.Length)))
		g.Add(docEntity, PropHasChunk, Entity(chunkEntity))
	}

	return g, nil
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var keywords []string
	for _, part := range strings.Split(s, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// truncate cuts s to at most limit bytes without splitting a multi-byte
// rune at the boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
