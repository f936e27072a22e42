package graph

import (
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func sampleDocument() *ParsedDocument {
	return &ParsedDocument{
		DocumentID:    "doc-1",
		FileName:      "report.pdf",
		ExtractedText: "quarterly results for the finance team",
		Chunks: []Chunk{
			{ChunkID: 0, Text: "quarterly results", StartOffset: 0, Length: 17},
			{ChunkID: 1, Text: "for the finance team", StartOffset: 18, Length: 20},
		},
		Metadata: DocumentMetadata{
			Keywords:     "finance, results",
			DocumentType: "report",
			Author:       "Sam Doe",
		},
	}
}

func TestBuildDocumentFacts(t *testing.T) {
	g, err := NewBuilderWithClock(fixedClock()).Build(sampleDocument())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %s, want doc-1", g.DocumentID)
	}

	docEntity := DocumentEntityID("doc-1")
	if got := g.TypesOf(docEntity); !reflect.DeepEqual(got, []string{ClassDocument}) {
		t.Errorf("document types = %v, want [%s]", got, ClassDocument)
	}

	// One fact per chunk link, keyword link and author link.
	counts := map[string]int{}
	for _, f := range g.Facts {
		if f.Subject == docEntity {
			counts[f.Property]++
		}
	}
	if counts[PropHasChunk] != 2 {
		t.Errorf("hasChunk facts = %d, want 2", counts[PropHasChunk])
	}
	if counts[PropHasKeyword] != 2 {
		t.Errorf("hasKeyword facts = %d, want 2", counts[PropHasKeyword])
	}
	if counts[PropHasAuthor] != 1 {
		t.Errorf("hasAuthor facts = %d, want 1", counts[PropHasAuthor])
	}
	if counts[PropHasID] != 1 {
		t.Errorf("hasId facts = %d, want 1", counts[PropHasID])
	}

	chunkEntity := ChunkEntityID("doc-1", 1)
	if got := g.TypesOf(chunkEntity); !reflect.DeepEqual(got, []string{ClassTextChunk}) {
		t.Errorf("chunk types = %v, want [%s]", got, ClassTextChunk)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	builder := NewBuilderWithClock(fixedClock())

	first, err := builder.Build(sampleDocument())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := builder.Build(sampleDocument())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated builds of the same document differ")
	}
}

func TestBuildRejectsMissingDocumentID(t *testing.T) {
	if _, err := NewBuilder().Build(&ParsedDocument{}); err == nil {
		t.Error("Build() accepted document without ID")
	}
	if _, err := NewBuilder().Build(nil); err == nil {
		t.Error("Build() accepted nil document")
	}
}

func TestBuildTruncatesChunkText(t *testing.T) {
	doc := sampleDocument()
	long := make([]byte, 2*chunkTextLimit)
	for i := range long {
		long[i] = 'x'
	}
	doc.Chunks = []Chunk{{ChunkID: 0, Text: string(long), Length: len(long)}}

	g, err := NewBuilderWithClock(fixedClock()).Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	chunkEntity := ChunkEntityID("doc-1", 0)
	for _, f := range g.Facts {
		if f.Subject == chunkEntity && f.Property == PropHasText {
			if len(f.Object.Literal) != chunkTextLimit {
				t.Errorf("stored text length = %d, want %d", len(f.Object.Literal), chunkTextLimit)
			}
			return
		}
	}
	t.Error("chunk text fact not found")
}

func TestBuildTruncationKeepsRunesIntact(t *testing.T) {
	// A two-byte rune straddling the byte limit must not be split; the
	// staged literal has to stay valid UTF-8.
	doc := sampleDocument()
	text := strings.Repeat("a", chunkTextLimit-1) + "é" + strings.Repeat("b", 100)
	doc.Chunks = []Chunk{{ChunkID: 0, Text: text, Length: len(text)}}

	g, err := NewBuilderWithClock(fixedClock()).Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	chunkEntity := ChunkEntityID("doc-1", 0)
	for _, f := range g.Facts {
		if f.Subject == chunkEntity && f.Property == PropHasText {
			got := f.Object.Literal
			if !utf8.ValidString(got) {
				t.Fatalf("stored text is invalid UTF-8: %q", got[len(got)-4:])
			}
			if len(got) != chunkTextLimit-1 {
				t.Errorf("stored text length = %d, want %d", len(got), chunkTextLimit-1)
			}
			if strings.ContainsRune(got, 'é') || strings.ContainsRune(got, 'b') {
				t.Errorf("text past the limit survived truncation")
			}
			return
		}
	}
	t.Error("chunk text fact not found")
}

func TestSplitKeywords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"finance", []string{"finance"}},
		{"finance, results , q3", []string{"finance", "results", "q3"}},
		{" , ,", nil},
	}
	for _, tt := range tests {
		if got := splitKeywords(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitKeywords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntityIDEscaping(t *testing.T) {
	if got := KeywordEntityID("machine learning"); got != "semgraph.keyword.machine%20learning" {
		t.Errorf("KeywordEntityID = %s", got)
	}
	if got := AuthorEntityID("Doe/Sam"); got != "semgraph.author.Doe%2FSam" {
		t.Errorf("AuthorEntityID = %s", got)
	}
}
