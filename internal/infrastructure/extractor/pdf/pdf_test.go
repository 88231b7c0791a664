package pdf

import (
	"testing"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

type halfChunker struct{}

func (halfChunker) Split(text string) []string {
	mid := len(text) / 2
	return []string{text[:mid], text[mid:]}
}

func TestParseRejectsInvalidPDF(t *testing.T) {
	_, err := Parse([]byte("not a pdf"), &domain.KnowledgeDocument{ID: "d", Filename: "x.pdf"}, nil)
	if err == nil {
		t.Fatalf("expected error for invalid pdf")
	}
}

func TestEntriesChunkText(t *testing.T) {
	doc := &domain.KnowledgeDocument{ID: "doc-3", Filename: "audit.pdf"}
	entries := Entries("quality audit finding one. production follow up two.", doc, halfChunker{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "doc-3:0" || entries[1].Title != "audit (page text 2)" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Department != "quality" {
		t.Fatalf("expected quality department, got %q", entries[0].Department)
	}
}
