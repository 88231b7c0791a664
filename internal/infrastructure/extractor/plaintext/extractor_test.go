package plaintext

import (
	"strings"
	"testing"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

const lessonMarkdown = `# Seal leak on housing flange

**Problembeschreibung**: Seal leaking at the flange after the pressure test.
Observed on line 2.

**Ursache**: wrong O-ring batch.

**Maßnahme Auftreten Technisch**: Replace the O-ring batch.
Tighten incoming inspection.
**Verantwortlich**: QM
`

type fixedChunker struct{ parts []string }

func (c fixedChunker) Split(string) []string { return c.parts }

func TestParseExtractsSections(t *testing.T) {
	doc := &domain.KnowledgeDocument{ID: "doc-7", Filename: "seal.md"}
	entries, err := Parse([]byte(lessonMarkdown), doc, nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Title != "Seal leak on housing flange" {
		t.Fatalf("unexpected title %q", e.Title)
	}
	if !strings.Contains(e.Description, "Observed on line 2.") || strings.Contains(e.Description, "Ursache") {
		t.Fatalf("unexpected description %q", e.Description)
	}
	if !strings.Contains(e.Solution, "Replace the O-ring batch.") || !strings.Contains(e.Solution, "Tighten incoming inspection.") {
		t.Fatalf("unexpected solution %q", e.Solution)
	}
	if strings.Contains(e.Solution, "Verantwortlich") {
		t.Fatalf("solution leaked into next section: %q", e.Solution)
	}
	if e.ID != "doc-7:0" {
		t.Fatalf("unexpected id %q", e.ID)
	}
}

func TestParseSplitsLongDocuments(t *testing.T) {
	doc := &domain.KnowledgeDocument{ID: "doc-8", Filename: "notes.txt"}
	entries, err := Parse([]byte("first part text\n\nsecond part text"), doc, fixedChunker{parts: []string{"first part text", "second part text"}})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Title != "notes (part 2)" || entries[1].Text != "second part text" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestParseRejectsBinary(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfe, 0x00}, &domain.KnowledgeDocument{Filename: "x.txt"}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
}
