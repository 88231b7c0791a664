package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/core/relevance"
)

// Parse extracts the plain text of a PDF and splits it into entries with the chunker.
func Parse(raw []byte, doc *domain.KnowledgeDocument, chunker ports.Chunker) ([]domain.KnowledgeEntry, error) {
	text, err := plainText(raw)
	if err != nil {
		return nil, err
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, nil
	}
	return Entries(text, doc, chunker), nil
}

func plainText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	out, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(out), nil
}

// Entries builds one entry per chunk of already extracted text.
func Entries(text string, doc *domain.KnowledgeDocument, chunker ports.Chunker) []domain.KnowledgeEntry {
	chunks := []string{text}
	if chunker != nil {
		if split := chunker.Split(text); len(split) > 0 {
			chunks = split
		}
	}
	base := strings.TrimSuffix(doc.Filename, ".pdf")
	out := make([]domain.KnowledgeEntry, 0, len(chunks))
	for i, chunk := range chunks {
		description := chunk
		if r := []rune(chunk); len(r) > 300 {
			description = string(r[:300])
		}
		out = append(out, domain.KnowledgeEntry{
			ID:          fmt.Sprintf("%s:%d", doc.ID, i),
			DocumentID:  doc.ID,
			Filename:    doc.Filename,
			Title:       fmt.Sprintf("%s (page text %d)", base, i+1),
			Description: description,
			Department:  relevance.InferDepartment(chunk),
			Text:        chunk,
		})
	}
	return out
}
