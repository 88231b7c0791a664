package plaintext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/core/relevance"
)

const (
	maxDescriptionRunes = 300
	defaultTitle        = "Knowledge Base Entry"
)

var (
	descriptionMarkers = []string{"**Problembeschreibung**", "**Fehlerort**", "**Problem**", "## Problem"}
	solutionMarkers    = []string{"**Maßnahme", "**Empfohlene Maßnahmen**", "**Solution", "**Lösung", "## Solution", "## Lösung", "## Maßnahme"}
)

// Parse turns a markdown or plain text document into entries. Documents that fit one
// chunk become a single entry with parsed sections; longer ones are split by the chunker
// and share the parsed title.
func Parse(raw []byte, doc *domain.KnowledgeDocument, chunker ports.Chunker) ([]domain.KnowledgeEntry, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("unsupported binary content in %s", doc.Filename)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(raw), "\r\n", "\n"))
	if text == "" {
		return nil, nil
	}

	title, description, solution := parseSections(text)
	if title == defaultTitle {
		title = strings.TrimSuffix(doc.Filename, extOf(doc.Filename))
	}

	chunks := []string{text}
	if chunker != nil {
		if split := chunker.Split(text); len(split) > 0 {
			chunks = split
		}
	}

	out := make([]domain.KnowledgeEntry, 0, len(chunks))
	for i, chunk := range chunks {
		entry := domain.KnowledgeEntry{
			ID:          fmt.Sprintf("%s:%d", doc.ID, i),
			DocumentID:  doc.ID,
			Filename:    doc.Filename,
			Title:       title,
			Description: description,
			Solution:    solution,
			Department:  relevance.InferDepartment(chunk),
			Text:        chunk,
		}
		if len(chunks) > 1 {
			entry.Title = fmt.Sprintf("%s (part %d)", title, i+1)
			entry.Description = truncate(chunk, maxDescriptionRunes)
		}
		out = append(out, entry)
	}
	return out, nil
}

func parseSections(text string) (title, description, solution string) {
	lines := strings.Split(text, "\n")
	title = defaultTitle
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			title = strings.TrimSpace(line[2:])
			break
		}
	}

	description = truncate(section(lines, descriptionMarkers), maxDescriptionRunes)
	if description == "" {
		description = truncate(firstParagraph(lines), maxDescriptionRunes)
	}
	solution = section(lines, solutionMarkers)
	return title, description, solution
}

// section collects the marker line and the following lines up to the next bold or heading line.
func section(lines []string, markers []string) string {
	var parts []string
	in := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case hasMarker(line, markers):
			if in {
				parts = append(parts, line)
				continue
			}
			in = true
			parts = append(parts, line)
		case in && (strings.HasPrefix(line, "**") || strings.HasPrefix(line, "#")):
			return strings.Join(parts, " ")
		case in && line != "":
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func hasMarker(line string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

func firstParagraph(lines []string) string {
	var parts []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if len(parts) > 0 {
				break
			}
			continue
		}
		if line == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}
