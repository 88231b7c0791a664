package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/relevance"
)

// Column headers of the lessons learned workbook export.
const (
	ColCommodity     = "Commodity"
	ColPartNumber    = "Teilenummer"
	ColSupplier      = "Lieferant"
	ColErrorLocation = "Fehlerort"
	ColErrorType     = "Fehlerart"
	ColProblem       = "Problembeschreibung"
)

var (
	causeColumns = []string{
		"Auftreten Technisch",
		"Auftreten Systemisch",
		"Nicht-Entdecken Technisch",
		"Nicht-Entdecken Systemisch",
	}
	measureColumns = []string{
		"Maßnahme Auftreten Technisch",
		"Maßnahme Auftreten Systemisch",
		"Maßnahme Nicht-Entdecken Technisch",
		"Maßnahme Nicht-Entdecken Systemisch",
	}
)

// Parse reads every sheet carrying a Problembeschreibung or Commodity header and
// returns one entry per non-empty row.
func Parse(r io.Reader, doc *domain.KnowledgeDocument) ([]domain.KnowledgeEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var out []domain.KnowledgeEntry
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		out = append(out, parseSheet(rows, doc)...)
	}
	return out, nil
}

func parseSheet(rows [][]string, doc *domain.KnowledgeDocument) []domain.KnowledgeEntry {
	headerIdx := -1
	var header map[string]int
	for i, row := range rows {
		h := headerIndex(row)
		if _, ok := h[ColProblem]; ok {
			headerIdx, header = i, h
			break
		}
		if _, ok := h[ColCommodity]; ok {
			headerIdx, header = i, h
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	var out []domain.KnowledgeEntry
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rowValues(rows[i], header)
		entry, ok := rowEntry(row, doc, i+1)
		if ok {
			out = append(out, entry)
		}
	}
	return out
}

func headerIndex(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			out[cell] = i
		}
	}
	return out
}

func rowValues(row []string, header map[string]int) map[string]string {
	out := make(map[string]string, len(header))
	for name, idx := range header {
		if idx < len(row) {
			if v := strings.TrimSpace(row[idx]); v != "" {
				out[name] = v
			}
		}
	}
	return out
}

func rowEntry(row map[string]string, doc *domain.KnowledgeDocument, rowNumber int) (domain.KnowledgeEntry, bool) {
	if row[ColProblem] == "" && row[ColCommodity] == "" && row[ColErrorLocation] == "" {
		return domain.KnowledgeEntry{}, false
	}

	title := joinNonEmpty(" - ", row[ColCommodity], row[ColErrorLocation], row[ColErrorType])
	if title == "" {
		title = "Knowledge Base Entry"
	}
	measures := make([]string, 0, len(measureColumns))
	for _, col := range measureColumns {
		measures = append(measures, row[col])
	}

	textParts := []string{row[ColCommodity], row[ColPartNumber], row[ColSupplier], row[ColErrorLocation], row[ColErrorType], row[ColProblem]}
	for _, col := range causeColumns {
		textParts = append(textParts, row[col])
	}
	textParts = append(textParts, measures...)
	text := joinNonEmpty(" ", textParts...)

	return domain.KnowledgeEntry{
		ID:            fmt.Sprintf("%s:%d", doc.ID, rowNumber),
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		Row:           rowNumber,
		Title:         title,
		Description:   row[ColProblem],
		Solution:      joinNonEmpty(" | ", measures...),
		Department:    relevance.InferDepartment(text),
		Commodity:     row[ColCommodity],
		PartNumber:    row[ColPartNumber],
		Supplier:      row[ColSupplier],
		ErrorLocation: row[ColErrorLocation],
		ErrorType:     row[ColErrorType],
		Text:          text,
	}, true
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
