package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

func TestWriteSearchRendersRankedRows(t *testing.T) {
	confidence := 0.72
	done := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	record := &domain.SearchRecord{
		ID:     "search-1",
		Status: domain.SearchStatusCompleted,
		Request: domain.SearchRequest{
			ProblemDescription: "Seal leaking at the housing flange",
			Department:         "quality",
			Severity:           domain.SeverityHigh,
			ReporterName:       "Dana",
		},
		Results: map[domain.Source][]domain.ScoredResult{
			domain.SourceWeb:      {{Title: "Web fix", URL: "https://example.org", RelevanceScore: 0.5}},
			domain.SourceDatabase: {{Title: "DB lesson", RelevanceScore: 0.9, Metadata: map[string]any{"department": "quality"}}},
		},
		Summary:     "Found 2 relevant solutions.",
		Confidence:  &confidence,
		CompletedAt: &done,
	}

	var buf bytes.Buffer
	if err := WriteSearch(&buf, record); err != nil {
		t.Fatalf("WriteSearch() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "database" || rows[1][2] != "DB lesson" || rows[1][7] != "quality" {
		t.Fatalf("database row must come first: %v", rows[1])
	}
	if rows[2][0] != "web" || rows[2][5] != "https://example.org" {
		t.Fatalf("unexpected web row: %v", rows[2])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if summary[6][1] != "0.72" || summary[8][1] != "Found 2 relevant solutions." {
		t.Fatalf("unexpected summary rows: %v", summary)
	}
}
