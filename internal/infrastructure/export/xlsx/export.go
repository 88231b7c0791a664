package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultHeader = []any{"Source", "Rank", "Title", "Description", "Solution", "URL", "Relevance", "Department"}

// WriteSearch renders a search as a workbook: one row per ranked result plus a summary sheet.
func WriteSearch(w io.Writer, record *domain.SearchRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("rename results sheet: %w", err)
	}
	if err := setRow(f, resultsSheet, 1, resultHeader); err != nil {
		return err
	}

	row := 2
	for _, source := range domain.AllSources {
		for rank, res := range record.Results[source] {
			values := []any{
				string(source),
				rank + 1,
				res.Title,
				res.Description,
				res.Solution,
				res.URL,
				res.RelevanceScore,
				res.MetadataString("department"),
			}
			if err := setRow(f, resultsSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	confidence := ""
	if record.Confidence != nil {
		confidence = fmt.Sprintf("%.2f", *record.Confidence)
	}
	completed := ""
	if record.CompletedAt != nil {
		completed = record.CompletedAt.UTC().Format(time.RFC3339)
	}
	summaryRows := [][]any{
		{"Search ID", record.ID},
		{"Status", string(record.Status)},
		{"Problem", record.Request.ProblemDescription},
		{"Department", record.Request.Department},
		{"Severity", string(record.Request.Severity)},
		{"Reporter", record.Request.ReporterName},
		{"Confidence", confidence},
		{"Completed At", completed},
		{"Summary", record.Summary},
	}
	for i, values := range summaryRows {
		if err := setRow(f, summarySheet, i+1, values); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// Exporter adapts WriteSearch to the HTTP export endpoint.
type Exporter struct{}

func (Exporter) WriteSearch(w io.Writer, record *domain.SearchRecord) error {
	return WriteSearch(w, record)
}
