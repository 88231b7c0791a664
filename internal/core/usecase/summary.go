package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// ComposeSummary describes the ranked results by count per source.
func ComposeSummary(ranked map[domain.Source][]domain.ScoredResult, req domain.SearchRequest) string {
	total := countResults(ranked)
	if total == 0 {
		return fmt.Sprintf(
			"No relevant solutions found for your %s severity issue in %s department. Consider refining your search criteria or consulting with domain experts.",
			req.Severity, req.Department,
		)
	}

	parts := make([]string, 0, 3)
	contributing := 0
	for _, source := range domain.AllSources {
		n := len(ranked[source])
		if n == 0 {
			continue
		}
		contributing++
		switch source {
		case domain.SourceDatabase:
			parts = append(parts, fmt.Sprintf("Found %d similar incidents in our internal database with proven solutions.", n))
		case domain.SourceRAG:
			parts = append(parts, fmt.Sprintf("Located %d relevant entries in our knowledge base.", n))
		case domain.SourceWeb:
			parts = append(parts, fmt.Sprintf("Identified %d industry best practices and external solutions.", n))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search completed for your %s severity issue in %s department. ", req.Severity, req.Department)
	b.WriteString(strings.Join(parts, " "))
	if contributing == 1 {
		b.WriteString(" Results drawn from 1 source.")
	} else {
		fmt.Fprintf(&b, " Results drawn from %d sources.", contributing)
	}

	switch {
	case total >= 5:
		b.WriteString(" High confidence in the provided solutions.")
	case total >= 2:
		b.WriteString(" Moderate confidence in the provided solutions.")
	default:
		b.WriteString(" Limited results available - consider additional research.")
	}
	return b.String()
}

// BuildSummaryPrompt asks a language model for a short synthesis of the top results.
func BuildSummaryPrompt(ranked map[domain.Source][]domain.ScoredResult, req domain.SearchRequest) string {
	const perSource = 3
	const maxSnippet = 300

	var b strings.Builder
	fmt.Fprintf(&b, `You support manufacturing quality engineers.
Summarize in at most three sentences which corrective actions the results below suggest.
Do not invent facts that are not in the results.

Problem (%s severity, %s department):
%s

Results:
`, req.Severity, req.Department, req.ProblemDescription)

	idx := 1
	for _, source := range domain.AllSources {
		items := ranked[source]
		if len(items) > perSource {
			items = items[:perSource]
		}
		for _, item := range items {
			text := item.Solution
			if text == "" {
				text = item.Description
			}
			if len(text) > maxSnippet {
				text = text[:maxSnippet]
			}
			fmt.Fprintf(&b, "[%d] source=%s score=%.2f %s\n%s\n\n", idx, source, item.RelevanceScore, item.Title, text)
			idx++
		}
	}
	return b.String()
}
