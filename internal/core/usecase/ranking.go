package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// RankAndFilter drops results below the threshold, sorts each source by descending
// relevance (stable for ties) and truncates it to the source cap.
func RankAndFilter(results map[domain.Source][]domain.ScoredResult, minRelevance float64) map[domain.Source][]domain.ScoredResult {
	out := make(map[domain.Source][]domain.ScoredResult, len(results))
	for source, items := range results {
		kept := make([]domain.ScoredResult, 0, len(items))
		for _, item := range items {
			item.RelevanceScore = domain.ClampScore(item.RelevanceScore)
			if item.RelevanceScore < minRelevance {
				continue
			}
			kept = append(kept, item)
		}

		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].RelevanceScore > kept[j].RelevanceScore
		})

		if limit := source.FinalCap(); limit > 0 && len(kept) > limit {
			kept = kept[:limit]
		}
		out[source] = kept
	}
	return out
}

// AggregateConfidence is the weighted mean of the per-source average relevance.
// Only sources with results take part in the denominator; two or more contributing
// sources earn a 10% boost, and the value is clamped afterwards.
func AggregateConfidence(ranked map[domain.Source][]domain.ScoredResult) float64 {
	var weighted, totalWeight float64
	contributing := 0
	for _, source := range domain.AllSources {
		items := ranked[source]
		if len(items) == 0 {
			continue
		}
		var sum float64
		for _, item := range items {
			sum += domain.ClampScore(item.RelevanceScore)
		}
		avg := sum / float64(len(items))

		weighted += avg * source.Weight()
		totalWeight += source.Weight()
		contributing++
	}
	if totalWeight == 0 {
		return 0
	}

	confidence := weighted / totalWeight
	if contributing >= 2 {
		confidence *= 1.1
	}
	return domain.ClampScore(confidence)
}

func refineResults(record *domain.SearchRecord, req domain.RefineRequest, threshold float64) []domain.ScoredResult {
	out := make([]domain.ScoredResult, 0, record.TotalResults())
	for _, source := range domain.AllSources {
		if req.Excludes(source) {
			continue
		}
		for _, item := range record.Results[source] {
			if item.RelevanceScore < threshold {
				continue
			}
			if !containsAllKeywords(item, req.AdditionalKeywords) {
				continue
			}
			if !matchesDepartment(item, req.DepartmentFilter) {
				continue
			}
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

func containsAllKeywords(item domain.ScoredResult, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Description + " " + item.Solution)
	for _, kw := range keywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// matchesDepartment lets results without a known department through.
func matchesDepartment(item domain.ScoredResult, department string) bool {
	if department == "" {
		return true
	}
	got := item.MetadataString("department")
	if got == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(got), department)
}

func describeRefinement(req domain.RefineRequest, threshold float64) string {
	parts := []string{fmt.Sprintf("min relevance %.2f", threshold)}
	if len(req.AdditionalKeywords) > 0 {
		parts = append(parts, "keywords: "+strings.Join(req.AdditionalKeywords, ", "))
	}
	if len(req.ExcludeSources) > 0 {
		names := make([]string, 0, len(req.ExcludeSources))
		for _, s := range req.ExcludeSources {
			names = append(names, string(s))
		}
		parts = append(parts, "excluded sources: "+strings.Join(names, ", "))
	}
	if req.DepartmentFilter != "" {
		parts = append(parts, "department: "+req.DepartmentFilter)
	}
	return "Applied " + strings.Join(parts, "; ")
}
