package sources

import (
	"sort"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

type fusedCandidate struct {
	entry    domain.KnowledgeEntry
	rrf      float64
	semantic float64
}

// fuseHitsRRF merges semantic and lexical rankings with reciprocal rank fusion.
// The best semantic score of each entry is carried along for final scoring.
func fuseHitsRRF(semantic, lexical []domain.KnowledgeHit, rrfK int) []fusedCandidate {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]*fusedCandidate, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))
	addList := func(hits []domain.KnowledgeHit, isSemantic bool) {
		for rank, hit := range hits {
			key := entryKey(hit.Entry)
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{entry: hit.Entry}
				acc[key] = candidate
				order = append(order, key)
			} else {
				candidate.entry = preferRicherEntry(candidate.entry, hit.Entry)
			}
			candidate.rrf += 1.0 / float64(rrfK+rank+1)
			if isSemantic && hit.Score > candidate.semantic {
				candidate.semantic = hit.Score
			}
		}
	}

	addList(semantic, true)
	addList(lexical, false)

	out := make([]fusedCandidate, 0, len(acc))
	for _, key := range order {
		out = append(out, *acc[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		return out[i].entry.ID < out[j].entry.ID
	})
	return out
}

func entryKey(entry domain.KnowledgeEntry) string {
	if entry.ID != "" {
		return entry.ID
	}
	return entry.DocumentID + "|" + entry.Filename + "|" + entry.Text
}

func preferRicherEntry(current, candidate domain.KnowledgeEntry) domain.KnowledgeEntry {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Title == "" && candidate.Title != "" {
		current.Title = candidate.Title
	}
	if current.Description == "" && candidate.Description != "" {
		current.Description = candidate.Description
	}
	if current.Solution == "" && candidate.Solution != "" {
		current.Solution = candidate.Solution
	}
	if current.Department == "" && candidate.Department != "" {
		current.Department = candidate.Department
	}
	if current.Filename == "" && candidate.Filename != "" {
		current.Filename = candidate.Filename
	}
	return current
}
