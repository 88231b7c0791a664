package domain

// SearchProgress is the per-source completion state of one search.
type SearchProgress struct {
	DatabaseCompleted bool `json:"database_completed"`
	RAGCompleted      bool `json:"rag_completed"`
	WebCompleted      bool `json:"web_completed"`
	TotalSources      int  `json:"total_sources"`
	CompletedSources  int  `json:"completed_sources"`
}

func NewSearchProgress(sources []Source) SearchProgress {
	total := 0
	for _, s := range sources {
		if s.Valid() {
			total++
		}
	}
	return SearchProgress{TotalSources: total}
}

// MarkCompleted flips the flag of the source. It reports whether anything changed,
// so applying the same completion twice is a no-op.
func (p *SearchProgress) MarkCompleted(source Source) bool {
	flag := p.flag(source)
	if flag == nil || *flag {
		return false
	}
	*flag = true
	p.CompletedSources = p.countCompleted()
	return true
}

func (p SearchProgress) IsCompleted(source Source) bool {
	flag := p.flag(source)
	return flag != nil && *flag
}

// Done reports whether every enabled source has resolved.
func (p SearchProgress) Done() bool {
	return p.CompletedSources >= p.TotalSources
}

func (p *SearchProgress) flag(source Source) *bool {
	switch source {
	case SourceDatabase:
		return &p.DatabaseCompleted
	case SourceRAG:
		return &p.RAGCompleted
	case SourceWeb:
		return &p.WebCompleted
	default:
		return nil
	}
}

func (p SearchProgress) countCompleted() int {
	n := 0
	for _, done := range []bool{p.DatabaseCompleted, p.RAGCompleted, p.WebCompleted} {
		if done {
			n++
		}
	}
	return n
}

// ProgressKey is the persisted field name of the completion flag for the source.
func ProgressKey(source Source) string {
	switch source {
	case SourceDatabase:
		return "database_completed"
	case SourceRAG:
		return "rag_completed"
	case SourceWeb:
		return "web_completed"
	default:
		return ""
	}
}
