package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type SearchStatus string

const (
	SearchStatusSearching SearchStatus = "searching"
	SearchStatusCompleted SearchStatus = "completed"
	SearchStatusFailed    SearchStatus = "failed"
)

func (s SearchStatus) Valid() bool {
	switch s {
	case SearchStatusSearching, SearchStatusCompleted, SearchStatusFailed:
		return true
	default:
		return false
	}
}

func (s SearchStatus) Terminal() bool {
	return s == SearchStatusCompleted || s == SearchStatusFailed
}

// SearchRecord is the persisted lifecycle of one solution search.
type SearchRecord struct {
	ID      string        `json:"id"`
	Request SearchRequest `json:"request"`

	Status       SearchStatus              `json:"status"`
	Results      map[Source][]ScoredResult `json:"search_results"`
	SourceErrors map[Source]string         `json:"source_errors,omitempty"`
	Summary      string                    `json:"summary,omitempty"`
	Confidence   *float64                  `json:"confidence_score,omitempty"`
	Progress     SearchProgress            `json:"progress"`
	Error        string                    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TotalResults counts the results across all sources.
func (r *SearchRecord) TotalResults() int {
	n := 0
	for _, results := range r.Results {
		n += len(results)
	}
	return n
}

// FindResult looks a result up by id and falls back to an exact title match.
func (r *SearchRecord) FindResult(resultID string) (ScoredResult, bool) {
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return ScoredResult{}, false
	}
	for _, source := range AllSources {
		for _, res := range r.Results[source] {
			if res.ID == resultID {
				return res, true
			}
		}
	}
	for _, source := range AllSources {
		for _, res := range r.Results[source] {
			if res.Title == resultID {
				return res, true
			}
		}
	}
	return ScoredResult{}, false
}

// SearchFinalization is the terminal payload written in one atomic update.
type SearchFinalization struct {
	Results     map[Source][]ScoredResult
	Errors      map[Source]string
	Summary     string
	Confidence  float64
	Progress    SearchProgress
	CompletedAt time.Time
}

type Helpfulness string

const (
	HelpfulUnset Helpfulness = ""
	HelpfulYes   Helpfulness = "yes"
	HelpfulNo    Helpfulness = "no"
	HelpfulMaybe Helpfulness = "maybe"
)

const maxNotesLength = 500

type SaveResultRequest struct {
	ResultID string      `json:"result_id"`
	Notes    string      `json:"notes,omitempty"`
	Helpful  Helpfulness `json:"is_helpful,omitempty"`
}

func (r SaveResultRequest) Normalize() (SaveResultRequest, error) {
	out := SaveResultRequest{
		ResultID: strings.TrimSpace(r.ResultID),
		Notes:    strings.TrimSpace(r.Notes),
		Helpful:  Helpfulness(strings.ToLower(strings.TrimSpace(string(r.Helpful)))),
	}
	var problems []error
	if out.ResultID == "" {
		problems = append(problems, errors.New("result_id is required"))
	}
	if utf8.RuneCountInString(out.Notes) > maxNotesLength {
		problems = append(problems, fmt.Errorf("notes must be at most %d characters", maxNotesLength))
	}
	switch out.Helpful {
	case HelpfulUnset, HelpfulYes, HelpfulNo, HelpfulMaybe:
	default:
		problems = append(problems, fmt.Errorf("is_helpful must be yes, no or maybe, got %q", r.Helpful))
	}
	if len(problems) > 0 {
		return SaveResultRequest{}, WrapError(ErrInvalidInput, "validate save request", errors.Join(problems...))
	}
	return out, nil
}

// SavedResult is a user-curated copy of one result of a completed search.
type SavedResult struct {
	ID             string      `json:"id"`
	SearchID       string      `json:"search_id"`
	ResultID       string      `json:"result_id"`
	Source         Source      `json:"source"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Solution       string      `json:"solution,omitempty"`
	URL            string      `json:"url,omitempty"`
	RelevanceScore float64     `json:"relevance_score"`
	Notes          string      `json:"user_notes,omitempty"`
	Helpful        Helpfulness `json:"is_helpful,omitempty"`
	SavedAt        time.Time   `json:"saved_at"`
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageRequest is a 1-indexed page selector. Zero values select the defaults.
type PageRequest struct {
	Page  int
	Limit int
}

func (p PageRequest) Normalize() (PageRequest, error) {
	out := p
	if out.Page == 0 {
		out.Page = 1
	}
	if out.Limit == 0 {
		out.Limit = DefaultPageLimit
	}
	if out.Page < 1 {
		return PageRequest{}, WrapError(ErrInvalidInput, "validate page", fmt.Errorf("page must be >= 1, got %d", p.Page))
	}
	if out.Limit < 1 || out.Limit > MaxPageLimit {
		return PageRequest{}, WrapError(ErrInvalidInput, "validate page", fmt.Errorf("limit must be 1-%d, got %d", MaxPageLimit, p.Limit))
	}
	return out, nil
}

func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type PageInfo struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

func NewPageInfo(req PageRequest, total int) PageInfo {
	totalPages := 0
	if req.Limit > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}
	return PageInfo{
		Total:   total,
		Page:    req.Page,
		Limit:   req.Limit,
		HasNext: req.Page < totalPages,
		HasPrev: req.Page > 1,
	}
}

type HistoryFilter struct {
	ReporterName string
	Status       SearchStatus
}

type HistoryPage struct {
	Searches []SearchRecord `json:"searches"`
	PageInfo
}

type SavedPage struct {
	Saved []SavedResult `json:"saved_solutions"`
	PageInfo
}

type SearchStatistics struct {
	TotalSearches       int                  `json:"total_searches"`
	StatusBreakdown     map[SearchStatus]int `json:"status_breakdown"`
	DepartmentBreakdown map[string]int       `json:"department_breakdown"`
}

// RefineRequest narrows an already completed search without re-running sources.
type RefineRequest struct {
	AdditionalKeywords []string `json:"additional_keywords,omitempty"`
	ExcludeSources     []Source `json:"exclude_sources,omitempty"`
	MinRelevanceScore  *float64 `json:"min_relevance_score,omitempty"`
	DepartmentFilter   string   `json:"department_filter,omitempty"`
}

func (r RefineRequest) Normalize() (RefineRequest, error) {
	out := RefineRequest{
		AdditionalKeywords: NormalizeKeywords(r.AdditionalKeywords),
		DepartmentFilter:   strings.TrimSpace(r.DepartmentFilter),
		MinRelevanceScore:  r.MinRelevanceScore,
	}
	var problems []error
	for _, raw := range r.ExcludeSources {
		source, err := ParseSource(string(raw))
		if err != nil {
			problems = append(problems, fmt.Errorf("exclude_sources: unknown source %q", raw))
			continue
		}
		out.ExcludeSources = append(out.ExcludeSources, source)
	}
	if r.MinRelevanceScore != nil {
		if v := *r.MinRelevanceScore; v < 0 || v > 1 {
			problems = append(problems, fmt.Errorf("min_relevance_score must be within [0,1], got %v", v))
		}
	}
	if len(problems) > 0 {
		return RefineRequest{}, WrapError(ErrInvalidInput, "validate refine request", errors.Join(problems...))
	}
	return out, nil
}

func (r RefineRequest) Excludes(source Source) bool {
	for _, s := range r.ExcludeSources {
		if s == source {
			return true
		}
	}
	return false
}

type RefineResult struct {
	RefinedResults    []ScoredResult `json:"refined_results"`
	UpdatedSummary    string         `json:"updated_summary"`
	RefinementApplied string         `json:"refinement_applied"`
	TotalResults      int            `json:"total_results"`
}
