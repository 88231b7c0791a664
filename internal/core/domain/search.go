package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Source identifies one retrieval backend of the solution search.
type Source string

const (
	SourceDatabase Source = "database"
	SourceRAG      Source = "rag"
	SourceWeb      Source = "web"
)

// AllSources is the canonical processing and presentation order.
var AllSources = []Source{SourceDatabase, SourceRAG, SourceWeb}

func ParseSource(raw string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "database", "db":
		return SourceDatabase, nil
	case "rag", "document-kb", "kb", "knowledge":
		return SourceRAG, nil
	case "web":
		return SourceWeb, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse source", fmt.Errorf("unknown source %q", raw))
	}
}

func (s Source) Valid() bool {
	switch s {
	case SourceDatabase, SourceRAG, SourceWeb:
		return true
	default:
		return false
	}
}

// Weight is the share of a source in the aggregate confidence.
func (s Source) Weight() float64 {
	switch s {
	case SourceDatabase:
		return 0.5
	case SourceRAG:
		return 0.3
	case SourceWeb:
		return 0.2
	default:
		return 0
	}
}

// FetchLimit is the number of candidates requested from the adapter before filtering.
func (s Source) FetchLimit() int {
	switch s {
	case SourceDatabase:
		return 10
	case SourceRAG:
		return 8
	case SourceWeb:
		return 5
	default:
		return 0
	}
}

// FinalCap is the number of results kept per source after ranking.
func (s Source) FinalCap() int {
	switch s {
	case SourceDatabase:
		return 8
	case SourceRAG:
		return 6
	case SourceWeb:
		return 4
	default:
		return 0
	}
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Urgent reports whether the severity asks for immediate containment.
func (s Severity) Urgent() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ScoredResult is one ranked hit produced by a source adapter.
type ScoredResult struct {
	ID             string         `json:"id"`
	Source         Source         `json:"source"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	RelevanceScore float64        `json:"relevance_score"`
	Solution       string         `json:"solution,omitempty"`
	URL            string         `json:"url,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Normalize clamps the score and assigns a stable id when missing.
func (r *ScoredResult) Normalize() {
	r.RelevanceScore = ClampScore(r.RelevanceScore)
	if r.ID == "" {
		r.ID = StableResultID(r.Source, r.Title, r.URL, r.Description)
	}
}

// MetadataString returns a metadata value rendered as a string, or "" when absent.
func (r ScoredResult) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func StableResultID(source Source, title, url, description string) string {
	sum := sha256.Sum256([]byte(string(source) + "\x1f" + title + "\x1f" + url + "\x1f" + description))
	return string(source) + ":" + hex.EncodeToString(sum[:8])
}

func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

const (
	DefaultMinRelevance = 0.3
	MaxKeywords         = 20
)

// SearchRequest is the caller-supplied description of a problem to solve.
type SearchRequest struct {
	ProblemDescription string   `json:"problem_description"`
	Department         string   `json:"department"`
	Severity           Severity `json:"severity"`
	ReporterName       string   `json:"reporter_name"`
	Keywords           []string `json:"keywords,omitempty"`
	Sources            []Source `json:"search_sources,omitempty"`
	MinRelevanceScore  *float64 `json:"min_relevance_score,omitempty"`
}

// Normalize validates the request and returns a copy with defaults applied.
func (r SearchRequest) Normalize() (SearchRequest, error) {
	out := SearchRequest{
		ProblemDescription: strings.TrimSpace(r.ProblemDescription),
		Department:         strings.TrimSpace(r.Department),
		Severity:           Severity(strings.ToLower(strings.TrimSpace(string(r.Severity)))),
		ReporterName:       strings.TrimSpace(r.ReporterName),
	}

	var problems []error
	if n := utf8.RuneCountInString(out.ProblemDescription); n < 10 || n > 1000 {
		problems = append(problems, fmt.Errorf("problem_description must be 10-1000 characters, got %d", n))
	}
	if n := utf8.RuneCountInString(out.Department); n < 1 || n > 100 {
		problems = append(problems, fmt.Errorf("department must be 1-100 characters, got %d", n))
	}
	if !out.Severity.Valid() {
		problems = append(problems, fmt.Errorf("severity must be one of low, medium, high, critical, got %q", r.Severity))
	}
	if n := utf8.RuneCountInString(out.ReporterName); n < 2 || n > 100 {
		problems = append(problems, fmt.Errorf("reporter_name must be 2-100 characters, got %d", n))
	}

	out.Keywords = NormalizeKeywords(r.Keywords)

	sources, err := normalizeSources(r.Sources)
	if err != nil {
		problems = append(problems, err)
	}
	out.Sources = sources

	threshold := DefaultMinRelevance
	if r.MinRelevanceScore != nil {
		threshold = *r.MinRelevanceScore
		if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
			problems = append(problems, fmt.Errorf("min_relevance_score must be within [0,1], got %v", threshold))
		}
	}
	out.MinRelevanceScore = &threshold

	if len(problems) > 0 {
		return SearchRequest{}, WrapError(ErrInvalidInput, "validate search request", errors.Join(problems...))
	}
	return out, nil
}

// MinRelevance returns the configured threshold or the default.
func (r SearchRequest) MinRelevance() float64 {
	if r.MinRelevanceScore == nil {
		return DefaultMinRelevance
	}
	return *r.MinRelevanceScore
}

// Enabled reports whether the request asks for the given source.
func (r SearchRequest) Enabled(source Source) bool {
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}

func (r SearchRequest) Query() ProblemQuery {
	return ProblemQuery{
		Description: r.ProblemDescription,
		Department:  r.Department,
		Severity:    r.Severity,
		Keywords:    append([]string(nil), r.Keywords...),
	}
}

// NormalizeKeywords trims, deduplicates case-insensitively and caps the keyword list.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

func normalizeSources(in []Source) ([]Source, error) {
	if in == nil {
		return append([]Source(nil), AllSources...), nil
	}
	if len(in) == 0 {
		return nil, errors.New("search_sources must contain at least one source")
	}
	requested := make(map[Source]struct{}, len(in))
	for _, raw := range in {
		source, err := ParseSource(string(raw))
		if err != nil {
			return nil, fmt.Errorf("search_sources: unknown source %q", raw)
		}
		requested[source] = struct{}{}
	}
	out := make([]Source, 0, len(requested))
	for _, source := range AllSources {
		if _, ok := requested[source]; ok {
			out = append(out, source)
		}
	}
	return out, nil
}

// ProblemQuery is the adapter-facing view of a search request.
type ProblemQuery struct {
	Description string
	Department  string
	Severity    Severity
	Keywords    []string
}

// Text joins the description and the keywords into one searchable string.
func (q ProblemQuery) Text() string {
	if len(q.Keywords) == 0 {
		return q.Description
	}
	return q.Description + " " + strings.Join(q.Keywords, " ")
}

// SourceOutcome captures what one source unit of work produced.
type SourceOutcome struct {
	Source   Source         `json:"source"`
	Results  []ScoredResult `json:"results"`
	Query    string         `json:"query,omitempty"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
}

func (o SourceOutcome) AverageRelevance() float64 {
	return averageRelevance(o.Results)
}

func averageRelevance(results []ScoredResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += ClampScore(r.RelevanceScore)
	}
	return sum / float64(len(results))
}

// SearchLimits bounds the time spent on each collaborator of one search.
type SearchLimits struct {
	SourceTimeout  time.Duration
	WebTimeout     time.Duration
	SummaryTimeout time.Duration
}
