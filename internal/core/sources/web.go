package sources

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

const maxWebQueryLength = 200

var (
	webQueryTermPattern = regexp.MustCompile(`[a-zA-Z]{3,}`)

	industryTerms = []string{
		"automotive", "manufacturing", "quality", "control", "production",
		"process", "defect", "issue", "problem", "solution",
		"fix", "improvement", "automobile", "vehicle", "supplier",
	}

	solutionIndicators = []string{
		"solution:", "fix:", "resolution:", "action:", "recommendation:",
		"best practice:", "should:", "must:", "need to:", "implement:",
	}
)

// WebSource asks an external provider for industry practices and scores the hits.
type WebSource struct {
	provider ports.WebSearchProvider
	limiter  *rate.Limiter
}

// NewWebSource builds the web adapter. interval is the minimum spacing between provider
// calls; zero disables limiting.
func NewWebSource(provider ports.WebSearchProvider, interval time.Duration) *WebSource {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &WebSource{provider: provider, limiter: limiter}
}

func (s *WebSource) Source() domain.Source { return domain.SourceWeb }

func (s *WebSource) Search(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error) {
	if limit <= 0 {
		limit = domain.SourceWeb.FetchLimit()
	}
	if s.provider == nil {
		return []domain.ScoredResult{}, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait web rate limit: %w", err)
	}

	webQuery := BuildWebQuery(query)
	hits, err := s.provider.SearchWeb(ctx, webQuery, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("web_search_failed", "error", err)
		return []domain.ScoredResult{}, nil
	}

	out := make([]domain.ScoredResult, 0, len(hits))
	for _, hit := range hits {
		title := strings.TrimSpace(hit.Title)
		if title == "" || strings.TrimSpace(hit.URL) == "" {
			continue
		}
		out = append(out, domain.ScoredResult{
			Source:         domain.SourceWeb,
			Title:          title,
			Description:    strings.TrimSpace(hit.Snippet),
			RelevanceScore: WebRelevance(webQuery, title+" "+hit.Snippet),
			Solution:       ExtractSolution(hit.Snippet),
			URL:            hit.URL,
			Metadata: map[string]any{
				"source_domain": SourceDomain(hit.URL),
				"search_query":  webQuery,
			},
		})
	}
	return topResults(out, limit), nil
}

// BuildWebQuery assembles the provider query from the problem description.
func BuildWebQuery(q domain.ProblemQuery) string {
	parts := make([]string, 0, 6)
	if dept := strings.TrimSpace(q.Department); dept != "" {
		parts = append(parts, dept)
	}
	parts = append(parts, truncateRunes(strings.TrimSpace(q.Description), 100))
	if q.Severity.Urgent() {
		parts = append(parts, "urgent resolution")
	}
	keywords := q.Keywords
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	parts = append(parts, keywords...)
	return truncateRunes(strings.Join(parts, " "), maxWebQueryLength)
}

// WebRelevance scores a hit by query term coverage, industry vocabulary and length.
func WebRelevance(query, text string) float64 {
	text = strings.ToLower(text)
	var score float64

	terms := webQueryTermPattern.FindAllString(strings.ToLower(query), -1)
	if len(terms) > 0 {
		matches := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matches++
			}
		}
		score += 0.6 * float64(matches) / float64(len(terms))
	}

	industryMatches := 0
	for _, term := range industryTerms {
		if strings.Contains(text, term) {
			industryMatches++
		}
	}
	score += min(float64(industryMatches)/float64(len(industryTerms)), 0.4)
	score += min(float64(len(text))/1000, 0.1)
	return domain.ClampScore(score)
}

// ExtractSolution returns the first sentence after a solution indicator. Without an
// indicator, a long enough description is used as is.
func ExtractSolution(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	lower := strings.ToLower(description)
	source := description
	if len(lower) != len(description) {
		source = lower
	}
	for _, indicator := range solutionIndicators {
		idx := strings.Index(lower, indicator)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(source[idx+len(indicator):])
		sentence, _, _ := strings.Cut(rest, ".")
		return truncateRunes(strings.TrimSpace(sentence), 200)
	}
	if len([]rune(description)) > 50 {
		return truncateRunes(description, 200)
	}
	return ""
}

// SourceDomain returns the host part of a URL.
func SourceDomain(rawURL string) string {
	_, rest, found := strings.Cut(rawURL, "://")
	if !found {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
