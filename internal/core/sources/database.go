package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/core/relevance"
)

const semanticCandidateLimit = 200

// DatabaseSource scores recorded incidents from the lessons table.
type DatabaseSource struct {
	lessons  ports.LessonStore
	embedder ports.Embedder
	now      func() time.Time
}

// NewDatabaseSource builds the database adapter. With a nil embedder only text search runs.
func NewDatabaseSource(lessons ports.LessonStore, embedder ports.Embedder) *DatabaseSource {
	return &DatabaseSource{lessons: lessons, embedder: embedder, now: time.Now}
}

func (s *DatabaseSource) Source() domain.Source { return domain.SourceDatabase }

func (s *DatabaseSource) Search(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error) {
	if limit <= 0 {
		limit = domain.SourceDatabase.FetchLimit()
	}

	if s.embedder != nil {
		results, err := s.semanticSearch(ctx, query, limit)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err != nil {
			slog.Warn("database_semantic_search_failed", "error", err)
		}
	}

	results, err := s.textSearch(ctx, query, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("database_text_search_failed", "error", err)
		return []domain.ScoredResult{}, nil
	}
	return results, nil
}

func (s *DatabaseSource) textSearch(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error) {
	terms := relevance.ExtractTerms(query.Text())
	if len(terms) == 0 {
		return []domain.ScoredResult{}, nil
	}

	lessons, err := s.lessons.SearchLessons(ctx, domain.LessonQuery{Terms: terms, Limit: limit * 2})
	if err != nil {
		return nil, fmt.Errorf("search lessons: %w", err)
	}

	now := s.now()
	out := make([]domain.ScoredResult, 0, len(lessons))
	for _, lesson := range lessons {
		similarity := relevance.TermMatchRatio(terms, lessonText(lesson))
		score := 0.6 * similarity
		if lesson.Severity == query.Severity {
			score += 0.2
		}
		score += 0.2 * relevance.YearDecay(lesson.CreatedAt, now)
		score += 0.2 * relevance.LengthBoost(lesson.ProvidedSolution, 500, 1)
		out = append(out, lessonResult(lesson, domain.ClampScore(score), "text"))
	}
	return topResults(out, limit), nil
}

func (s *DatabaseSource) semanticSearch(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error) {
	candidates, err := s.lessons.RecentLessons(ctx, semanticCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("recent lessons: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query.Text())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	texts := make([]string, len(candidates))
	for i, lesson := range candidates {
		texts[i] = lessonText(lesson)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed lessons: %w", err)
	}
	if len(vectors) != len(candidates) {
		return nil, fmt.Errorf("embed lessons: vectors/lessons mismatch: %d/%d", len(vectors), len(candidates))
	}

	now := s.now()
	out := make([]domain.ScoredResult, 0, len(candidates))
	for i, lesson := range candidates {
		score := relevance.Cosine(queryVector, vectors[i])
		if lesson.Severity == query.Severity {
			score += 0.1
		}
		switch age := relevance.AgeDays(lesson.CreatedAt, now); {
		case age < 30:
			score += 0.05
		case age < 90:
			score += 0.02
		}
		if len([]rune(lesson.ProvidedSolution)) > 200 {
			score += 0.05
		}
		out = append(out, lessonResult(lesson, domain.ClampScore(score), "semantic"))
	}
	return topResults(out, limit), nil
}

func lessonText(l domain.Lesson) string {
	return strings.Join([]string{
		l.ProblemDescription,
		l.ProvidedSolution,
		l.ErrorLocation,
		l.MissedDetection,
		l.Commodity,
	}, " ")
}

func lessonResult(l domain.Lesson, score float64, mode string) domain.ScoredResult {
	title := l.Commodity
	if l.ErrorLocation != "" {
		if title != "" {
			title += " - "
		}
		title += l.ErrorLocation
	}
	if title == "" {
		title = fmt.Sprintf("Lesson #%d", l.ID)
	}

	return domain.ScoredResult{
		ID:             fmt.Sprintf("database:%d", l.ID),
		Source:         domain.SourceDatabase,
		Title:          title,
		Description:    l.ProblemDescription,
		RelevanceScore: score,
		Solution:       l.ProvidedSolution,
		Metadata: map[string]any{
			"lesson_id":   l.ID,
			"department":  l.Department,
			"severity":    string(l.Severity),
			"commodity":   l.Commodity,
			"part_number": l.PartNumber,
			"supplier":    l.Supplier,
			"created_at":  l.CreatedAt.UTC().Format(time.RFC3339),
			"search_mode": mode,
		},
	}
}

func topResults(results []domain.ScoredResult, limit int) []domain.ScoredResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
