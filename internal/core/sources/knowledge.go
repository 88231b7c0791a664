package sources

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/core/relevance"
)

// KnowledgeSource searches the uploaded knowledge base. Semantic hits from the vector
// store and lexical hits from the text index are fused, then rescored.
type KnowledgeSource struct {
	embedder ports.Embedder
	vectors  ports.KnowledgeVectorStore
	text     ports.KnowledgeTextIndex
	rrfK     int
}

// NewKnowledgeSource builds the knowledge adapter. Any of the collaborators may be nil.
func NewKnowledgeSource(embedder ports.Embedder, vectors ports.KnowledgeVectorStore, text ports.KnowledgeTextIndex) *KnowledgeSource {
	return &KnowledgeSource{embedder: embedder, vectors: vectors, text: text, rrfK: 60}
}

func (s *KnowledgeSource) Source() domain.Source { return domain.SourceRAG }

func (s *KnowledgeSource) Search(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error) {
	if limit <= 0 {
		limit = domain.SourceRAG.FetchLimit()
	}
	text := query.Text()
	candidateLimit := limit * 2

	semantic, err := s.semanticHits(ctx, text, candidateLimit)
	if err != nil {
		slog.Warn("knowledge_semantic_search_failed", "error", err)
	}
	lexical, err := s.lexicalHits(ctx, text, candidateLimit)
	if err != nil {
		slog.Warn("knowledge_text_search_failed", "error", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	fused := fuseHitsRRF(semantic, lexical, s.rrfK)
	terms := relevance.ExtractTerms(text)

	out := make([]domain.ScoredResult, 0, len(fused))
	for _, candidate := range fused {
		score := math.Max(candidate.semantic, TextSimilarity(candidate.entry.Text, text, terms))
		if score <= 0 {
			continue
		}
		out = append(out, knowledgeResult(candidate.entry, score, candidate.semantic > 0))
	}
	return topResults(out, limit), nil
}

func (s *KnowledgeSource) semanticHits(ctx context.Context, text string, limit int) ([]domain.KnowledgeHit, error) {
	if s.embedder == nil || s.vectors == nil {
		return nil, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.vectors.SearchEntries(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	return hits, nil
}

func (s *KnowledgeSource) lexicalHits(ctx context.Context, text string, limit int) ([]domain.KnowledgeHit, error) {
	if s.text == nil || s.text.Count() == 0 {
		return nil, nil
	}
	hits, err := s.text.Search(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("search text index: %w", err)
	}
	return hits, nil
}

// TextSimilarity scores an entry against the query text.
func TextSimilarity(content, query string, terms []string) float64 {
	content = strings.ToLower(content)
	query = strings.ToLower(strings.TrimSpace(query))
	if content == "" {
		return 0
	}

	var score float64
	if query != "" && strings.Contains(content, query) {
		score += 0.8
	}
	score += 0.4 * relevance.TermMatchRatio(terms, content)
	score += 0.2 * relevance.PhraseRatio(terms, content)
	score += relevance.LengthBoost(content, 1000, 0.1)
	return domain.ClampScore(score)
}

func knowledgeResult(entry domain.KnowledgeEntry, score float64, semantic bool) domain.ScoredResult {
	title := entry.Title
	if title == "" {
		title = "Knowledge Base Entry"
	}
	description := entry.Description
	if description == "" {
		description = truncateRunes(entry.Text, 300)
	}
	mode := "text"
	if semantic {
		mode = "semantic"
	}

	metadata := map[string]any{
		"document_id": entry.DocumentID,
		"file_name":   entry.Filename,
		"search_mode": mode,
	}
	if entry.Department != "" {
		metadata["department"] = entry.Department
	}
	if entry.Row > 0 {
		metadata["row"] = entry.Row
	}
	for key, value := range map[string]string{
		"commodity":      entry.Commodity,
		"part_number":    entry.PartNumber,
		"supplier":       entry.Supplier,
		"error_location": entry.ErrorLocation,
		"error_type":     entry.ErrorType,
	} {
		if value != "" {
			metadata[key] = value
		}
	}

	id := ""
	if entry.ID != "" {
		id = "rag:" + entry.ID
	}
	return domain.ScoredResult{
		ID:             id,
		Source:         domain.SourceRAG,
		Title:          title,
		Description:    description,
		RelevanceScore: domain.ClampScore(score),
		Solution:       entry.Solution,
		Metadata:       metadata,
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
