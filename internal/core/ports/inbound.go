package ports

import (
	"context"
	"io"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// SolutionSearchService is the inbound contract of the multi-source solution search.
type SolutionSearchService interface {
	Submit(ctx context.Context, req domain.SearchRequest) (*domain.SearchRecord, error)
	Get(ctx context.Context, id string) (*domain.SearchRecord, error)
	Refine(ctx context.Context, id string, req domain.RefineRequest) (*domain.RefineResult, error)
	Regenerate(ctx context.Context, id string) (*domain.SearchRecord, error)
	SaveResult(ctx context.Context, id string, req domain.SaveResultRequest) (*domain.SavedResult, error)
	History(ctx context.Context, filter domain.HistoryFilter, page domain.PageRequest) (*domain.HistoryPage, error)
	Saved(ctx context.Context, page domain.PageRequest) (*domain.SavedPage, error)
	Statistics(ctx context.Context) (domain.SearchStatistics, error)
}

// SearchProcessor drives the background part of one search.
type SearchProcessor interface {
	Process(ctx context.Context, searchID string) error
}

// KnowledgeIngestor is the inbound contract for knowledge base uploads.
type KnowledgeIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.KnowledgeDocument, error)
	GetDocument(ctx context.Context, id string) (*domain.KnowledgeDocument, error)
	Stats(ctx context.Context) (domain.KnowledgeStats, error)
}

// KnowledgeProcessor is the inbound contract for asynchronous knowledge indexing.
type KnowledgeProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
