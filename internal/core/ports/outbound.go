package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

// SourceAdapter wraps one retrieval backend behind the uniform search contract.
type SourceAdapter interface {
	Source() domain.Source
	Search(ctx context.Context, query domain.ProblemQuery, limit int) ([]domain.ScoredResult, error)
}

// SearchRecordStore persists the search lifecycle, the per-source cache and saved results.
type SearchRecordStore interface {
	Create(ctx context.Context, record *domain.SearchRecord) error
	GetByID(ctx context.Context, id string) (*domain.SearchRecord, error)
	// MarkSourceCompleted merges one source outcome (partial results, error note,
	// progress flag) into the record. Updates for the same record are serialized
	// and applying the same source twice leaves the progress unchanged.
	MarkSourceCompleted(ctx context.Context, id string, outcome domain.SourceOutcome) (domain.SearchProgress, error)
	CacheSourceResults(ctx context.Context, id string, outcome domain.SourceOutcome) error
	Finalize(ctx context.Context, id string, fin domain.SearchFinalization) error
	MarkFailed(ctx context.Context, id string, reason string) error
	Restart(ctx context.Context, id string, progress domain.SearchProgress) error
	ListHistory(ctx context.Context, filter domain.HistoryFilter, page domain.PageRequest) ([]domain.SearchRecord, int, error)
	SaveResult(ctx context.Context, saved *domain.SavedResult) error
	ListSaved(ctx context.Context, page domain.PageRequest) ([]domain.SavedResult, int, error)
	Statistics(ctx context.Context) (domain.SearchStatistics, error)
}

// SearchDispatcher hands a persisted search over to background processing.
type SearchDispatcher interface {
	DispatchSearch(ctx context.Context, searchID string) error
}

// KnowledgeDispatcher hands an uploaded knowledge document over to indexing.
type KnowledgeDispatcher interface {
	DispatchKnowledgeDocument(ctx context.Context, documentID string) error
}

// MessageQueue publishes/consumes search and knowledge events.
type MessageQueue interface {
	SearchDispatcher
	KnowledgeDispatcher
	SubscribeSearchRequested(ctx context.Context, handler func(context.Context, string) error) error
	SubscribeKnowledgeIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// SummaryWriter produces optional free-text insights from a prompt.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, prompt string) (string, error)
}

// SearchObserver receives lifecycle measurements of searches.
type SearchObserver interface {
	SearchSubmitted()
	SourceFinished(source domain.Source, outcome string, duration time.Duration)
	SearchFinished(status domain.SearchStatus, confidence float64)
}

// LessonStore reads incident records for the database source.
type LessonStore interface {
	SearchLessons(ctx context.Context, query domain.LessonQuery) ([]domain.Lesson, error)
	RecentLessons(ctx context.Context, limit int) ([]domain.Lesson, error)
}

// Embedder builds vectors for entries and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeVectorStore indexes knowledge entries and performs semantic search.
type KnowledgeVectorStore interface {
	IndexEntries(ctx context.Context, entries []domain.KnowledgeEntry, vectors [][]float32) error
	SearchEntries(ctx context.Context, queryVector []float32, limit int) ([]domain.KnowledgeHit, error)
}

// KnowledgeTextIndex is the lexical fallback over knowledge entries.
type KnowledgeTextIndex interface {
	IndexEntries(ctx context.Context, entries []domain.KnowledgeEntry) error
	Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error)
	Count() int
}

// KnowledgeDocumentRepository persists knowledge document metadata.
type KnowledgeDocumentRepository interface {
	Create(ctx context.Context, doc *domain.KnowledgeDocument) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.KnowledgeDocumentStatus, entryCount int, errMessage string) error
	List(ctx context.Context) ([]domain.KnowledgeDocument, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// KnowledgeLoader turns a stored document into searchable entries.
type KnowledgeLoader interface {
	Load(ctx context.Context, doc *domain.KnowledgeDocument) ([]domain.KnowledgeEntry, error)
}

// Chunker splits long text into indexable pieces.
type Chunker interface {
	Split(text string) []string
}

// WebSearchProvider returns raw web hits for a query.
type WebSearchProvider interface {
	SearchWeb(ctx context.Context, query string, limit int) ([]domain.WebHit, error)
}
