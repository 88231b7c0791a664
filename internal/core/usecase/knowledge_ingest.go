package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

type IngestKnowledgeUseCase struct {
	repo       ports.KnowledgeDocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.KnowledgeDispatcher
	vectors    bool
	now        func() time.Time
}

// NewIngestKnowledgeUseCase builds the upload side. vectorsEnabled is reported in stats.
func NewIngestKnowledgeUseCase(
	repo ports.KnowledgeDocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.KnowledgeDispatcher,
	vectorsEnabled bool,
) *IngestKnowledgeUseCase {
	return &IngestKnowledgeUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
		vectors:    vectorsEnabled,
		now:        time.Now,
	}
}

func (uc *IngestKnowledgeUseCase) SetDispatcher(dispatcher ports.KnowledgeDispatcher) {
	uc.dispatcher = dispatcher
}

func (uc *IngestKnowledgeUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.KnowledgeDocument, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload knowledge document", errors.New("filename is required"))
	}
	if !SupportedKnowledgeFile(filename) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload knowledge document", fmt.Errorf("unsupported file type %q", filepath.Ext(filename)))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := uc.now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.KnowledgeDocument{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.KnowledgeStatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create knowledge document metadata: %w", err)
	}

	if uc.dispatcher == nil {
		return nil, errors.New("publish ingestion event: knowledge dispatcher is not configured")
	}
	if err := uc.dispatcher.DispatchKnowledgeDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

func (uc *IngestKnowledgeUseCase) GetDocument(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	doc, err := uc.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("get knowledge document: %w", err)
	}
	return doc, nil
}

func (uc *IngestKnowledgeUseCase) Stats(ctx context.Context) (domain.KnowledgeStats, error) {
	docs, err := uc.repo.List(ctx)
	if err != nil {
		return domain.KnowledgeStats{}, fmt.Errorf("list knowledge documents: %w", err)
	}
	stats := domain.KnowledgeStats{
		TotalFiles:      len(docs),
		Files:           make([]domain.KnowledgeFileStats, 0, len(docs)),
		VectorAvailable: uc.vectors,
	}
	for _, doc := range docs {
		stats.TotalEntries += doc.EntryCount
		stats.Files = append(stats.Files, domain.KnowledgeFileStats{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Entries:    doc.EntryCount,
			Status:     string(doc.Status),
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return stats, nil
}

// SupportedKnowledgeFile reports whether a loader exists for the file extension.
func SupportedKnowledgeFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".md", ".markdown", ".txt", ".pdf":
		return true
	default:
		return false
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}

type ProcessKnowledgeUseCase struct {
	repo     ports.KnowledgeDocumentRepository
	loader   ports.KnowledgeLoader
	embedder ports.Embedder
	vectorDB ports.KnowledgeVectorStore
	text     ports.KnowledgeTextIndex
}

// NewProcessKnowledgeUseCase builds the indexing side. embedder and vectorDB may be nil,
// in which case only the lexical index is populated.
func NewProcessKnowledgeUseCase(
	repo ports.KnowledgeDocumentRepository,
	loader ports.KnowledgeLoader,
	embedder ports.Embedder,
	vectorDB ports.KnowledgeVectorStore,
	text ports.KnowledgeTextIndex,
) *ProcessKnowledgeUseCase {
	return &ProcessKnowledgeUseCase{
		repo:     repo,
		loader:   loader,
		embedder: embedder,
		vectorDB: vectorDB,
		text:     text,
	}
}

func (uc *ProcessKnowledgeUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.KnowledgeStatusProcessing, 0, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.KnowledgeStatusReady, count, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessKnowledgeUseCase) processPipeline(ctx context.Context, documentID string) (int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("fetch knowledge document by id: %w", err)
	}

	entries, err := uc.loader.Load(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("load knowledge entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "load knowledge entries", errors.New("document contains no entries"))
	}

	if uc.embedder != nil && uc.vectorDB != nil {
		if err := uc.indexVectors(ctx, entries); err != nil {
			return 0, err
		}
	}
	if uc.text != nil {
		if err := uc.text.IndexEntries(ctx, entries); err != nil {
			return 0, fmt.Errorf("index knowledge entries in text index: %w", err)
		}
	}
	return len(entries), nil
}

func (uc *ProcessKnowledgeUseCase) indexVectors(ctx context.Context, entries []domain.KnowledgeEntry) error {
	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed knowledge entries: %w", err)
	}
	if len(vectors) != len(entries) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed knowledge entries",
			fmt.Errorf("vectors/entries mismatch: %d/%d", len(vectors), len(entries)),
		)
	}
	if err := uc.vectorDB.IndexEntries(ctx, entries, vectors); err != nil {
		return fmt.Errorf("index knowledge entries in vector db: %w", err)
	}
	return nil
}

func (uc *ProcessKnowledgeUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return uc.repo.UpdateStatus(failCtx, documentID, domain.KnowledgeStatusFailed, 0, processErr.Error())
}
