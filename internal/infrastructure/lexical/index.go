package lexical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

const (
	contentField = "content"
	payloadField = "payload"
)

var errIndexClosed = errors.New("text index is closed")

// Index is the bleve backed lexical index over knowledge entries. An empty path keeps
// the index in memory.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

type indexedEntry struct {
	Content string `json:"content"`
	Payload string `json:"payload"`
}

func Open(path string) (*Index, error) {
	indexMapping := newIndexMapping()

	var (
		idx bleve.Index
		err error
	)
	if strings.TrimSpace(path) == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create text index dir: %w", err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open text index: %w", err)
	}
	return &Index{index: idx}, nil
}

func newIndexMapping() *mapping.IndexMappingImpl {
	content := bleve.NewTextFieldMapping()
	content.Store = false

	payload := bleve.NewTextFieldMapping()
	payload.Index = false
	payload.Store = true
	payload.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(contentField, content)
	doc.AddFieldMappingsAt(payloadField, payload)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	return indexMapping
}

func (i *Index) IndexEntries(ctx context.Context, entries []domain.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errIndexClosed
	}

	batch := i.index.NewBatch()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", entry.ID, err)
		}
		doc := indexedEntry{
			Content: entryContent(entry),
			Payload: string(payload),
		}
		if err := batch.Index(entry.ID, doc); err != nil {
			return fmt.Errorf("index entry %s: %w", entry.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("execute text index batch: %w", err)
	}
	return nil
}

// Search runs a match query over the entry content. Scores are scaled so the best hit is 1.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []domain.KnowledgeHit{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, errIndexClosed
	}

	match := bleve.NewMatchQuery(query)
	match.SetField(contentField)
	req := bleve.NewSearchRequest(match)
	req.Size = limit
	req.Fields = []string{payloadField}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text index search: %w", err)
	}

	maxScore := res.MaxScore
	out := make([]domain.KnowledgeHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, _ := hit.Fields[payloadField].(string)
		var entry domain.KnowledgeEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		score := 0.0
		if maxScore > 0 {
			score = hit.Score / maxScore
		}
		out = append(out, domain.KnowledgeHit{Entry: entry, Score: score})
	}
	return out, nil
}

func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0
	}
	n, err := i.index.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.index.Close()
}

func entryContent(e domain.KnowledgeEntry) string {
	parts := []string{e.Title, e.Description, e.Solution, e.Commodity, e.ErrorLocation, e.ErrorType, e.Supplier, e.PartNumber}
	if e.Text != "" {
		parts = append(parts, e.Text)
	}
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p)
	}
	return b.String()
}
