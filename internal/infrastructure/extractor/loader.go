package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/extractor/workbook"
)

const maxDocumentBytes = 50 << 20

// Loader reads a stored knowledge document and dispatches on its extension.
type Loader struct {
	storage ports.ObjectStorage
	chunker ports.Chunker
}

func NewLoader(storage ports.ObjectStorage, chunker ports.Chunker) *Loader {
	return &Loader{storage: storage, chunker: chunker}
}

func (l *Loader) Load(ctx context.Context, doc *domain.KnowledgeDocument) ([]domain.KnowledgeEntry, error) {
	reader, err := l.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if len(raw) > maxDocumentBytes {
		return nil, fmt.Errorf("source document %s exceeds %d bytes", doc.Filename, maxDocumentBytes)
	}
	return Parse(raw, doc, l.chunker)
}

// Parse converts raw document bytes into entries.
func Parse(raw []byte, doc *domain.KnowledgeDocument, chunker ports.Chunker) ([]domain.KnowledgeEntry, error) {
	switch ext := strings.ToLower(filepath.Ext(doc.Filename)); ext {
	case ".xlsx", ".xlsm":
		return workbook.Parse(bytes.NewReader(raw), doc)
	case ".pdf":
		return pdf.Parse(raw, doc, chunker)
	case ".md", ".markdown", ".txt":
		return plaintext.Parse(raw, doc, chunker)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "load knowledge document", fmt.Errorf("unsupported file type %q", ext))
	}
}
