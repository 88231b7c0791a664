package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
)

type KnowledgeDocumentRepository struct {
	db *sql.DB
}

func NewKnowledgeDocumentRepository(db *sql.DB) *KnowledgeDocumentRepository {
	return &KnowledgeDocumentRepository{db: db}
}

const knowledgeColumns = `id, filename, mime_type, storage_path, status, entry_count, COALESCE(error_message, ''), created_at, updated_at`

func (r *KnowledgeDocumentRepository) Create(ctx context.Context, doc *domain.KnowledgeDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO knowledge_documents (
	id, filename, mime_type, storage_path, status, entry_count, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, string(doc.Status), doc.EntryCount, doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge document: %w", err)
	}
	return nil
}

func (r *KnowledgeDocumentRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_documents WHERE id = $1`, id)
	doc, err := scanKnowledgeDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrKnowledgeDocumentNotFound, "get knowledge document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *KnowledgeDocumentRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.KnowledgeDocumentStatus,
	entryCount int,
	errMessage string,
) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE knowledge_documents
SET status = $2, entry_count = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), entryCount, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update knowledge document status: %w", err)
	}
	return expectAffected(res, domain.ErrKnowledgeDocumentNotFound, "update knowledge document status", id)
}

func (r *KnowledgeDocumentRepository) List(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_documents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.KnowledgeDocument, 0)
	for rows.Next() {
		doc, err := scanKnowledgeDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge documents: %w", err)
	}
	return out, nil
}

func scanKnowledgeDocument(row rowScanner) (*domain.KnowledgeDocument, error) {
	var (
		doc    domain.KnowledgeDocument
		status string
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &status, &doc.EntryCount, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan knowledge document: %w", err)
	}
	doc.Status = domain.KnowledgeDocumentStatus(status)
	return &doc, nil
}
