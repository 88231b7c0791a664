package domain

import "time"

type KnowledgeDocumentStatus string

const (
	KnowledgeStatusUploaded   KnowledgeDocumentStatus = "uploaded"
	KnowledgeStatusProcessing KnowledgeDocumentStatus = "processing"
	KnowledgeStatusReady      KnowledgeDocumentStatus = "ready"
	KnowledgeStatusFailed     KnowledgeDocumentStatus = "failed"
)

// KnowledgeDocument is an uploaded knowledge base file (workbook, markdown, pdf).
type KnowledgeDocument struct {
	ID          string                  `json:"id"`
	Filename    string                  `json:"filename"`
	MimeType    string                  `json:"mime_type"`
	StoragePath string                  `json:"storage_path"`
	Status      KnowledgeDocumentStatus `json:"status"`
	EntryCount  int                     `json:"entry_count"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// KnowledgeEntry is one searchable case extracted from a knowledge document.
type KnowledgeEntry struct {
	ID            string `json:"id"`
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	Row           int    `json:"row,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Solution      string `json:"solution,omitempty"`
	Department    string `json:"department,omitempty"`
	Commodity     string `json:"commodity,omitempty"`
	PartNumber    string `json:"part_number,omitempty"`
	Supplier      string `json:"supplier,omitempty"`
	ErrorLocation string `json:"error_location,omitempty"`
	ErrorType     string `json:"error_type,omitempty"`
	Text          string `json:"text"`
}

type KnowledgeHit struct {
	Entry KnowledgeEntry `json:"entry"`
	Score float64        `json:"score"`
}

type KnowledgeFileStats struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"file_name"`
	Entries    int       `json:"documents"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"last_modified"`
}

type KnowledgeStats struct {
	TotalFiles      int                  `json:"total_files"`
	TotalEntries    int                  `json:"total_documents"`
	Files           []KnowledgeFileStats `json:"files"`
	VectorAvailable bool                 `json:"vector_available"`
}
