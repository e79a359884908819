package domain

import "time"

// DocumentStatus represents the ingestion status of a document.
// Values include DocumentStatusPending, DocumentStatusProcessing,
// DocumentStatusCompleted, and DocumentStatusFailed.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is an uploaded file in the knowledge base.
// The original bytes live in object storage under StoragePath; ContentHash is the
// hex SHA-256 of those bytes.
type Document struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id"`
	TenantID     string         `gorm:"type:text;index:idx_documents_tenant" json:"tenant_id,omitempty"`
	Filename     string         `gorm:"type:text;not null" json:"filename"`
	ContentType  string         `gorm:"type:text;not null" json:"content_type"`
	StoragePath  string         `gorm:"type:text;not null" json:"storage_path"`
	ContentHash  string         `gorm:"type:text;not null;index:idx_documents_hash" json:"content_hash"`
	Status       DocumentStatus `gorm:"type:text;not null;index:idx_documents_status" json:"status"`
	Size         int64          `json:"size"`
	ChunkCount   int            `json:"chunk_count"`
	TaskID       string         `gorm:"type:text;index:idx_documents_task" json:"task_id,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Chunks []Chunk `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string {
	return "documents"
}
