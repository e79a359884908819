package domain

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// TaskType identifies the kind of background work a task tracks.
type TaskType string

const (
	TaskTypeDocumentProcessing  TaskType = "document_processing"
	TaskTypeDataImport          TaskType = "data_import"
	TaskTypeEmbeddingGeneration TaskType = "embedding_generation"
	TaskTypeProductUpdate       TaskType = "product_update"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeDocumentProcessing, TaskTypeDataImport, TaskTypeEmbeddingGeneration, TaskTypeProductUpdate:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task.
// Values include TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
// TaskStatusFailed and TaskStatusCancelled.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskMetadataVersion is the schema version written by this build.
const TaskMetadataVersion = 1

// TaskMetadata is the typed, versioned metadata attached to a task.
// Exactly one payload, the one matching the task type, is set.
type TaskMetadata struct {
	Version             int                          `json:"version"`
	DocumentProcessing  *DocumentProcessingMetadata  `json:"document_processing,omitempty"`
	DataImport          *DataImportMetadata          `json:"data_import,omitempty"`
	EmbeddingGeneration *EmbeddingGenerationMetadata `json:"embedding_generation,omitempty"`
	ProductUpdate       *ProductUpdateMetadata       `json:"product_update,omitempty"`
}

type DocumentProcessingMetadata struct {
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type DataImportMetadata struct {
	Source string `json:"source"`
	Limit  int    `json:"limit,omitempty"`
}

type EmbeddingGenerationMetadata struct {
	Model       string   `json:"model"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type ProductUpdateMetadata struct {
	SKUs []string `json:"skus,omitempty"`
}

// Validate checks that the metadata carries exactly the payload for taskType.
func (m TaskMetadata) Validate(taskType TaskType) error {
	if m.Version != TaskMetadataVersion {
		return fmt.Errorf("unsupported metadata version %d", m.Version)
	}

	set := map[TaskType]bool{
		TaskTypeDocumentProcessing:  m.DocumentProcessing != nil,
		TaskTypeDataImport:          m.DataImport != nil,
		TaskTypeEmbeddingGeneration: m.EmbeddingGeneration != nil,
		TaskTypeProductUpdate:       m.ProductUpdate != nil,
	}
	for t, present := range set {
		if t == taskType && !present {
			return fmt.Errorf("metadata for %s task is missing its %s payload", taskType, taskType)
		}
		if t != taskType && present {
			return fmt.Errorf("metadata for %s task carries a %s payload", taskType, t)
		}
	}
	return nil
}

// Task is a persisted record of a background unit of work.
type Task struct {
	ID           string                           `gorm:"type:text;primaryKey" json:"id"`
	Type         TaskType                         `gorm:"type:text;not null;index:idx_tasks_type" json:"type"`
	Status       TaskStatus                       `gorm:"type:text;not null;index:idx_tasks_status" json:"status"`
	Description  string                           `gorm:"type:text" json:"description"`
	Progress     int                              `gorm:"not null" json:"progress"`
	ErrorMessage string                           `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     datatypes.JSONType[TaskMetadata] `json:"metadata"`
	CreatedAt    time.Time                        `gorm:"index:idx_tasks_created" json:"created_at"`
	StartedAt    *time.Time                       `json:"started_at,omitempty"`
	CompletedAt  *time.Time                       `json:"completed_at,omitempty"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string {
	return "tasks"
}
