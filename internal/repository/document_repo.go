package repository

import (
	"context"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"gorm.io/gorm"
)

var nonTerminalDocumentStatuses = []domain.DocumentStatus{
	domain.DocumentStatusPending,
	domain.DocumentStatusProcessing,
}

// DocumentFilter narrows a document listing. Zero values mean "any".
type DocumentFilter struct {
	Status   domain.DocumentStatus
	TenantID string
	Limit    int
	Offset   int
}

// DocumentRepository handles document data operations.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DocumentRepository: repository instance bound to db.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *DocumentRepository) WithTx(tx *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Create inserts a new document record.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByID retrieves a document by its ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

// List returns one page of documents, newest first, and the total count matching the filter.
func (r *DocumentRepository) List(ctx context.Context, filter DocumentFilter) ([]domain.Document, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Document{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	var docs []domain.Document
	err := query.Order("created_at DESC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&docs).Error
	return docs, total, err
}

// ListByContentHash returns every document ingested from identical bytes, oldest first.
func (r *DocumentRepository) ListByContentHash(ctx context.Context, hash string) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).
		Where("content_hash = ?", hash).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, err
}

// SetTaskID links the document to the task processing it.
func (r *DocumentRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	return r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ?", id).
		Update("task_id", taskID).Error
}

// MarkProcessing moves a pending document to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ? AND status = ?", id, domain.DocumentStatusPending).
		Update("status", domain.DocumentStatusProcessing).Error
}

// MarkCompleted sets the terminal completed status with the final chunk count.
// Returns:
//   - bool: false if the document was already terminal.
//   - error: non-nil if the update fails.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, chunkCount int) (bool, error) {
	return r.finish(ctx, id, map[string]interface{}{
		"status":      domain.DocumentStatusCompleted,
		"chunk_count": chunkCount,
	})
}

// MarkFailed sets the terminal failed status with an error message.
// Returns:
//   - bool: false if the document was already terminal.
//   - error: non-nil if the update fails.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        domain.DocumentStatusFailed,
		"error_message": message,
	})
}

// finish writes a terminal status exactly once.
func (r *DocumentRepository) finish(ctx context.Context, id string, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ? AND status IN ?", id, nonTerminalDocumentStatuses).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a document and its chunks in one transaction.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&domain.Chunk{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, "document", id)
		}
		return nil
	})
}
