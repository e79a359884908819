package repository

import (
	"context"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"gorm.io/gorm"
)

const chunkInsertBatch = 200

// ChunkRepository handles chunk data operations.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ChunkRepository: repository instance bound to db.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ChunkRepository) WithTx(tx *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// CreateBatch inserts chunks in batches. Callers wrap it in the document commit transaction.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, chunkInsertBatch).Error
}

// ListByDocument returns a document's chunks in sequence order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("sequence_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// completed restricts a chunk query to chunks whose document is completed.
func (r *ChunkRepository) completed(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Chunk{}).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("documents.status = ?", domain.DocumentStatusCompleted).
		Select("chunks.*")
}

// GetCompletedByIDs loads the chunks with the given IDs, skipping any whose
// document is not completed.
func (r *ChunkRepository) GetCompletedByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	err := r.completed(ctx).Where("chunks.id IN ?", ids).Find(&chunks).Error
	return chunks, err
}

// ScanCompleted walks every chunk of every completed document in pages of batchSize,
// ordered by chunk ID, calling fn for each page.
func (r *ChunkRepository) ScanCompleted(ctx context.Context, batchSize int, fn func([]domain.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	after := ""
	for {
		var page []domain.Chunk
		err := r.completed(ctx).
			Where("chunks.id > ?", after).
			Order("chunks.id ASC").
			Limit(batchSize).
			Find(&page).Error
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < batchSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}
