package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/chunker"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/extract"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CancelledMessage is the error message recorded on documents whose task was cancelled.
const CancelledMessage = "ingestion cancelled"

var errIngestCancelled = errors.New(CancelledMessage)

// Executor runs functions asynchronously. *ants.Pool satisfies it.
type Executor interface {
	Submit(task func()) error
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	MaxUploadBytes      int64
	AllowedContentTypes []string
	Chunking            chunker.Config
	EmbedBatchSize      int
}

// IngestRequest is one uploaded file.
type IngestRequest struct {
	Data        []byte
	Filename    string
	ContentType string
	TenantID    string
}

// IngestService runs the document pipeline:
// validate, store, extract, chunk, embed, then commit chunks and statuses atomically.
type IngestService struct {
	documents *repository.DocumentRepository
	chunks    *repository.ChunkRepository
	tracker   *TaskTracker
	index     VectorIndex
	storage   storage.ObjectStorage
	extractor extract.Extractor
	embedder  Embedder
	workers   Executor
	embedPool Executor
	cfg       IngestConfig
	allowed   map[string]bool
}

// NewIngestService creates a new ingest service.
// Parameters:
//   - db: database shared with the tracker.
//   - tracker: task state machine.
//   - index: optional vector index; nil disables it.
//   - objectStorage: blob store for original files.
//   - extractor: text extractor.
//   - embedder: embedding client, normally a RetryingEmbedder.
//   - workers: executor running one document pipeline per task.
//   - embedPool: executor shared by embedding batches of all documents.
//   - cfg: ingestion limits.
// Returns:
//   - *IngestService: initialized service.
func NewIngestService(
	db *gorm.DB,
	tracker *TaskTracker,
	index VectorIndex,
	objectStorage storage.ObjectStorage,
	extractor extract.Extractor,
	embedder Embedder,
	workers Executor,
	embedPool Executor,
	cfg IngestConfig,
) *IngestService {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	allowed := make(map[string]bool, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		allowed[strings.ToLower(ct)] = true
	}
	return &IngestService{
		documents: repository.NewDocumentRepository(db),
		chunks:    repository.NewChunkRepository(db),
		tracker:   tracker,
		index:     index,
		storage:   objectStorage,
		extractor: extractor,
		embedder:  embedder,
		workers:   workers,
		embedPool: embedPool,
		cfg:       cfg,
		allowed:   allowed,
	}
}

// Ingest validates and stores the file, records a pending document and its
// document_processing task, and schedules processing. It returns without waiting;
// callers poll the task.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*domain.Document, error) {
	contentType, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Data)
	doc := &domain.Document{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Filename:    req.Filename,
		ContentType: contentType,
		ContentHash: hex.EncodeToString(sum[:]),
		Status:      domain.DocumentStatusPending,
		Size:        int64(len(req.Data)),
	}
	doc.StoragePath = storage.DocumentKey(doc.ID, doc.Filename)
	ctx = logger.SetDocumentID(ctx, doc.ID)

	if err := s.storage.Upload(ctx, doc.StoragePath, bytes.NewReader(req.Data), doc.Size, contentType); err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientExternal, err, "failed to store document")
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), doc.StoragePath); delErr != nil {
			logger.FromContext(ctx).WithError(delErr).
				WithField("storage_key", doc.StoragePath).
				Error("Failed to rollback storage upload")
		}
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	task, err := s.tracker.Create(ctx, domain.TaskTypeDocumentProcessing, "Process "+doc.Filename, domain.TaskMetadata{
		DocumentProcessing: &domain.DocumentProcessingMetadata{
			DocumentID:  doc.ID,
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Size:        doc.Size,
		},
	})
	if err != nil {
		s.markFailed(ctx, doc.ID, "failed to create processing task")
		return nil, err
	}
	if err := s.documents.SetTaskID(ctx, doc.ID, task.ID); err != nil {
		s.abandonTask(ctx, task.ID)
		s.markFailed(ctx, doc.ID, "failed to link processing task")
		return nil, err
	}
	doc.TaskID = task.ID

	bg := context.WithoutCancel(logger.SetTaskID(ctx, task.ID))
	if err := s.workers.Submit(func() { s.process(bg, doc) }); err != nil {
		msg := "ingestion queue rejected the document: " + err.Error()
		if _, startErr := s.tracker.Start(bg, task.ID); startErr != nil {
			s.abandonTask(bg, task.ID)
		} else if _, failErr := s.tracker.Fail(bg, task.ID, msg); failErr != nil {
			s.abandonTask(bg, task.ID)
		}
		s.markFailed(bg, doc.ID, msg)
		return nil, apperr.Wrap(apperr.ErrBusy, err, "ingestion queue is full")
	}

	logger.With(logger.Fields{
		logger.FieldSize:   doc.Size,
		logger.FieldTaskID: task.ID,
	}).Info(ctx, "Document accepted: %s (%s)", doc.Filename, contentType)
	return doc, nil
}

// validate checks the request and returns its normalized content type.
func (s *IngestService) validate(req IngestRequest) (string, error) {
	if len(req.Data) == 0 {
		return "", apperr.New(apperr.ErrValidation, "file is empty")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return "", apperr.New(apperr.ErrValidation, "filename is required")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		return "", apperr.New(apperr.ErrPayloadTooLarge, "file is %d bytes, limit is %d", len(req.Data), s.cfg.MaxUploadBytes)
	}
	contentType := extract.NormalizeContentType(req.ContentType, req.Filename)
	if !s.allowed[contentType] {
		return "", apperr.New(apperr.ErrUnsupportedType, "content type %q is not allowed", contentType)
	}
	return contentType, nil
}

// process is the background half of Ingest. It always leaves the document and
// the task in a terminal state.
func (s *IngestService) process(ctx context.Context, doc *domain.Document) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, doc, apperr.New(apperr.ErrInternal, "ingestion panicked: %v", r))
		}
	}()

	count, err := s.run(ctx, doc)
	if err != nil {
		s.fail(ctx, doc, err)
		return
	}

	logger.With(logger.Fields{logger.FieldCount: count}).
		WithDuration(start).
		Info(ctx, "Document ingested")
}

func (s *IngestService) run(ctx context.Context, doc *domain.Document) (int, error) {
	if _, err := s.tracker.Start(ctx, doc.TaskID); err != nil {
		return 0, s.cancelledOr(ctx, doc.TaskID, err)
	}
	if err := s.documents.MarkProcessing(ctx, doc.ID); err != nil {
		return 0, err
	}

	data, err := s.download(ctx, doc.StoragePath)
	if err != nil {
		return 0, err
	}
	if err := s.checkpoint(ctx, doc.TaskID); err != nil {
		return 0, err
	}

	text, err := s.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return 0, err
	}
	pieces, err := chunker.Split(text, s.cfg.Chunking)
	if err != nil {
		return 0, err
	}
	if len(pieces) == 0 {
		return 0, apperr.New(apperr.ErrExtraction, "document contains no extractable text")
	}
	if err := s.checkpoint(ctx, doc.TaskID); err != nil {
		return 0, err
	}

	vectors, err := s.embedChunks(ctx, doc.TaskID, pieces)
	if err != nil {
		return 0, err
	}
	if err := s.checkpoint(ctx, doc.TaskID); err != nil {
		return 0, err
	}

	chunks := make([]domain.Chunk, len(pieces))
	points := make([]repository.ChunkPoint, len(pieces))
	ids := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			SequenceIndex: p.Index,
			Text:          p.Text,
			Vector:        vectors[i],
			StartOffset:   p.Start,
			EndOffset:     p.End,
		}
		points[i] = repository.ChunkPoint{
			ChunkID:       chunks[i].ID,
			DocumentID:    doc.ID,
			SequenceIndex: p.Index,
			Vector:        vectors[i],
		}
		ids[i] = chunks[i].ID
	}

	// Index points stay invisible to retrieval until the SQL commit below marks
	// the document completed.
	if s.index != nil {
		if err := s.index.UpsertChunks(ctx, points); err != nil {
			return 0, err
		}
	}

	_, err = s.tracker.CompleteWith(ctx, doc.TaskID, func(tx *gorm.DB) error {
		if err := s.chunks.WithTx(tx).CreateBatch(ctx, chunks); err != nil {
			return err
		}
		ok, err := s.documents.WithTx(tx).MarkCompleted(ctx, doc.ID, len(chunks))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.ErrInvalidTransition, "document %s is already terminal", doc.ID)
		}
		return nil
	})
	if err != nil {
		if s.index != nil {
			if delErr := s.index.DeleteChunks(context.WithoutCancel(ctx), ids); delErr != nil {
				logger.FromContext(ctx).WithError(delErr).Error("Failed to rollback index upsert")
			}
		}
		return 0, s.cancelledOr(ctx, doc.TaskID, err)
	}
	return len(chunks), nil
}

func (s *IngestService) download(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		// A blob that is gone will not come back on retry.
		if exists, existsErr := s.storage.Exists(ctx, key); existsErr == nil && !exists {
			return nil, apperr.Wrap(apperr.ErrNotFound, err, "stored file %s is missing", key)
		}
		return nil, apperr.Wrap(apperr.ErrTransientExternal, err, "failed to download document")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransientExternal, err, "failed to read document")
	}
	return data, nil
}

// checkDimensions rejects vectors whose size differs from want. Zero disables the check.
func checkDimensions(vecs [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for _, v := range vecs {
		if len(v) != want {
			return apperr.New(apperr.ErrInvalidInput, "embedder returned a %d-dimensional vector, expected %d", len(v), want)
		}
	}
	return nil
}

// embedBatch is a half-open range of chunk indexes.
type embedBatch struct {
	start, end int
}

// embedChunks embeds all pieces in batches on the shared embedding pool.
// The first failing batch cancels the rest. Progress is reported as the share of
// embedded chunks, capped at 99 until the commit sets 100.
func (s *IngestService) embedChunks(ctx context.Context, taskID string, pieces []chunker.Chunk) ([][]float32, error) {
	total := len(pieces)
	vectors := make([][]float32, total)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		embedded int64
	)
	abort := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < total; start += s.cfg.EmbedBatchSize {
		b := embedBatch{start: start, end: min(start+s.cfg.EmbedBatchSize, total)}

		wg.Add(1)
		err := s.embedPool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					abort(apperr.New(apperr.ErrInternal, "embedding panicked: %v", r))
				}
			}()
			if ctx.Err() != nil {
				return
			}

			texts := make([]string, 0, b.end-b.start)
			for _, p := range pieces[b.start:b.end] {
				texts = append(texts, p.Text)
			}
			vecs, err := s.embedder.EmbedBatch(ctx, texts)
			if err == nil && len(vecs) != len(texts) {
				err = apperr.New(apperr.ErrInvalidInput, "embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			if err == nil {
				err = checkDimensions(vecs, s.embedder.Dimensions())
			}
			if err != nil {
				abort(err)
				return
			}
			copy(vectors[b.start:b.end], vecs)

			done := atomic.AddInt64(&embedded, int64(len(vecs)))
			progress := min(int(done*100/int64(total)), 99)
			if _, err := s.tracker.ReportProgress(ctx, taskID, progress); err != nil {
				abort(s.cancelledOr(ctx, taskID, err))
			}
		})
		if err != nil {
			wg.Done()
			abort(apperr.Wrap(apperr.ErrInternal, err, "embedding pool rejected batch"))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// checkpoint stops the pipeline when the context ended or the task was cancelled.
func (s *IngestService) checkpoint(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := s.tracker.IsCancelled(ctx, taskID)
	if err != nil {
		return err
	}
	if cancelled {
		return errIngestCancelled
	}
	return nil
}

// cancelledOr returns errIngestCancelled if the task was cancelled, else err.
func (s *IngestService) cancelledOr(ctx context.Context, taskID string, err error) error {
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		return err
	}
	if cancelled, _ := s.tracker.IsCancelled(context.WithoutCancel(ctx), taskID); cancelled {
		return errIngestCancelled
	}
	return err
}

// fail records the terminal failure on the task and the document.
func (s *IngestService) fail(ctx context.Context, doc *domain.Document, cause error) {
	ctx = context.WithoutCancel(ctx)

	msg := cause.Error()
	if errors.Is(cause, errIngestCancelled) {
		msg = CancelledMessage
	} else if _, err := s.tracker.Fail(ctx, doc.TaskID, msg); err != nil {
		if errors.Is(s.cancelledOr(ctx, doc.TaskID, err), errIngestCancelled) {
			msg = CancelledMessage
		} else {
			// Fail only applies to running tasks; one that never started is cancelled.
			logger.FromContext(ctx).WithError(err).Warn("Failed to mark task failed")
			s.abandonTask(ctx, doc.TaskID)
		}
	}

	s.markFailed(ctx, doc.ID, msg)
	logger.FromContext(ctx).WithError(cause).Warn("Document ingestion failed")
}

// abandonTask cancels a task that can no longer be failed or completed so it
// still reaches a terminal state.
func (s *IngestService) abandonTask(ctx context.Context, taskID string) {
	if _, err := s.tracker.Cancel(context.WithoutCancel(ctx), taskID); err != nil &&
		!errors.Is(err, apperr.ErrInvalidTransition) {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldTaskID, taskID).
			Error("Failed to cancel abandoned task")
	}
}

func (s *IngestService) markFailed(ctx context.Context, docID, msg string) {
	if _, err := s.documents.MarkFailed(context.WithoutCancel(ctx), docID, msg); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark document failed")
	}
}

// GetDocument returns a document by ID.
func (s *IngestService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// ListDocuments returns one page of documents and the total count.
func (s *IngestService) ListDocuments(ctx context.Context, filter repository.DocumentFilter) ([]domain.Document, int64, error) {
	if filter.Status != "" {
		switch filter.Status {
		case domain.DocumentStatusPending, domain.DocumentStatusProcessing,
			domain.DocumentStatusCompleted, domain.DocumentStatusFailed:
		default:
			return nil, 0, apperr.New(apperr.ErrInvalidArgument, "unknown document status %q", filter.Status)
		}
	}
	return s.documents.List(ctx, filter)
}

// DeleteDocument removes a document, its chunks, its index points and its blob.
// A document still being processed has its task cancelled first.
func (s *IngestService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ctx = logger.SetDocumentID(ctx, id)

	if !doc.Status.IsTerminal() && doc.TaskID != "" {
		if _, err := s.tracker.Cancel(ctx, doc.TaskID); err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
			return err
		}
	}

	if s.index != nil {
		if err := s.index.DeleteByDocument(ctx, id); err != nil {
			return err
		}
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		logger.FromContext(ctx).WithError(err).
			WithField("storage_key", doc.StoragePath).
			Warn("Failed to delete document blob")
	}

	logger.CtxInfo(ctx, "Document deleted")
	return nil
}

// ImportStats holds statistics for a bulk import run.
type ImportStats struct {
	TaskID    string
	Total     int
	Submitted int
	Failed    int
	Documents []string
	StartTime time.Time
	EndTime   time.Time
}

// IngestDirectory submits every item of src, up to limit (0 means all), as its own
// document. The run is tracked by a data_import task, which completes once every
// item has been submitted; the documents finish on their own tasks.
func (s *IngestService) IngestDirectory(ctx context.Context, src source.Source, limit int) (*ImportStats, error) {
	task, err := s.tracker.Create(ctx, domain.TaskTypeDataImport, "Import "+src.GetDisplayName(), domain.TaskMetadata{
		DataImport: &domain.DataImportMetadata{Source: src.GetSourceID(), Limit: limit},
	})
	if err != nil {
		return nil, err
	}
	ctx = logger.SetTaskID(ctx, task.ID)
	if _, err := s.tracker.Start(ctx, task.ID); err != nil {
		return nil, err
	}

	stats := &ImportStats{TaskID: task.ID, StartTime: time.Now()}
	logger.With(logger.Fields{"source": src.GetSourceID(), "limit": limit}).
		Info(ctx, "Starting import")

	if err := s.importItems(ctx, src, limit, stats); err != nil {
		stats.EndTime = time.Now()
		if errors.Is(err, errIngestCancelled) {
			return stats, err
		}
		if _, failErr := s.tracker.Fail(context.WithoutCancel(ctx), task.ID, err.Error()); failErr != nil {
			logger.FromContext(ctx).WithError(failErr).Error("Failed to mark import task failed")
		}
		return stats, err
	}

	stats.EndTime = time.Now()
	if _, err := s.tracker.Complete(ctx, task.ID); err != nil {
		return stats, s.cancelledOr(ctx, task.ID, err)
	}

	logger.With(logger.Fields{
		"total":     stats.Total,
		"submitted": stats.Submitted,
		"failed":    stats.Failed,
	}).WithDuration(stats.StartTime).Info(ctx, "Import completed")
	return stats, nil
}

func (s *IngestService) importItems(ctx context.Context, src source.Source, limit int, stats *ImportStats) error {
	const fetchBatch = 50

	cursor := ""
	for {
		if err := s.checkpoint(ctx, stats.TaskID); err != nil {
			return err
		}

		batchLimit := fetchBatch
		if limit > 0 {
			remaining := limit - stats.Total
			if remaining <= 0 {
				return nil
			}
			batchLimit = min(batchLimit, remaining)
		}

		items, next, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch batch: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		for _, item := range items {
			stats.Total++
			doc, err := s.ingestItem(ctx, item)
			if err != nil {
				stats.Failed++
				logger.FromContext(ctx).WithError(err).
					WithField("source_id", item.SourceID).
					Warn("Failed to import item")
				continue
			}
			stats.Submitted++
			stats.Documents = append(stats.Documents, doc.ID)
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
}

func (s *IngestService) ingestItem(ctx context.Context, item source.Item) (*domain.Document, error) {
	if s.cfg.MaxUploadBytes > 0 && item.Size > s.cfg.MaxUploadBytes {
		return nil, apperr.New(apperr.ErrPayloadTooLarge, "file is %d bytes, limit is %d", item.Size, s.cfg.MaxUploadBytes)
	}
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", item.LocalPath, err)
	}
	return s.Ingest(ctx, IngestRequest{
		Data:        data,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		TenantID:    item.TenantID,
	})
}
