package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stepClock advances one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestTracker(t *testing.T) (*TaskTracker, *gorm.DB) {
	t.Helper()
	db := repository.OpenTestDB(t)
	clock := &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewTaskTracker(db, WithClock(clock.Now)), db
}

func importMeta() domain.TaskMetadata {
	return domain.TaskMetadata{DataImport: &domain.DataImportMetadata{Source: "unit"}}
}

func TestTaskTrackerHappyPath(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	task, err := tracker.Create(ctx, domain.TaskTypeDataImport, "import", importMeta())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Nil(t, task.StartedAt)
	assert.Equal(t, domain.TaskMetadataVersion, task.Metadata.Data().Version)

	task, err = tracker.Start(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	for _, p := range []int{10, 50, 30, 50, 90} {
		task, err = tracker.ReportProgress(ctx, task.ID, p)
		require.NoError(t, err)
	}
	assert.Equal(t, 90, task.Progress)

	task, err = tracker.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
	require.NotNil(t, task.CompletedAt)
	assert.False(t, task.CompletedAt.Before(*task.StartedAt))
}

func TestTaskTrackerRejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	task, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)

	_, err = tracker.Complete(ctx, task.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = tracker.Fail(ctx, task.ID, "boom")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = tracker.ReportProgress(ctx, task.ID, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	got, err := tracker.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)

	_, err = tracker.Start(ctx, task.ID)
	require.NoError(t, err)
	_, err = tracker.Start(ctx, task.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = tracker.Fail(ctx, task.ID, "disk full")
	require.NoError(t, err)

	for name, op := range map[string]func() error{
		"start":    func() error { _, err := tracker.Start(ctx, task.ID); return err },
		"complete": func() error { _, err := tracker.Complete(ctx, task.ID); return err },
		"cancel":   func() error { _, err := tracker.Cancel(ctx, task.ID); return err },
		"fail":     func() error { _, err := tracker.Fail(ctx, task.ID, "again"); return err },
	} {
		assert.ErrorIs(t, op(), apperr.ErrInvalidTransition, name)
	}

	got, err = tracker.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "disk full", got.ErrorMessage)
}

func TestTaskTrackerValidation(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	_, err := tracker.Create(ctx, "nonsense", "", importMeta())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = tracker.Create(ctx, domain.TaskTypeDocumentProcessing, "", importMeta())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	task, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)
	_, err = tracker.Start(ctx, task.ID)
	require.NoError(t, err)

	_, err = tracker.ReportProgress(ctx, task.ID, 101)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = tracker.ReportProgress(ctx, task.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = tracker.Fail(ctx, task.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = tracker.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = tracker.Start(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskTrackerCancel(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	pending, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)
	cancelled, err := tracker.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	running, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)
	_, err = tracker.Start(ctx, running.ID)
	require.NoError(t, err)
	_, err = tracker.Cancel(ctx, running.ID)
	require.NoError(t, err)

	isCancelled, err := tracker.IsCancelled(ctx, running.ID)
	require.NoError(t, err)
	assert.True(t, isCancelled)

	_, err = tracker.Complete(ctx, running.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestTaskTrackerCompleteWithIsAtomic(t *testing.T) {
	ctx := context.Background()
	tracker, db := newTestTracker(t)
	docs := repository.NewDocumentRepository(db)

	task, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)
	_, err = tracker.Start(ctx, task.ID)
	require.NoError(t, err)

	boom := errors.New("insert failed")
	_, err = tracker.CompleteWith(ctx, task.ID, func(tx *gorm.DB) error {
		require.NoError(t, docs.WithTx(tx).Create(ctx, &domain.Document{
			ID: "d1", Filename: "a", ContentType: "text/plain", StoragePath: "p", ContentHash: "h",
			Status: domain.DocumentStatusCompleted,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := tracker.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	_, err = docs.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = tracker.Cancel(ctx, task.ID)
	require.NoError(t, err)
	called := false
	_, err = tracker.CompleteWith(ctx, task.ID, func(tx *gorm.DB) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.False(t, called)
}

func TestTaskTrackerConcurrentProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	task, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
	require.NoError(t, err)
	_, err = tracker.Start(ctx, task.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 1; p <= 40; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = tracker.ReportProgress(ctx, task.ID, p)
		}(p)
	}
	wg.Wait()

	got, err := tracker.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
}

func TestTaskTrackerListFilters(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	for i := 0; i < 3; i++ {
		_, err := tracker.Create(ctx, domain.TaskTypeDataImport, "", importMeta())
		require.NoError(t, err)
	}
	_, err := tracker.Create(ctx, domain.TaskTypeProductUpdate, "", domain.TaskMetadata{
		ProductUpdate: &domain.ProductUpdateMetadata{SKUs: []string{"a"}},
	})
	require.NoError(t, err)

	tasks, total, err := tracker.List(ctx, repository.TaskFilter{Type: domain.TaskTypeProductUpdate})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, tasks, 1)

	_, _, err = tracker.List(ctx, repository.TaskFilter{Status: "weird"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
