package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in an export directory.
	ManifestFileName = "manifest.jsonl"
	// FilesDir is the directory holding the exported files.
	FilesDir = "files"
)

// Entry is one line of manifest.jsonl.
type Entry struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TenantID    string `json:"tenant_id"`
}

// Adapter implements the Source interface for an export directory described by
// a JSONL manifest. Entries keep manifest order.
type Adapter struct {
	basePath string

	once  sync.Once
	items []source.Item
	err   error
}

// NewAdapter creates a new manifest adapter.
// Parameters:
//   - basePath: directory containing manifest.jsonl and files/.
// Returns:
//   - *Adapter: initialized manifest adapter.
func NewAdapter(basePath string) *Adapter {
	return &Adapter{basePath: basePath}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "manifest:" + filepath.Base(a.basePath)
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Manifest (%s)", a.basePath)
}

// FetchBatch fetches a batch of items from the manifest.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	a.once.Do(func() { a.err = a.loadItems(ctx) })
	if a.err != nil {
		return nil, "", fmt.Errorf("failed to load manifest: %w", a.err)
	}
	return source.Page(a.items, cursor, limit)
}

// loadItems reads the manifest. Malformed lines and missing files are skipped.
func (a *Adapter) loadItems(ctx context.Context) error {
	manifestPath := filepath.Join(a.basePath, ManifestFileName)
	filesPath := filepath.Join(a.basePath, FilesDir)

	file, err := os.Open(manifestPath)
	if err != nil {
		return err
	}
	defer file.Close()

	a.items = []source.Item{}
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Filename == "" {
			logger.CtxWarn(ctx, "Skipping malformed manifest line %d", lineNo)
			continue
		}

		localPath := filepath.Join(filesPath, entry.Filename)
		info, err := os.Stat(localPath)
		if err != nil {
			logger.CtxWarn(ctx, "Skipping manifest entry %s: %v", entry.Filename, err)
			continue
		}

		id := entry.ID
		if id == "" {
			id = entry.Filename
		}
		a.items = append(a.items, source.Item{
			SourceID:    id,
			Filename:    filepath.Base(entry.Filename),
			ContentType: entry.ContentType,
			TenantID:    entry.TenantID,
			LocalPath:   localPath,
			Size:        info.Size(),
		})
	}

	return scanner.Err()
}

// ListManifests lists the subdirectories of basePath that contain a manifest.
func ListManifests(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(basePath, entry.Name(), ManifestFileName)); err == nil {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}
