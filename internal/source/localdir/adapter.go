package localdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/extract"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/source"
)

// Adapter implements the Source interface for a directory tree of documents.
// Files whose type cannot be inferred from the extension are skipped.
type Adapter struct {
	root     string
	tenantID string

	once  sync.Once
	items []source.Item
	err   error
}

// NewAdapter creates a new directory adapter rooted at root.
func NewAdapter(root, tenantID string) *Adapter {
	return &Adapter{root: root, tenantID: tenantID}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "localdir:" + filepath.Base(a.root)
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Directory (%s)", a.root)
}

// FetchBatch fetches a batch of documents in path order.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	a.once.Do(func() { a.err = a.loadItems() })
	if a.err != nil {
		return nil, "", a.err
	}
	return source.Page(a.items, cursor, limit)
}

// Count returns the number of documents found under the root.
func (a *Adapter) Count() (int, error) {
	a.once.Do(func() { a.err = a.loadItems() })
	return len(a.items), a.err
}

// loadItems walks the directory and collects supported files
func (a *Adapter) loadItems() error {
	if _, err := os.Stat(a.root); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", a.root)
	}

	a.items = []source.Item{}
	err := filepath.Walk(a.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := info.Name()
		if info.IsDir() {
			if path != a.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		contentType := extract.NormalizeContentType("", name)
		if contentType == "" {
			return nil
		}

		relPath, _ := filepath.Rel(a.root, path)
		a.items = append(a.items, source.Item{
			SourceID:    filepath.ToSlash(relPath),
			Filename:    name,
			ContentType: contentType,
			TenantID:    a.tenantID,
			LocalPath:   path,
			Size:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].SourceID < a.items[j].SourceID
	})
	return nil
}
