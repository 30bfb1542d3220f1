package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vindennt/webcarros/internal/backend"
)

type blob struct {
	data        []byte
	contentType string
}

// Blobs is an in-memory blob store. It also serves its objects over HTTP so
// the URLs it resolves are retrievable during local runs.
// This implementation is safe for concurrent use.
type Blobs struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]blob
}

// NewBlobs creates an empty store whose URLs are baseURL + "/" + path.
func NewBlobs(baseURL string) *Blobs {
	return &Blobs{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]blob),
	}
}

func (b *Blobs) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = blob{data: data, contentType: contentType}
	return nil
}

func (b *Blobs) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[path]; !ok {
		return fmt.Errorf("blob %s: %w", path, backend.ErrNotFound)
	}
	delete(b.objects, path)
	return nil
}

func (b *Blobs) URL(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.objects[path]; !ok {
		return "", fmt.Errorf("blob %s: %w", path, backend.ErrNotFound)
	}
	return b.baseURL + "/" + path, nil
}

// Has reports whether an object is stored at path.
func (b *Blobs) Has(path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[path]
	return ok
}

// ServeHTTP serves GET requests for "{path...}" relative to the mount point.
func (b *Blobs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	path := r.PathValue("path")
	b.mu.RLock()
	obj, ok := b.objects[path]
	b.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	http.ServeContent(w, r, path, time.Time{}, bytes.NewReader(obj.data))
}

// Compile-time check that Blobs implements backend.Blobs
var _ backend.Blobs = (*Blobs)(nil)
