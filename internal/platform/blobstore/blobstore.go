// Package blobstore stores uploaded claim documents. It defines the
// ObjectStore contract used by the intake attachment set, an in-memory
// implementation for development and tests, an S3-backed implementation for
// deployed environments, and an Echo handler that serves objects by path.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidPath    = errors.New("object path is invalid")
)

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// ObjectStore interface
// ---------------------------------------------------------------------------

// ObjectStore is a bucket of objects addressed by slash-separated paths.
type ObjectStore interface {
	// Upload writes body under path. size may be -1 when unknown.
	Upload(ctx context.Context, path, contentType string, size int64, body io.Reader) (*ObjectInfo, error)
	// PublicURL returns the locator clients use to fetch the object.
	PublicURL(path string) string
	// Open returns the object content and its metadata.
	Open(ctx context.Context, path string) (io.ReadCloser, *ObjectInfo, error)
	// Remove deletes the given paths. Missing paths are not an error.
	Remove(ctx context.Context, paths ...string) error
}

// CleanPath validates an object path: non-empty, relative, no "." or ".."
// segments.
func CleanPath(path string) (string, error) {
	p := strings.TrimPrefix(path, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	info    ObjectInfo
	content []byte
}

// MemoryStore is a thread-safe, in-memory ObjectStore for development and
// tests. Public URLs point at baseURL, which Handler serves.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]*storedObject
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]*storedObject),
	}
}

// Upload reads the content, computes a SHA-256 hash, and stores the object.
func (s *MemoryStore) Upload(ctx context.Context, path, contentType string, _ int64, body io.Reader) (*ObjectInfo, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info := ObjectInfo{
		Path:        p,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.objects[p] = &storedObject{info: info, content: data}
	s.mu.Unlock()

	out := info
	return &out, nil
}

// PublicURL joins the base URL and path.
func (s *MemoryStore) PublicURL(path string) string {
	return s.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Open returns a reader over the object content.
func (s *MemoryStore) Open(_ context.Context, path string) (io.ReadCloser, *ObjectInfo, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[p]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	info := obj.info
	return io.NopCloser(bytes.NewReader(obj.content)), &info, nil
}

// Remove deletes objects by path.
func (s *MemoryStore) Remove(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		p, err := CleanPath(path)
		if err != nil {
			return err
		}
		delete(s.objects, p)
	}
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves stored objects by path, so public URLs issued by a
// MemoryStore resolve against this server.
type Handler struct {
	store ObjectStore
}

// NewHandler creates a new Handler.
func NewHandler(store ObjectStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts GET /* on the supplied group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/*", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, info, err := h.store.Open(c.Request().Context(), c.Param("*"))
	if err != nil {
		switch {
		case errors.Is(err, ErrObjectNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidPath):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
	}
	defer rc.Close()

	name := info.Path[strings.LastIndex(info.Path, "/")+1:]
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, name))
	return c.Stream(http.StatusOK, info.ContentType, rc)
}
