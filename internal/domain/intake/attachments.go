package intake

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthadvocate/advocate/internal/platform/blobstore"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// DocumentPrefix is the object path prefix for uploaded documents.
const DocumentPrefix = "documents/"

// Upload result labels reported to the UploadObserver.
const (
	UploadStored   = "stored"
	UploadTooLarge = "too_large"
	UploadFailed   = "failed"
	UploadRejected = "rejected"
)

// DocumentReference is an uploaded document awaiting submission.
type DocumentReference struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Path is the object path the document is stored under.
func (d DocumentReference) Path() string {
	return DocumentPrefix + d.ID
}

// Upload is one file offered to AttachmentSet.Add. Open is only called for
// files within the size limit.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Limits bound an attachment set.
type Limits struct {
	MaxFiles int
	MaxBytes int64
}

// DefaultLimits allows five files of up to 10 MB each.
func DefaultLimits() Limits {
	return Limits{MaxFiles: 5, MaxBytes: 10 * 1024 * 1024}
}

// UploadObserver receives one result label per offered file.
type UploadObserver interface {
	ObserveUpload(result string)
}

// AttachmentSet holds the documents uploaded for one form.
type AttachmentSet struct {
	store    blobstore.ObjectStore
	limits   Limits
	notifier notification.Notifier
	observer UploadObserver
	logger   zerolog.Logger
	now      func() time.Time
	suffix   func() string

	// addMu serializes batches so the file count check holds for the whole
	// batch; mu guards refs.
	addMu sync.Mutex
	mu    sync.Mutex
	refs  []DocumentReference
}

func NewAttachmentSet(store blobstore.ObjectStore, limits Limits, notifier notification.Notifier, logger zerolog.Logger) *AttachmentSet {
	if notifier == nil {
		notifier = notification.Discard
	}
	return &AttachmentSet{
		store:    store,
		limits:   limits,
		notifier: notifier,
		observer: nopObserver{},
		logger:   logger,
		now:      time.Now,
		suffix:   randomSuffix,
	}
}

func (a *AttachmentSet) maxMB() int64 {
	return a.limits.MaxBytes / (1024 * 1024)
}

// Add uploads a batch of files. A batch that would exceed MaxFiles is
// rejected before anything is uploaded. Oversized files are skipped and
// failed uploads reported; the rest of the batch still goes through.
func (a *AttachmentSet) Add(ctx context.Context, files []Upload) ([]DocumentReference, error) {
	a.addMu.Lock()
	defer a.addMu.Unlock()

	current := a.Len()
	if current+len(files) > a.limits.MaxFiles {
		for range files {
			a.observer.ObserveUpload(UploadRejected)
		}
		a.notifier.Notify(ctx, notification.Failure("Too many files", fmt.Sprintf("Maximum %d files allowed", a.limits.MaxFiles)))
		return nil, &TooManyFilesError{Max: a.limits.MaxFiles, Current: current, Incoming: len(files)}
	}

	var added []DocumentReference
	for _, f := range files {
		if f.Size > a.limits.MaxBytes {
			a.observer.ObserveUpload(UploadTooLarge)
			a.notifier.Notify(ctx, notification.Failure("File too large", fmt.Sprintf("%s exceeds %dMB limit", f.Name, a.maxMB())))
			continue
		}

		ref, err := a.upload(ctx, f)
		if err != nil {
			a.observer.ObserveUpload(UploadFailed)
			a.logger.Warn().Err(err).Str("file", f.Name).Msg("document upload failed")
			a.notifier.Notify(ctx, notification.Failure("Upload failed", "Failed to upload "+f.Name))
			continue
		}
		a.observer.ObserveUpload(UploadStored)
		added = append(added, *ref)
	}

	if len(added) > 0 {
		a.mu.Lock()
		a.refs = append(a.refs, added...)
		a.mu.Unlock()
		a.notifier.Notify(ctx, notification.Info("Files uploaded", fmt.Sprintf("Successfully uploaded %d file(s)", len(added))))
	}
	return added, nil
}

func (a *AttachmentSet) upload(ctx context.Context, f Upload) (*DocumentReference, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("no content for %s", f.Name)
	}
	body, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer body.Close()

	now := a.now()
	ref := &DocumentReference{
		ID:   objectName(now, a.suffix(), f.Name),
		Name: f.Name,
		Type: f.ContentType,
		Size: f.Size,
	}
	info, err := a.store.Upload(ctx, ref.Path(), f.ContentType, f.Size, body)
	if err != nil {
		return nil, err
	}
	if info != nil && info.Size > 0 {
		ref.Size = info.Size
	}
	ref.URL = a.store.PublicURL(ref.Path())
	ref.UploadedAt = now.UTC()
	return ref, nil
}

// Remove deletes the stored object and drops the reference. It reports
// whether the document was held. Storage failures are logged only.
func (a *AttachmentSet) Remove(ctx context.Context, id string) bool {
	a.mu.Lock()
	idx := -1
	for i, r := range a.refs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return false
	}
	ref := a.refs[idx]
	a.refs = append(a.refs[:idx:idx], a.refs[idx+1:]...)
	a.mu.Unlock()

	if err := a.store.Remove(ctx, ref.Path()); err != nil {
		a.logger.Warn().Err(err).Str("path", ref.Path()).Msg("remove uploaded document")
	}
	a.notifier.Notify(ctx, notification.Info("File removed", "Document has been removed"))
	return true
}

// List returns a copy of the held references.
func (a *AttachmentSet) List() []DocumentReference {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]DocumentReference, len(a.refs))
	copy(out, a.refs)
	return out
}

func (a *AttachmentSet) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.refs)
}

// Reset forgets every reference. Stored objects are kept; they belong to the
// submitted claim.
func (a *AttachmentSet) Reset() {
	a.mu.Lock()
	a.refs = nil
	a.mu.Unlock()
}

// Release drops the given references without deleting their objects, which
// now belong to a submitted claim. References added since are kept.
func (a *AttachmentSet) Release(submitted []DocumentReference) {
	gone := make(map[string]bool, len(submitted))
	for _, r := range submitted {
		gone[r.ID] = true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var kept []DocumentReference
	for _, r := range a.refs {
		if !gone[r.ID] {
			kept = append(kept, r)
		}
	}
	a.refs = kept
}

// Discard deletes every held object and forgets the references.
func (a *AttachmentSet) Discard(ctx context.Context) {
	a.mu.Lock()
	refs := a.refs
	a.refs = nil
	a.mu.Unlock()
	if len(refs) == 0 {
		return
	}
	paths := make([]string, len(refs))
	for i, r := range refs {
		paths[i] = r.Path()
	}
	if err := a.store.Remove(ctx, paths...); err != nil {
		a.logger.Warn().Err(err).Int("count", len(paths)).Msg("discard uploaded documents")
	}
}

// objectName is "<unix millis>-<suffix>.<ext>". A name without a dot is used
// whole as the extension.
func objectName(now time.Time, suffix, original string) string {
	ext := original
	if i := strings.LastIndex(original, "."); i >= 0 {
		ext = original[i+1:]
	}
	ext = strings.NewReplacer("/", "", "\\", "").Replace(ext)
	return fmt.Sprintf("%d-%s.%s", now.UnixMilli(), suffix, ext)
}

func randomSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 36)
}
