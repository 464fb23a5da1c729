package intake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthadvocate/advocate/internal/platform/blobstore"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// Session is one patient's form in progress.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu          sync.Mutex
	form        Form
	lastSeen    time.Time
	submitting  atomic.Bool
	closed      atomic.Bool
	attachments *AttachmentSet
	notices     *notification.Recorder
}

// Form returns the current form.
func (s *Session) Form() Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// Attachments returns the session's attachment set.
func (s *Session) Attachments() *AttachmentSet {
	return s.attachments
}

// Notices returns and clears the queued notices.
func (s *Session) Notices() []notification.Notice {
	return s.notices.Drain()
}

// PendingNotices returns the queued notices and leaves them queued.
func (s *Session) PendingNotices() []notification.Notice {
	return s.notices.Pending()
}

// Update replaces fields of one section.
func (s *Session) Update(section string, fields map[string]string) (Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.form.UpdateFields(section, fields)
	if err != nil {
		return s.form, err
	}
	s.form = next
	return next, nil
}

// SetDenialClaim flips the claim-type toggle.
func (s *Session) SetDenialClaim(on bool) Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form = s.form.WithDenialClaim(on)
	return s.form
}

// Validate checks the current form and queues a notice when a field is
// missing.
func (s *Session) Validate(ctx context.Context) ValidationResult {
	res := Validate(s.Form())
	if err := res.Err(); err != nil {
		s.notices.Notify(ctx, FailureNotice(err))
	}
	return res
}

// Submitting reports whether a submission is in flight.
func (s *Session) Submitting() bool {
	return s.submitting.Load()
}

// Submit sends a snapshot of the form and documents through sub. Only one
// submission runs at a time; edits made meanwhile are allowed. On success the
// form is cleared and the submitted documents are released to the claim;
// documents uploaded during the submission stay on the session. On failure
// both are kept.
func (s *Session) Submit(ctx context.Context, sub *Submitter) (*Result, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		if s.closed.Load() {
			return nil, ErrSessionNotFound
		}
		return nil, ErrSubmissionInProgress
	}
	defer s.submitting.Store(false)

	form := s.Form()
	docs := s.attachments.List()
	res, err := sub.WithNotifier(notification.Tee(s.notices, sub.notifier)).Submit(ctx, form, docs)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.form = NewForm()
	s.mu.Unlock()
	s.attachments.Release(docs)
	return res, nil
}

// close takes the submission slot for good so no submit can start on a
// session being evicted. It fails while a submission is in flight.
func (s *Session) close() bool {
	if !s.submitting.CompareAndSwap(false, true) {
		return false
	}
	s.closed.Store(true)
	return true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionStore keeps sessions in memory and evicts those idle longer than
// the TTL.
type SessionStore struct {
	store    blobstore.ObjectStore
	limits   Limits
	ttl      time.Duration
	observer UploadObserver
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(store blobstore.ObjectStore, limits Limits, ttl time.Duration, logger zerolog.Logger) *SessionStore {
	return &SessionStore{
		store:    store,
		limits:   limits,
		ttl:      ttl,
		observer: nopObserver{},
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// SetUploadObserver reports upload results for sessions created afterwards.
func (st *SessionStore) SetUploadObserver(o UploadObserver) {
	if o == nil {
		o = nopObserver{}
	}
	st.observer = o
}

// Create starts a session with an empty form.
func (st *SessionStore) Create() *Session {
	now := st.now()
	notices := notification.NewRecorder()
	set := NewAttachmentSet(st.store, st.limits, notices, st.logger)
	set.observer = st.observer

	s := &Session{
		ID:          uuid.NewString(),
		CreatedAt:   now.UTC(),
		form:        NewForm(),
		lastSeen:    now,
		attachments: set,
		notices:     notices,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session and marks it active.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

// Delete discards the session and its uploaded objects.
func (st *SessionStore) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.attachments.Discard(ctx)
	return nil
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// EvictIdle removes sessions idle longer than the TTL and returns how many
// were removed. Sessions with a submission in flight are kept.
func (st *SessionStore) EvictIdle(ctx context.Context) int {
	cutoff := st.now().Add(-st.ttl)
	var expired []*Session

	st.mu.Lock()
	for id, s := range st.sessions {
		if s.idleSince().After(cutoff) || !s.close() {
			continue
		}
		expired = append(expired, s)
		delete(st.sessions, id)
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.attachments.Discard(ctx)
	}
	if len(expired) > 0 {
		st.logger.Debug().Int("count", len(expired)).Msg("evicted idle intake sessions")
	}
	return len(expired)
}

// Run evicts idle sessions until ctx is cancelled.
func (st *SessionStore) Run(ctx context.Context) {
	interval := st.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.EvictIdle(context.WithoutCancel(ctx))
		}
	}
}
