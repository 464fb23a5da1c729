package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Variant selects how a client renders a notice.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a short, transient, user-facing message.
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

// Info builds a default notice.
func Info(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: VariantDefault}
}

// Failure builds a destructive notice.
func Failure(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: VariantDestructive}
}

// Notifier delivers notices to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(context.Context, Notice) {})

// RecorderLimit bounds both the undrained queue and the history kept by a
// Recorder; the oldest notices are dropped first.
const RecorderLimit = 100

// Recorder queues notices until they are drained. It backs per-session
// notice delivery and doubles as a test fake.
type Recorder struct {
	mu      sync.Mutex
	pending []Notice
	all     []Notice
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = keepLast(append(r.pending, n), RecorderLimit)
	r.all = keepLast(append(r.all, n), RecorderLimit)
}

func keepLast(ns []Notice, limit int) []Notice {
	if len(ns) > limit {
		return ns[len(ns)-limit:]
	}
	return ns
}

// Pending returns the notices not yet drained without clearing them.
func (r *Recorder) Pending() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.pending))
	copy(out, r.pending)
	return out
}

// Drain returns and clears the notices not yet drained.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// All returns the recorded history, at most RecorderLimit notices.
func (r *Recorder) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.all))
	copy(out, r.all)
	return out
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notice{}, false
	}
	return r.all[len(r.all)-1], true
}

// LogNotifier writes notices to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notice) {
	ev := l.logger.Info()
	if n.Variant == VariantDestructive {
		ev = l.logger.Warn()
	}
	ev.Str("title", n.Title).Str("description", n.Description).Msg("notice")
}

// Tee fans a notice out to every non-nil notifier.
func Tee(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, n Notice) {
		for _, nt := range notifiers {
			if nt != nil {
				nt.Notify(ctx, n)
			}
		}
	})
}
