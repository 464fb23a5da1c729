package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	// Recent returns the n newest claims.
	Recent(ctx context.Context, n int) ([]*Claim, error)
	Stats(ctx context.Context) (*Stats, error)
	SetStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) error
	Assign(ctx context.Context, id, advocateID uuid.UUID, at time.Time) error
}

// StatusUpdate is applied by SetStatus. A nil Notes keeps the stored notes.
type StatusUpdate struct {
	Status     string
	Notes      *string
	ReviewedBy *uuid.UUID
	At         time.Time
}

type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, h *HistoryEntry) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*HistoryEntry, error)
}

// ArtifactRepository stores contexts and workflows. Each claim has at most
// one of each; a second insert returns ErrAlreadyExists.
type ArtifactRepository interface {
	CreateContext(ctx context.Context, c *Context) error
	GetContext(ctx context.Context, claimID uuid.UUID) (*Context, error)
	ListContexts(ctx context.Context) ([]*Context, error)
	CreateWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, claimID uuid.UUID) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
}
