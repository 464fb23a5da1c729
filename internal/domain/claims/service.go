package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthadvocate/advocate/internal/platform/db"
)

// MaxRecent caps the size of a recent-claims listing.
const MaxRecent = 100

// InputError is a request the service rejects before touching storage.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func invalidf(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

type Service struct {
	claims    ClaimRepository
	documents DocumentRepository
	history   HistoryRepository
	artifacts ArtifactRepository
	tx        db.TxRunner
	now       func() time.Time
}

func NewService(claims ClaimRepository, documents DocumentRepository, history HistoryRepository, artifacts ArtifactRepository, tx db.TxRunner) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		claims:    claims,
		documents: documents,
		history:   history,
		artifacts: artifacts,
		tx:        tx,
		now:       time.Now,
	}
}

// -- Queries --

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	if f.Status != "" && !ValidStatus(NormalizeStatus(f.Status)) {
		return nil, 0, invalidf("invalid status %q", f.Status)
	}
	if f.Priority != "" && !ValidPriority(f.Priority) {
		return nil, 0, invalidf("invalid priority %q", f.Priority)
	}
	return s.claims.List(ctx, f, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.claims.Stats(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

// Latest returns the most recently created claim, or ErrNotFound.
func (s *Service) Latest(ctx context.Context) (*Claim, error) {
	items, err := s.claims.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// Recent returns up to n newest claims; n above MaxRecent is capped.
func (s *Service) Recent(ctx context.Context, n int) ([]*Claim, error) {
	if n < 1 {
		return nil, invalidf("count must be at least 1")
	}
	if n > MaxRecent {
		n = MaxRecent
	}
	return s.claims.Recent(ctx, n)
}

func (s *Service) Documents(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.documents.ListByClaim(ctx, claimID)
}

func (s *Service) History(ctx context.Context, claimID uuid.UUID) ([]*HistoryEntry, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.history.ListByClaim(ctx, claimID)
}

// -- Review workflow --

// Review moves a claim to newStatus and records who reviewed it. The status
// must be known and differ from the current one.
func (s *Service) Review(ctx context.Context, claimID uuid.UUID, newStatus, notes string, reviewer *uuid.UUID) (*Claim, error) {
	status := NormalizeStatus(newStatus)
	if !ValidStatus(status) {
		return nil, invalidf("invalid status %q", newStatus)
	}
	var note *string
	if n := strings.TrimSpace(notes); n != "" {
		note = &n
	}
	return s.transition(ctx, claimID, status, note, reviewer, func(from string) (string, string) {
		return ActionStatusChanged, fmt.Sprintf("Status changed from %s to %s", from, status)
	})
}

// Flag marks a claim for attention. reason is required and replaces the
// claim notes.
func (s *Service) Flag(ctx context.Context, claimID uuid.UUID, reason string, reviewer *uuid.UUID) (*Claim, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidf("reason is required")
	}
	return s.transition(ctx, claimID, StatusFlagged, &reason, reviewer, func(string) (string, string) {
		return ActionClaimFlagged, "Claim flagged: " + reason
	})
}

func (s *Service) transition(ctx context.Context, claimID uuid.UUID, status string, notes *string, reviewer *uuid.UUID, entry func(from string) (action, details string)) (*Claim, error) {
	var updated *Claim
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.claims.GetByID(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status == status {
			return invalidf("claim is already %s", StatusLabel(status))
		}

		at := s.now().UTC()
		if err := s.claims.SetStatus(ctx, claimID, StatusUpdate{Status: status, Notes: notes, ReviewedBy: reviewer, At: at}); err != nil {
			return fmt.Errorf("update claim status: %w", err)
		}

		action, details := entry(c.Status)
		if err := s.history.Create(ctx, &HistoryEntry{
			ClaimID:     claimID,
			Action:      action,
			Details:     &details,
			PerformedBy: reviewer,
		}); err != nil {
			return fmt.Errorf("record claim history: %w", err)
		}

		c.Status = status
		if notes != nil {
			c.Notes = notes
		}
		if reviewer != nil {
			c.ReviewedBy = reviewer
		}
		c.ReviewedAt = &at
		c.UpdatedAt = at
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Assign sets the advocate responsible for a claim.
func (s *Service) Assign(ctx context.Context, claimID, advocateID uuid.UUID, by *uuid.UUID) (*Claim, error) {
	if advocateID == uuid.Nil {
		return nil, invalidf("advocate_id is required")
	}
	var updated *Claim
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.claims.GetByID(ctx, claimID)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		if err := s.claims.Assign(ctx, claimID, advocateID, at); err != nil {
			return err
		}
		details := "Assigned to advocate " + advocateID.String()
		if err := s.history.Create(ctx, &HistoryEntry{
			ClaimID:     claimID,
			Action:      ActionAdvocateAssigned,
			Details:     &details,
			PerformedBy: by,
		}); err != nil {
			return fmt.Errorf("record claim history: %w", err)
		}
		c.AssignedAdvocateID = &advocateID
		c.UpdatedAt = at
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordHistory appends a history entry for an existing claim.
func (s *Service) RecordHistory(ctx context.Context, claimID uuid.UUID, action, details string, by *uuid.UUID) error {
	return s.history.Create(ctx, &HistoryEntry{
		ClaimID:     claimID,
		Action:      action,
		Details:     &details,
		PerformedBy: by,
	})
}

// -- Contexts and workflows --

func (s *Service) PushContext(ctx context.Context, claimID uuid.UUID, text string) (*Context, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidf("context is required")
	}
	c := &Context{ClaimID: claimID, Context: text}
	if err := s.artifacts.CreateContext(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetContext(ctx context.Context, claimID uuid.UUID) (*Context, error) {
	return s.artifacts.GetContext(ctx, claimID)
}

func (s *Service) ListContexts(ctx context.Context) ([]*Context, error) {
	return s.artifacts.ListContexts(ctx)
}

func (s *Service) PushWorkflow(ctx context.Context, claimID uuid.UUID, text, analysis, markdown string) (*Workflow, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidf("context is required")
	}
	w := &Workflow{ClaimID: claimID, Context: text, Analysis: analysis, Markdown: markdown}
	if err := s.artifacts.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) GetWorkflow(ctx context.Context, claimID uuid.UUID) (*Workflow, error) {
	return s.artifacts.GetWorkflow(ctx, claimID)
}

func (s *Service) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	return s.artifacts.ListWorkflows(ctx)
}
