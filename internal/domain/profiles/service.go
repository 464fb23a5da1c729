package profiles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/healthadvocate/advocate/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Profile) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if p.Role == "" {
		p.Role = RolePatient
	}
	if !ValidRole(p.Role) {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	return s.repo.Create(ctx, p)
}

// CreateForAccount creates the profile of a newly registered account.
func (s *Service) CreateForAccount(ctx context.Context, accountID uuid.UUID, email string, meta auth.Metadata) error {
	p := &Profile{
		UserID: accountID,
		Email:  email,
		Role:   meta.Role,
	}
	if meta.FirstName != "" {
		p.FirstName = &meta.FirstName
	}
	if meta.LastName != "" {
		p.LastName = &meta.LastName
	}
	return s.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// ForUser returns ErrNotFound when the user has no profile.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, role string, limit, offset int) ([]*Profile, int, error) {
	if role != "" && !ValidRole(role) {
		return nil, 0, fmt.Errorf("invalid role %q", role)
	}
	return s.repo.List(ctx, role, limit, offset)
}
