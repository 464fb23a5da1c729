package profiles

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("profile not found")

type Repository interface {
	// FindByUserID returns (nil, nil) when no profile exists for userID.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	List(ctx context.Context, role string, limit, offset int) ([]*Profile, int, error)
}
