package profiles

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthadvocate/advocate/internal/platform/auth"
)

const (
	RolePatient  = auth.RolePatient
	RoleAdvocate = auth.RoleAdvocate
	RoleAdmin    = auth.RoleAdmin
)

// Profile maps to the profiles table. UserID is the account id for
// registered users and the derived pseudo-identity for anonymous intake.
type Profile struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	FirstName *string   `db:"first_name" json:"first_name,omitempty"`
	LastName  *string   `db:"last_name" json:"last_name,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts that are set.
func (p *Profile) FullName() string {
	name := ""
	if p.FirstName != nil {
		name = *p.FirstName
	}
	if p.LastName != nil && *p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *p.LastName
	}
	return name
}

func ValidRole(role string) bool {
	return auth.ValidRole(role)
}
