package intake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/healthadvocate/advocate/internal/platform/auth"
)

// Identity strategies accepted by NewResolver.
const (
	StrategyNameHash = "name-hash"
	StrategyKeyed    = "keyed"
)

var ErrEmptyIdentity = errors.New("full name is required to derive an identity")

// IdentityResolver maps the patient section to the user id their profile is
// stored under.
type IdentityResolver interface {
	Resolve(ctx context.Context, p PatientInformation) (uuid.UUID, error)
}

// LegacyNameHash folds name into a 32-bit integer and spreads its hex digits
// across a 36-character identifier. Distinct names collide freely; the value
// only has the lexical shape of a UUID.
func LegacyNameHash(name string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(name)) {
		h = (h << 5) - h + int32(unit)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	hex := fmt.Sprintf("%08x", abs)
	id := fmt.Sprintf("%s-%s-4%s-8%s-%s", hex[0:8], hex[0:4], hex[1:4], hex[0:3], hex)
	if n := 36 - len(id); n > 0 {
		id += strings.Repeat("0", n)
	}
	return id
}

// NameHashResolver derives the id with LegacyNameHash over the full name as
// entered.
type NameHashResolver struct{}

func (NameHashResolver) Resolve(_ context.Context, p PatientInformation) (uuid.UUID, error) {
	if strings.TrimSpace(p.FullName) == "" {
		return uuid.Nil, ErrEmptyIdentity
	}
	return uuid.Parse(LegacyNameHash(p.FullName))
}

// KeyedResolver derives a version 8 UUID from an HMAC-SHA256 of the
// normalized full name.
type KeyedResolver struct {
	key []byte
}

// NewKeyedResolver requires a key of at least 16 bytes.
func NewKeyedResolver(key []byte) (*KeyedResolver, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("identity key must be at least 16 bytes, got %d", len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &KeyedResolver{key: k}, nil
}

func (r *KeyedResolver) Resolve(_ context.Context, p PatientInformation) (uuid.UUID, error) {
	name := normalizeName(p.FullName)
	if name == "" {
		return uuid.Nil, ErrEmptyIdentity
	}
	mac := hmac.New(sha256.New, r.key)
	mac.Write([]byte(name))
	sum := mac.Sum(nil)

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x80
	id[8] = (id[8] & 0x3f) | 0x80
	return id, nil
}

// normalizeName lower-cases the name and collapses runs of whitespace.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SessionResolver files the claim under the signed-in account when a patient
// submits for themselves. Advocates, admins and patients submitting for
// someone else get the identity derived from the form by Fallback.
type SessionResolver struct {
	Fallback IdentityResolver
}

func (r SessionResolver) Resolve(ctx context.Context, p PatientInformation) (uuid.UUID, error) {
	if id, ok := selfSubmitter(ctx, p); ok {
		return id, nil
	}
	if r.Fallback == nil {
		return uuid.Nil, ErrEmptyIdentity
	}
	return r.Fallback.Resolve(ctx, p)
}

func selfSubmitter(ctx context.Context, p PatientInformation) (uuid.UUID, bool) {
	if p.RelationshipToPatient != "" && p.RelationshipToPatient != RelationshipSelf {
		return uuid.Nil, false
	}
	if !slices.Contains(auth.RolesFromContext(ctx), auth.RolePatient) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NewResolver builds the resolver for strategy, wrapped so signed-in
// patients keep their account id.
func NewResolver(strategy string, key []byte) (IdentityResolver, error) {
	var base IdentityResolver
	switch strategy {
	case "", StrategyNameHash:
		base = NameHashResolver{}
	case StrategyKeyed:
		kr, err := NewKeyedResolver(key)
		if err != nil {
			return nil, err
		}
		base = kr
	default:
		return nil, fmt.Errorf("unknown identity strategy %q", strategy)
	}
	return SessionResolver{Fallback: base}, nil
}
