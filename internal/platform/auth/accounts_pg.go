package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthadvocate/advocate/internal/platform/db"
)

const accountColumns = `id, email, password_hash, metadata, confirmation_token, confirmed_at, last_sign_in_at, created_at`

type accountStorePG struct {
	q db.Querier
}

// NewAccountStore returns a Postgres-backed AccountStore.
func NewAccountStore(q db.Querier) AccountStore {
	return &accountStorePG{q: q}
}

func (s *accountStorePG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.q)
}

func (s *accountStorePG) Create(ctx context.Context, a *Account) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO auth_accounts (id, email, password_hash, metadata, confirmation_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Email, a.PasswordHash, meta, a.ConfirmationToken, a.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *accountStorePG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(s.conn(ctx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM auth_accounts WHERE email = $1`, email))
}

func (s *accountStorePG) Confirm(ctx context.Context, token string, at time.Time) (*Account, error) {
	return scanAccount(s.conn(ctx).QueryRow(ctx, `
		UPDATE auth_accounts SET confirmed_at = $2, confirmation_token = NULL
		WHERE confirmation_token = $1
		RETURNING `+accountColumns, token, at))
}

func (s *accountStorePG) TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.conn(ctx).Exec(ctx, `UPDATE auth_accounts SET last_sign_in_at = $2 WHERE id = $1`, id, at)
	return err
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var meta []byte
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &meta, &a.ConfirmationToken,
		&a.ConfirmedAt, &a.LastSignInAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &a, nil
}
