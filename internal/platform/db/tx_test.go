package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

type fakeBeginner struct {
	tx    *fakeTx
	begun int
}

func (f *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	f.begun++
	return f.tx, nil
}

func TestPoolTxRunner_Commit(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := PoolTxRunner{Pool: b}.WithTx(context.Background(), func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected transaction in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestPoolTxRunner_RollbackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	want := errors.New("boom")
	err := PoolTxRunner{Pool: b}.WithTx(context.Background(), func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if b.tx.committed {
		t.Error("did not expect commit")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}

func TestPoolTxRunner_Nested(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	r := PoolTxRunner{Pool: b}
	err := r.WithTx(context.Background(), func(ctx context.Context) error {
		return r.WithTx(ctx, func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begun != 1 {
		t.Errorf("expected a single transaction, got %d", b.begun)
	}
}

func TestConn_FallsBack(t *testing.T) {
	if got := Conn(context.Background(), nil); got != nil {
		t.Errorf("expected fallback, got %v", got)
	}
}
