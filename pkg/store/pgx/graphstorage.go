// Package pgx implements store.GraphStorage on PostgreSQL with pgvector.
// Nodes and edges live in plain tables; every edge kind is either a foreign
// key or a join table keyed on both endpoints, so INSERT ... ON CONFLICT
// gives merge semantics.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kgrag/backend/pkg/common"
	"github.com/kgrag/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	BeginTx(ctx context.Context, txOptions pgxv5.TxOptions) (pgxv5.Tx, error)
}

// GraphDBStorage implements the GraphStorage interface using PostgreSQL with
// pgvector for vector similarity search. The connection is owned by the
// caller; usually a *pgxpool.Pool created with db.NewPool.
type GraphDBStorage struct {
	conn pgxIConn

	indexMu sync.RWMutex
	index   *store.VectorIndex
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// NewGraphDBStorage wraps conn. The schema from internal/db must be applied.
func NewGraphDBStorage(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

// write runs a single mutation in its own read-write transaction.
func (s *GraphDBStorage) write(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx, err := s.conn.BeginTx(ctx, pgxv5.TxOptions{AccessMode: pgxv5.ReadWrite})
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	return tag, nil
}

// read runs fn in a read-only transaction so multi-query reads see one
// snapshot.
func (s *GraphDBStorage) read(ctx context.Context, fn func(tx pgxv5.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, pgxv5.TxOptions{
		AccessMode: pgxv5.ReadOnly,
		IsoLevel:   pgxv5.RepeatableRead,
	})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const (
	pgForeignKeyViolation = "23503"
	pgDataException       = "22000"
)

// classify maps driver errors onto the store's error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgForeignKeyViolation:
			return common.NotFoundError(op, "missing parent: %s", pgErr.Detail)
		case pgErr.Code == pgDataException && strings.Contains(pgErr.Message, "dimensions"):
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, store.ErrDimensionMismatch)
		}
	}
	return common.StoreError(op, err)
}

// Close closes the underlying connection if it can be closed.
func (s *GraphDBStorage) Close() {
	if c, ok := s.conn.(interface{ Close() }); ok {
		c.Close()
	}
}
