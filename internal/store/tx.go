package store

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/storesync/internal/delta"
)

// UnitOfWork is the set of operations available inside one atomic batch.
type UnitOfWork interface {
	Columns(ctx context.Context, table string) ([]string, error)
	Deltas(ctx context.Context, kind delta.ChangeKind) iter.Seq2[delta.DeltaRecord, error]
	InsertStore(ctx context.Context, projection []string, rec delta.MasterStoreRecord) error
	StoreIDs(ctx context.Context) iter.Seq2[string, error]
	DeleteStore(ctx context.Context, storeID string) (int64, error)
	CountStores(ctx context.Context) (int64, error)
	ConsumeDeltas(ctx context.Context, objectIDs []int64) (int64, error)
	RecordRun(ctx context.Context, run RunRecord) error
}

// Tx is a UnitOfWork bound to an open database transaction.
type Tx struct {
	conn
}

var _ UnitOfWork = (*Tx)(nil)

// WithinTx runs fn inside one transaction. The transaction commits only if
// fn returns nil; any error or panic rolls it back.
//
// fn must not use the Store directly. On SQLite the pool has a single
// connection and the transaction already holds it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(ctx, &Tx{conn{q: tx, dialect: s.dialect}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
