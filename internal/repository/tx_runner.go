package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner provides transactional repositories using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx runs fn inside a transaction, committing when it returns nil.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos *TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &TxRepositories{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// TxRepositories hands out repositories bound to one transaction.
type TxRepositories struct {
	tx pgx.Tx
}

func (r *TxRepositories) Chunks() *ChunkRepository {
	return NewChunkRepositoryWithTx(r.tx)
}
