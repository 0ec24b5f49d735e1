package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/fileimport/internal/core"
)

var _ core.Processor[[]string] = (*Sink)(nil)

// PgxProvider opens statements on a pgx connection pool.
//
// Each file gets its own pooled connection. Batches are sent with
// pgx.Batch inside a transaction that is begun lazily by the first flush
// after a Commit or Rollback.
//
// When Tx is set the provider works inside that caller-owned transaction
// instead: no connection is acquired and Commit/Rollback are no-ops. Use it
// together with CommitExternal.
type PgxProvider struct {
	Pool *pgxpool.Pool
	SQL  string
	Tx   pgx.Tx
}

// NewPgxProvider returns a provider running sql on pool.
func NewPgxProvider(pool *pgxpool.Pool, sql string) (*PgxProvider, error) {
	if pool == nil {
		return nil, &core.ConfigError{Component: "pgx provider", Field: "pool", Reason: "is required"}
	}
	if sql == "" {
		return nil, &core.ConfigError{Component: "pgx provider", Field: "sql", Reason: "is required"}
	}
	return &PgxProvider{Pool: pool, SQL: sql}, nil
}

// InTx returns a copy of p that runs inside tx.
func (p *PgxProvider) InTx(tx pgx.Tx) *PgxProvider {
	cp := *p
	cp.Tx = tx
	return &cp
}

// Open implements StatementProvider.
func (p *PgxProvider) Open(ctx context.Context, fc *core.FileContext) (Statement, error) {
	if p.Tx != nil {
		return &pgxStatement{sql: p.SQL, tx: p.Tx, external: true}, nil
	}
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgxStatement{sql: p.SQL, conn: conn}, nil
}

type pgxStatement struct {
	sql      string
	conn     *pgxpool.Conn
	tx       pgx.Tx
	external bool

	params []any
	batch  *pgx.Batch
}

func (s *pgxStatement) SetParam(index int, value any) {
	for len(s.params) <= index {
		s.params = append(s.params, nil)
	}
	s.params[index] = value
}

func (s *pgxStatement) AddBatch() error {
	if s.batch == nil {
		s.batch = &pgx.Batch{}
	}
	s.batch.Queue(s.sql, s.params...)
	// the queued query keeps its own slice
	s.params = make([]any, len(s.params))
	return nil
}

func (s *pgxStatement) ExecBatch(ctx context.Context) error {
	if s.batch == nil || s.batch.Len() == 0 {
		return nil
	}
	batch := s.batch
	s.batch = nil

	if s.tx == nil {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}

	results := s.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return describePgError(fmt.Sprintf("batch row %d", i+1), err)
		}
	}
	if err := results.Close(); err != nil {
		return describePgError("close batch", err)
	}
	return nil
}

func (s *pgxStatement) Commit(ctx context.Context) error {
	if s.external || s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit(ctx)
}

func (s *pgxStatement) Rollback(ctx context.Context) error {
	s.batch = nil
	if s.external || s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (s *pgxStatement) Close(ctx context.Context) error {
	err := s.Rollback(ctx)
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
	return err
}

// describePgError adds the SQLSTATE and constraint of a server error.
func describePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%s: %s (SQLSTATE %s, constraint %s): %w", op, pgErr.Message, pgErr.Code, pgErr.ConstraintName, err)
		}
		return fmt.Errorf("%s: %s (SQLSTATE %s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
