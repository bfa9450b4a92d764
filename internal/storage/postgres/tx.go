package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/uow"
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

type txKey struct{}

// conn routes queries through the transaction carried by ctx, if any.
type conn struct {
	pool *pgxpool.Pool
}

func (c conn) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return c.pool
}

var _ uow.UnitOfWork = (*TxManager)(nil)

// TxManager runs functions inside a database transaction. Repositories
// created from the same pool pick the transaction up from the context.
type TxManager struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTxManager returns a TxManager. A nil provider disables tracing.
func NewTxManager(pool *pgxpool.Pool, tp trace.TracerProvider) *TxManager {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &TxManager{pool: pool, tracer: tp.Tracer("storefront/postgres")}
}

// RunAtomically commits when fn returns nil and rolls back otherwise,
// including when fn panics. A call nested in another RunAtomically joins
// the outer transaction. Hooks registered with uow.AfterCommit run after
// the outermost commit.
func (m *TxManager) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) (rerr error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	base := ctx
	ctx, commitHooks := uow.WithCommitHooks(ctx)
	ctx, span := m.tracer.Start(ctx, "postgres.RunAtomically")
	defer span.End()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Persistence, err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "rolled back")
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Persistence, err, "commit transaction")
	}
	commitHooks(base)
	return nil
}
