package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a row the caller expected does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCode is returned when a verification code collides with an
	// existing join request. Callers should surface this as retryable.
	ErrDuplicateCode = errors.New("verification code already in use")

	// ErrClusterConflict is returned when a citizen already belongs to a
	// different cluster than the one being joined.
	ErrClusterConflict = errors.New("citizen already belongs to a different cluster")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repository
// methods run against whichever the context carries.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// TxManager runs a function inside a single database transaction. Repository
// calls made with the context it passes down join that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgTxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &pgTxManager{pool: pool}
}

func (m *pgTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryEngine returns the transaction stashed in ctx, or the pool.
func queryEngine(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// memoryTxManager is used with the in-memory repositories; each of those is
// internally synchronized, so the callback simply runs as-is.
type memoryTxManager struct{}

func NewMemoryTxManager() TxManager {
	return &memoryTxManager{}
}

func (m *memoryTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ============================================
// Repositories Container
// ============================================

type Repositories struct {
	Tx                TxManager
	CitizenRepo       CitizenRepository
	ClusterMemberRepo ClusterMemberRepository
	JoinRequestRepo   JoinRequestRepository
	EmailLogRepo      EmailLogRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Tx:                NewTxManager(pool),
		CitizenRepo:       NewCitizenRepository(pool),
		ClusterMemberRepo: NewClusterMemberRepository(pool),
		JoinRequestRepo:   NewJoinRequestRepository(pool),
		EmailLogRepo:      NewEmailLogRepository(pool),
	}
}

// NewMemoryRepositories wires the in-memory implementations together. Used by
// tests and for running the API without a database.
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Tx:                NewMemoryTxManager(),
		CitizenRepo:       NewMemoryCitizenRepository(),
		ClusterMemberRepo: NewMemoryClusterMemberRepository(),
		JoinRequestRepo:   NewMemoryJoinRequestRepository(),
		EmailLogRepo:      NewMemoryEmailLogRepository(),
	}
}
