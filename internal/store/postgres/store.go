// Package postgres implements store.Store on PostgreSQL using pgx.
//
// InTx maps the transaction-executor contract onto serializable
// transactions: conflicting concurrent units fail with a serialization
// error, are retried with backoff, and surface store.ErrContention once the
// attempt budget is exhausted.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/store"
)

// maxTxAttempts bounds the serializable retry loop before ErrContention.
const maxTxAttempts = 8

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same store code serves both direct and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds configuration for the PostgreSQL store.
type Config struct {
	Pool PoolConfig

	// AutoMigrate runs the embedded schema migrations on startup.
	AutoMigrate bool
}

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a PostgreSQL-backed store, optionally running migrations.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Orgs returns an auto-committing org view backed by the pool.
func (s *Store) Orgs() store.OrgStore { return &orgStore{q: s.pool} }

// Users returns an auto-committing user view backed by the pool.
func (s *Store) Users() store.UserStore { return &userStore{q: s.pool} }

// Registrations returns an auto-committing registration view backed by the pool.
func (s *Store) Registrations() store.RegistrationStore { return &registrationStore{q: s.pool} }

// txStores serves the Stores contract inside one transaction.
type txStores struct {
	tx pgx.Tx
}

var _ store.Stores = (*txStores)(nil)

func (t *txStores) Orgs() store.OrgStore                   { return &orgStore{q: t.tx} }
func (t *txStores) Users() store.UserStore                 { return &userStore{q: t.tx} }
func (t *txStores) Registrations() store.RegistrationStore { return &registrationStore{q: t.tx} }

// InTx runs fn in a serializable transaction with bounded retry on
// conflicts.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	attempt := 0

	op := func() (struct{}, error) {
		attempt++
		err := s.runOnce(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if isSerializationFailure(err) {
			log.Debug().Int("attempt", attempt).Msg("Transaction conflict, retrying")
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTxAttempts),
	)
	if err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, store.ErrContention)
		}
		return err
	}
	return nil
}

// runOnce executes a single transaction attempt.
func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(ctx, &txStores{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
