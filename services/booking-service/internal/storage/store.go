package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/libs/db"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func (d dialect) String() string {
	if d == dialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// Store owns the slots, bookings and outbox_events tables. Every read and
// write goes through a transaction opened by InTx.
type Store struct {
	dialect dialect
	pool    *db.Pool
	sqlDB   *sql.DB
}

func NewPostgres(pool *db.Pool) *Store {
	return &Store{dialect: dialectPostgres, pool: pool}
}

func NewSQLite(conn *sql.DB) *Store {
	return &Store{dialect: dialectSQLite, sqlDB: conn}
}

func (s *Store) Driver() string { return s.dialect.String() }

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	switch s.dialect {
	case dialectPostgres:
		if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	case dialectSQLite:
		if _, err := s.sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// InTx runs fn in one transaction, committing when fn returns nil and
// rolling back otherwise. The error from fn is returned unchanged.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	switch s.dialect {
	case dialectPostgres:
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if err := fn(&Tx{q: pgxQueryer{tx: tx}, dialect: s.dialect}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	case dialectSQLite:
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(&Tx{q: sqlQueryer{tx: tx}, dialect: s.dialect}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	}
	return errors.New("storage: unknown dialect")
}

func (s *Store) Ping(ctx context.Context) error {
	if s.dialect == dialectPostgres {
		return db.ReadyCheck(s.pool)(ctx)
	}
	return db.SQLiteReadyCheck(s.sqlDB)(ctx)
}
