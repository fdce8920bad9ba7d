// Package repository handles all interactions with the database.
//
// It contains raw SQL queries and methods to fetch, persist,
// or update data, abstracting SQL logic away from the service layer.
package repository

import (
	"context"
	"errors"

	"github.com/deppfellow/academia/internal/server"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by single-row lookups that match nothing.
// List queries never return it; they return an empty slice.
var ErrNotFound = errors.New("record not found")

// Repositories is a container for all repository instances.
type Repositories struct {
	Seasons     *SeasonRepository
	TaskResults *TaskResultRepository
	Subjects    *SubjectRepository
	Admins      *AdminRepository
}

// NewRepositories builds every repository on the server's connection pool.
func NewRepositories(s *server.Server) *Repositories {
	pool := s.DB.Pool
	return &Repositories{
		Seasons:     NewSeasonRepository(pool),
		TaskResults: NewTaskResultRepository(pool),
		Subjects:    NewSubjectRepository(pool),
		Admins:      NewAdminRepository(pool),
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

// one collects exactly one row, mapping "no rows" to ErrNotFound.
func one[T any](rows pgx.Rows, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// many collects all rows into a non-nil slice.
func many[T any](rows pgx.Rows, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
