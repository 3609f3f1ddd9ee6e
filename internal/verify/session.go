/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package verify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is one direct protocol-level connection to an instance, opened
// from the connection descriptor the control plane publishes. It bypasses
// the control-plane proxy entirely; that is the point.
type Session interface {
	// Exec runs a statement with no result rows.
	Exec(ctx context.Context, sql string) error

	// Count runs a count query over the named table.
	Count(ctx context.Context, table string) (int64, error)

	// Ping performs a live protocol round-trip.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close()
}

// DialFunc opens a direct Session from a connection string. A non-empty
// database overrides the one named in the connection string.
type DialFunc func(ctx context.Context, connString, database string) (Session, error)

// pgxClient is the subset of pgxpool.Pool the session uses, abstracted so
// tests can substitute a mock pool.
type pgxClient interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type pgxSession struct {
	client pgxClient
}

func newPgxSession(client pgxClient) *pgxSession {
	return &pgxSession{client: client}
}

func (s *pgxSession) Exec(ctx context.Context, sql string) error {
	if _, err := s.client.Exec(ctx, sql); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

func (s *pgxSession) Count(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := s.client.QueryRow(ctx, rowCountSQL(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

func (s *pgxSession) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pgxSession) Close() {
	s.client.Close()
}

// DialDirect opens a pooled direct session and verifies it with a ping.
func DialDirect(ctx context.Context, connString, database string) (Session, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if database != "" {
		cfg.ConnConfig.Database = database
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newPgxSession(pool), nil
}
