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

// Package verify asserts data integrity against a running instance through
// two independent access paths: a direct protocol session opened from the
// instance's connection descriptor, and queries proxied through the
// control plane. Running the same assertion on both paths catches
// divergence between them. Assertions fail fast: a row-count mismatch is a
// correctness violation, never a condition to wait out.
package verify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/pg-lifecycle-harness/internal/cloud"
	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/util"
)

// AccessPath selects the route a verification query takes.
type AccessPath string

const (
	// PathDirect opens an independent protocol-level session, bypassing
	// the control plane.
	PathDirect AccessPath = "direct"

	// PathProxied routes the query through the control-plane command path.
	PathProxied AccessPath = "proxied"
)

// Expectation is one row-count assertion. Transient: used once, discarded.
type Expectation struct {
	Ref      cloud.ResourceRef
	Table    string
	Expected int64
	Path     AccessPath
}

// AssertionError is a failed data-integrity assertion. Always fatal to the
// run; never retried.
type AssertionError struct {
	Ref      cloud.ResourceRef
	Table    string
	Path     AccessPath
	Expected int64
	Actual   int64
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("row count mismatch on %s table %s via %s path: expected %d, got %d",
		e.Ref.String(), e.Table, e.Path, e.Expected, e.Actual)
}

// SQLExecutor is the proxied access path surface. Satisfied by
// *cloud.Client.
type SQLExecutor interface {
	ExecSQL(ctx context.Context, ref cloud.ResourceRef, database, query string) ([]string, error)
}

// Verifier runs data-integrity checks over both access paths.
type Verifier struct {
	proxy    SQLExecutor
	dial     DialFunc
	database string
	timeouts util.TimeoutConfig
	log      logr.Logger
	bus      events.Bus
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger for the verifier.
func WithLogger(log logr.Logger) Option {
	return func(v *Verifier) {
		v.log = log
	}
}

// WithBus sets the event bus verification results are published on.
func WithBus(bus events.Bus) Option {
	return func(v *Verifier) {
		v.bus = bus
	}
}

// WithDialer replaces the direct-path dialer, used by tests.
func WithDialer(dial DialFunc) Option {
	return func(v *Verifier) {
		v.dial = dial
	}
}

// WithDatabase sets the database both access paths target. Empty means the
// instance's default database.
func WithDatabase(database string) Option {
	return func(v *Verifier) {
		v.database = database
	}
}

// WithTimeouts sets the per-dial and per-query bounds. Without them a
// blackholed endpoint would hang a session open until the OS gives up,
// well past any polling deadline.
func WithTimeouts(t util.TimeoutConfig) Option {
	return func(v *Verifier) {
		v.timeouts = t
	}
}

// NewVerifier creates a verifier whose proxied path runs through proxy and
// whose direct path dials pgx sessions.
func NewVerifier(proxy SQLExecutor, opts ...Option) *Verifier {
	v := &Verifier{
		proxy:    proxy,
		dial:     DialDirect,
		timeouts: util.DefaultTimeoutConfig(),
		log:      logr.Discard(),
		bus:      events.NopBus{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Probe returns a connectivity probe over the direct path: each call opens
// a fresh session and performs a live round-trip, so a firewall change is
// observed immediately rather than masked by a pooled connection.
func (v *Verifier) Probe(connString string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sess, err := v.open(ctx, connString)
		if err != nil {
			return err
		}
		defer sess.Close()
		qctx, cancel := v.timeouts.WithQueryTimeout(ctx)
		defer cancel()
		return sess.Ping(qctx)
	}
}

// open dials a direct session under the connect timeout. The bound matters
// during the firewall-revoke window: a blackholed endpoint must fail the
// observation within the poll interval, not hang until the OS abandons the
// TCP handshake.
func (v *Verifier) open(ctx context.Context, connString string) (Session, error) {
	dctx, cancel := v.timeouts.WithConnectTimeout(ctx)
	defer cancel()
	return v.dial(dctx, connString, v.database)
}

// EnsureTable creates the seed table if it does not exist, via the chosen
// path.
func (v *Verifier) EnsureTable(ctx context.Context, ref cloud.ResourceRef, connString, table string, path AccessPath) error {
	return v.exec(ctx, ref, connString, path, ensureTableSQL(table))
}

// InsertRows seeds n rows into the table via the chosen path.
func (v *Verifier) InsertRows(ctx context.Context, ref cloud.ResourceRef, connString, table string, n int, path AccessPath) error {
	return v.exec(ctx, ref, connString, path, insertRowsSQL(table, n))
}

func (v *Verifier) exec(ctx context.Context, ref cloud.ResourceRef, connString string, path AccessPath, sql string) error {
	switch path {
	case PathDirect:
		sess, err := v.open(ctx, connString)
		if err != nil {
			return err
		}
		defer sess.Close()
		qctx, cancel := v.timeouts.WithQueryTimeout(ctx)
		defer cancel()
		return sess.Exec(qctx, sql)
	case PathProxied:
		_, err := v.proxy.ExecSQL(ctx, ref, v.database, sql)
		return err
	default:
		return fmt.Errorf("unknown access path %q", path)
	}
}

// Count returns the table's row count via the chosen path.
func (v *Verifier) Count(ctx context.Context, ref cloud.ResourceRef, connString, table string, path AccessPath) (int64, error) {
	switch path {
	case PathDirect:
		sess, err := v.open(ctx, connString)
		if err != nil {
			return 0, err
		}
		defer sess.Close()
		qctx, cancel := v.timeouts.WithQueryTimeout(ctx)
		defer cancel()
		return sess.Count(qctx, table)
	case PathProxied:
		rows, err := v.proxy.ExecSQL(ctx, ref, v.database, rowCountSQL(table))
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, fmt.Errorf("%w: count query returned no rows", cloud.ErrMalformedResponse)
		}
		count, err := strconv.ParseInt(rows[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: count query returned %q", cloud.ErrMalformedResponse, rows[0])
		}
		return count, nil
	default:
		return 0, fmt.Errorf("unknown access path %q", path)
	}
}

// AssertRowCount checks the expectation exactly. A mismatch returns a
// typed *AssertionError the workflow treats as fatal; it is not a
// convergeable condition and must not be retried.
func (v *Verifier) AssertRowCount(ctx context.Context, exp Expectation, connString string) error {
	actual, err := v.Count(ctx, exp.Ref, connString, exp.Table, exp.Path)
	if err != nil {
		return fmt.Errorf("row count via %s path: %w", exp.Path, err)
	}
	if actual != exp.Expected {
		return &AssertionError{
			Ref:      exp.Ref,
			Table:    exp.Table,
			Path:     exp.Path,
			Expected: exp.Expected,
			Actual:   actual,
		}
	}

	v.log.Info("row count verified",
		"resource", exp.Ref.String(), "table", exp.Table, "path", string(exp.Path), "count", actual)
	_ = v.bus.Publish(ctx, events.NewRowCountVerified(exp.Ref.String(), exp.Table, string(exp.Path), actual))
	return nil
}
