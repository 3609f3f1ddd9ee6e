//go:build integration

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDirectPath_Integration exercises the direct access path against a
// real PostgreSQL instance.
func TestDirectPath_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpass"),
		postgres.WithDatabase("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		_ = container.Terminate(stopCtx)
	}()

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	t.Run("DialAndPing", func(t *testing.T) {
		sess, err := DialDirect(ctx, connString, "")
		require.NoError(t, err, "Failed to dial direct session")
		defer sess.Close()
		assert.NoError(t, sess.Ping(ctx))
	})

	t.Run("SeedAndCount", func(t *testing.T) {
		v := NewVerifier(nil)

		require.NoError(t, v.EnsureTable(ctx, testRef, connString, "lifecycle_seed", PathDirect))
		require.NoError(t, v.InsertRows(ctx, testRef, connString, "lifecycle_seed", 3, PathDirect))

		err := v.AssertRowCount(ctx, Expectation{
			Ref:      testRef,
			Table:    "lifecycle_seed",
			Expected: 3,
			Path:     PathDirect,
		}, connString)
		assert.NoError(t, err)
	})

	t.Run("MismatchFailsFast", func(t *testing.T) {
		v := NewVerifier(nil)

		err := v.AssertRowCount(ctx, Expectation{
			Ref:      testRef,
			Table:    "lifecycle_seed",
			Expected: 4,
			Path:     PathDirect,
		}, connString)

		var assertErr *AssertionError
		require.ErrorAs(t, err, &assertErr)
		assert.Equal(t, int64(3), assertErr.Actual)
	})

	t.Run("ProbeConverges", func(t *testing.T) {
		v := NewVerifier(nil)
		assert.NoError(t, v.Probe(connString)(ctx))
	})
}
