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

package converge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-lifecycle-harness/internal/cloud"
	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/fields"
)

var testRef = cloud.ResourceRef{Zone: "fi-hel1", Name: "pglc-primary"}

// scriptedReader replays canned field values per field name, repeating the
// last one once exhausted.
type scriptedReader struct {
	mu       sync.Mutex
	script   map[string][]fields.Value
	errs     map[string]error
	pos      map[string]int
	statuses []string
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{
		script: make(map[string][]fields.Value),
		errs:   make(map[string]error),
		pos:    make(map[string]int),
	}
}

func (r *scriptedReader) set(field string, values ...fields.Value) {
	r.script[field] = values
}

func (r *scriptedReader) GetField(_ context.Context, _ cloud.ResourceRef, name string) (fields.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.script[name]
	if len(seq) == 0 {
		return fields.Absent(name), r.errs[name]
	}
	i := r.pos[name]
	if i < len(seq)-1 {
		r.pos[name] = i + 1
	}
	return seq[i], r.errs[name]
}

func (r *scriptedReader) UpgradeStatus(context.Context, cloud.ResourceRef) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	s := r.statuses[0]
	if len(r.statuses) > 1 {
		r.statuses = r.statuses[1:]
	}
	return s
}

func fastOpts() []Option {
	return []Option{WithInterval(2 * time.Millisecond), WithTimeout(200 * time.Millisecond)}
}

func TestStateReached(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldState,
		fields.Absent(fields.FieldState),
		fields.Concrete(fields.FieldState, "rebuilding"),
		fields.Concrete(fields.FieldState, "running"),
	)
	w := NewWaiter(reader)

	outcome, err := w.StateReached(context.Background(), testRef, "running", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, "running", outcome.Last.Raw)
}

func TestStateReachedKeepsPollingThroughTransportErrors(t *testing.T) {
	reader := newScriptedReader()
	reader.errs[fields.FieldState] = cloud.ErrTransport
	reader.set(fields.FieldState,
		fields.Absent(fields.FieldState),
		fields.Absent(fields.FieldState),
		fields.Concrete(fields.FieldState, "running"),
	)
	w := NewWaiter(reader)

	outcome, err := w.StateReached(context.Background(), testRef, "running", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
}

func TestStateReachedTimesOut(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldState, fields.Concrete(fields.FieldState, "rebuilding"))
	w := NewWaiter(reader)

	outcome, err := w.StateReached(context.Background(), testRef, "running",
		WithInterval(2*time.Millisecond), WithTimeout(10*time.Millisecond))

	require.NoError(t, err)
	assert.False(t, outcome.Converged)
	assert.Equal(t, "rebuilding", outcome.Last.Raw)
}

func TestFieldReachedNumericNormalization(t *testing.T) {
	// "128.0" observed must converge against target "128".
	reader := newScriptedReader()
	reader.set(fields.FieldStorageSizeGiB,
		fields.Concrete(fields.FieldStorageSizeGiB, "64"),
		fields.Concrete(fields.FieldStorageSizeGiB, "128.0"),
	)
	w := NewWaiter(reader)

	outcome, err := w.FieldReached(context.Background(), testRef, fields.FieldStorageSizeGiB, "128", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestFieldReachedStringMatch(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldVMSize,
		fields.Concrete(fields.FieldVMSize, "standard-2"),
		fields.Concrete(fields.FieldVMSize, "standard-4"),
	)
	w := NewWaiter(reader)

	outcome, err := w.FieldReached(context.Background(), testRef, fields.FieldVMSize, "standard-4", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
}

func TestVersionReachedSurfacesUpgradeStatus(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldVersion,
		fields.Concrete(fields.FieldVersion, "16"),
		fields.Concrete(fields.FieldVersion, "16"),
		fields.Concrete(fields.FieldVersion, "17"),
	)
	reader.statuses = []string{"copying data", "finalizing"}
	w := NewWaiter(reader, WithStatusReader(reader))

	outcome, err := w.VersionReached(context.Background(), testRef, "17", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, "17", outcome.Last.Raw)
}

func TestConnectivityReached(t *testing.T) {
	attempts := 0
	probe := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	w := NewWaiter(newScriptedReader())

	outcome, err := w.ConnectivityReached(context.Background(), testRef, probe, fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestConnectivityReachedDoesNotConvergeWhileRefused(t *testing.T) {
	probe := func(context.Context) error {
		return errors.New("connection refused")
	}
	w := NewWaiter(newScriptedReader())

	outcome, err := w.ConnectivityReached(context.Background(), testRef, probe,
		WithInterval(2*time.Millisecond), WithTimeout(15*time.Millisecond))

	require.NoError(t, err)
	assert.False(t, outcome.Converged)
}

func TestReplicaCaughtUp(t *testing.T) {
	behind := 2
	probe := func(context.Context) error {
		if behind > 0 {
			behind--
			return errors.New("replica has 1 rows, want 3")
		}
		return nil
	}
	w := NewWaiter(newScriptedReader())

	outcome, err := w.ReplicaCaughtUp(context.Background(), testRef, probe, fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestBackupAvailableConvergesOnPresence(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldEarliestRestoreTime,
		fields.Absent(fields.FieldEarliestRestoreTime),
		fields.Concrete(fields.FieldEarliestRestoreTime, "2026-08-29T10:15:00Z"),
	)
	w := NewWaiter(reader)

	outcome, err := w.BackupAvailable(context.Background(), testRef, fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
}

func TestPollEventsPublished(t *testing.T) {
	reader := newScriptedReader()
	reader.set(fields.FieldState,
		fields.Concrete(fields.FieldState, "rebuilding"),
		fields.Concrete(fields.FieldState, "running"),
	)

	bus := events.NewInMemoryBus()
	var progress, finished int
	bus.Subscribe(events.EventPollProgress, "count", func(context.Context, events.Event) error {
		progress++
		return nil
	})
	bus.Subscribe(events.EventPollFinished, "count", func(context.Context, events.Event) error {
		finished++
		return nil
	})

	w := NewWaiter(reader, WithBus(bus))
	outcome, err := w.StateReached(context.Background(), testRef, "running", fastOpts()...)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 1, progress)
	assert.Equal(t, 1, finished)
}
