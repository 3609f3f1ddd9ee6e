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

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-lifecycle-harness/internal/fields"
)

// sequenceObserver returns canned observations in order, repeating the last
// one once the sequence is exhausted.
func sequenceObserver(values ...fields.Value) ObserveFunc {
	i := 0
	return func(context.Context) fields.Value {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func isRunning(v fields.Value) bool {
	return v.Present && v.Raw == "running"
}

func TestWaitConvergesAtIterationK(t *testing.T) {
	observe := sequenceObserver(
		fields.Absent("state"),
		fields.Concrete("state", "rebuilding"),
		fields.Concrete("state", "running"),
	)
	spec := Spec{Interval: 5 * time.Millisecond, Timeout: time.Second}

	outcome, err := Wait(context.Background(), spec, observe, isRunning)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, "running", outcome.Last.Raw)
}

func TestWaitFastPathDoesNotSleep(t *testing.T) {
	observe := sequenceObserver(fields.Concrete("state", "running"))
	spec := Spec{Interval: time.Hour, Timeout: 2 * time.Hour}

	start := time.Now()
	outcome, err := Wait(context.Background(), spec, observe, isRunning)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 1, outcome.Attempts)
	// An hour-long interval must not delay a satisfied first observation.
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitTimesOut(t *testing.T) {
	observe := sequenceObserver(fields.Concrete("state", "rebuilding"))
	spec := Spec{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}

	outcome, err := Wait(context.Background(), spec, observe, isRunning)

	require.NoError(t, err)
	assert.False(t, outcome.Converged)
	assert.GreaterOrEqual(t, outcome.Elapsed, spec.Timeout)
	assert.Equal(t, "rebuilding", outcome.Last.Raw)
}

func TestWaitObservesAtLeastOnceWhenIntervalExceedsTimeout(t *testing.T) {
	calls := 0
	observe := func(context.Context) fields.Value {
		calls++
		return fields.Absent("state")
	}
	spec := Spec{Interval: time.Hour, Timeout: 10 * time.Millisecond}

	outcome, err := Wait(context.Background(), spec, observe, isRunning)

	require.NoError(t, err)
	assert.False(t, outcome.Converged)
	assert.GreaterOrEqual(t, calls, 1)
	// The sleep is clamped to the remaining time, not the full interval.
	assert.Less(t, outcome.Elapsed, time.Second)
}

func TestWaitFinalBoundaryObservationIsChecked(t *testing.T) {
	// The value becomes true only on the observation made at the timeout
	// boundary; it must not be discarded.
	calls := 0
	observe := func(context.Context) fields.Value {
		calls++
		if calls >= 3 {
			return fields.Concrete("state", "running")
		}
		return fields.Concrete("state", "rebuilding")
	}
	spec := Spec{Interval: 10 * time.Millisecond, Timeout: 20 * time.Millisecond}

	outcome, err := Wait(context.Background(), spec, observe, isRunning)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestWaitInvalidSpec(t *testing.T) {
	observe := sequenceObserver(fields.Concrete("state", "running"))

	for _, spec := range []Spec{
		{Interval: 0, Timeout: time.Second},
		{Interval: time.Second, Timeout: 0},
		{Interval: -time.Second, Timeout: time.Second},
	} {
		_, err := Wait(context.Background(), spec, observe, isRunning)
		assert.ErrorIs(t, err, ErrInvalidSpec, "spec=%+v", spec)
	}
}

func TestWaitContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	observe := func(context.Context) fields.Value {
		cancel()
		return fields.Absent("state")
	}
	spec := Spec{Interval: time.Hour, Timeout: 2 * time.Hour}

	_, err := Wait(ctx, spec, observe, isRunning)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitProgressCallback(t *testing.T) {
	observe := sequenceObserver(
		fields.Concrete("state", "rebuilding"),
		fields.Concrete("state", "rebuilding"),
		fields.Concrete("state", "running"),
	)
	spec := Spec{Interval: 2 * time.Millisecond, Timeout: time.Second}

	var progressed []string
	outcome, err := Wait(context.Background(), spec, observe, isRunning,
		WithProgress(func(v fields.Value, elapsed time.Duration, attempt int) {
			progressed = append(progressed, v.Raw)
		}))

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	// Progress fires for non-converged observations only.
	assert.Equal(t, []string{"rebuilding", "rebuilding"}, progressed)
}

func TestUntil(t *testing.T) {
	attempts := 0
	connect := func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	spec := Spec{Interval: 2 * time.Millisecond, Timeout: time.Second}

	outcome, err := Until(context.Background(), spec, "connectivity", connect)

	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestUntilNeverSucceeds(t *testing.T) {
	connect := func(context.Context) error {
		return errors.New("connection refused")
	}
	spec := Spec{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}

	outcome, err := Until(context.Background(), spec, "connectivity", connect)

	require.NoError(t, err)
	assert.False(t, outcome.Converged)
	// The last connection error is retained for diagnostics.
	assert.Equal(t, "connection refused", outcome.Last.Raw)
}
