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

// Package poll implements the bounded observe-until-predicate loop every
// wait condition in the harness runs on. There is exactly one loop; state
// waits, field waits, version waits, connectivity probes and backup checks
// are all thin predicate/observe pairs handed to Wait.
//
// Polling is fixed-interval. The state transitions being observed take
// minutes, so backoff buys nothing and makes timeout arithmetic harder to
// reason about.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/pg-lifecycle-harness/internal/fields"
)

// ErrInvalidSpec is returned when a Spec cannot produce a meaningful poll:
// a loop that could make zero attempts is an error, never a silent no-op.
var ErrInvalidSpec = errors.New("poll: interval and timeout must be positive")

// Spec bounds one poll: how often to observe and how long to keep trying.
// Immutable, constructed per call site.
type Spec struct {
	// Interval is the fixed delay between observations.
	Interval time.Duration

	// Timeout is the hard wall-clock ceiling for the whole poll.
	Timeout time.Duration
}

// Validate rejects specs that could not perform a single attempt.
// A Timeout shorter than Interval is allowed: the sleep is clamped to the
// remaining time, so at least one observation always happens.
func (s Spec) Validate() error {
	if s.Interval <= 0 || s.Timeout <= 0 {
		return ErrInvalidSpec
	}
	return nil
}

// Outcome is the terminal result of a poll: either converged on the value
// that satisfied the predicate, or timed out holding the last observation.
// Context cancellation is surfaced as an error from Wait, not as an Outcome.
type Outcome struct {
	// Converged reports whether the predicate was satisfied in time.
	Converged bool

	// Last is the final observed value: the converging value on success,
	// the last non-satisfying observation on timeout.
	Last fields.Value

	// Elapsed is the wall-clock time spent polling.
	Elapsed time.Duration

	// Attempts is the number of observations made.
	Attempts int
}

// ObserveFunc produces one observation of the watched resource. It is
// invoked once per iteration and must not cache across iterations.
type ObserveFunc func(ctx context.Context) fields.Value

// Predicate decides whether an observation satisfies the wait condition.
type Predicate func(fields.Value) bool

// ProgressFunc receives each non-converged observation for logging. It is a
// side effect only and must not affect control flow.
type ProgressFunc func(v fields.Value, elapsed time.Duration, attempt int)

type options struct {
	progress ProgressFunc
}

// Option configures a Wait call.
type Option func(*options)

// WithProgress registers a callback invoked after each observation that did
// not satisfy the predicate.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// Wait observes until the predicate holds or the timeout elapses.
//
// The first observation is immediate and a satisfying first observation
// returns without sleeping. Between observations Wait sleeps the fixed
// interval, clamped to the remaining time when less than one full interval
// is left, so the loop never overshoots the timeout by a full interval and
// the final observation lands at the timeout boundary. A value that becomes
// true exactly at the boundary is therefore never discarded.
//
// Wait returns a non-nil error only for an invalid spec or a cancelled
// context; a timeout is a distinguished Outcome, not an error.
func Wait(ctx context.Context, spec Spec, observe ObserveFunc, pred Predicate, opts ...Option) (Outcome, error) {
	if err := spec.Validate(); err != nil {
		return Outcome{}, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	attempts := 0

	for {
		last := observe(ctx)
		attempts++
		elapsed := time.Since(start)

		if pred(last) {
			return Outcome{Converged: true, Last: last, Elapsed: elapsed, Attempts: attempts}, nil
		}

		remaining := spec.Timeout - elapsed
		if remaining <= 0 {
			// This observation was the boundary check.
			return Outcome{Last: last, Elapsed: elapsed, Attempts: attempts}, nil
		}

		if o.progress != nil {
			o.progress(last, elapsed, attempts)
		}

		sleep := spec.Interval
		if sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Last: last, Elapsed: time.Since(start), Attempts: attempts}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Until is a convenience wrapper for conditions that are their own
// observation, such as an active connection attempt: ok means converged,
// anything else means keep polling. The error, when non-nil, is recorded as
// the observed value's raw text for diagnostics.
func Until(ctx context.Context, spec Spec, name string, attempt func(ctx context.Context) error, opts ...Option) (Outcome, error) {
	observe := func(ctx context.Context) fields.Value {
		if err := attempt(ctx); err != nil {
			return fields.Value{Name: name, Raw: err.Error()}
		}
		return fields.Concrete(name, "ok")
	}
	return Wait(ctx, spec, observe, func(v fields.Value) bool { return v.Present }, opts...)
}
