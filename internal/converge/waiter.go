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

// Package converge defines the domain wait conditions of the harness, each
// a thin observe/predicate specialization over the generic poll engine.
// Adding a wait condition means wiring a policy here, never writing another
// loop.
package converge

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/pg-lifecycle-harness/internal/cloud"
	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/fields"
	"github.com/pg-lifecycle-harness/internal/poll"
)

// Default poll bounds per condition class. State transitions of a managed
// instance take minutes; version upgrades take longest.
const (
	DefaultInterval = 10 * time.Second

	DefaultStateTimeout        = 15 * time.Minute
	DefaultFieldTimeout        = 15 * time.Minute
	DefaultVersionTimeout      = 30 * time.Minute
	DefaultConnectivityTimeout = 5 * time.Minute
	DefaultBackupTimeout       = 10 * time.Minute
)

// Condition names used in events, logs and metrics.
const (
	ConditionStateReached        = "state-reached"
	ConditionFieldReached        = "field-reached"
	ConditionVersionReached      = "version-reached"
	ConditionConnectivityReached = "connectivity-reached"
	ConditionBackupAvailable     = "backup-available"
	ConditionReplicaCaughtUp     = "replica-caught-up"
)

// FieldReader is the adapter surface the field-based policies observe
// through. Satisfied by *cloud.Client.
type FieldReader interface {
	GetField(ctx context.Context, ref cloud.ResourceRef, name string) (fields.Value, error)
}

// StatusReader supplies auxiliary upgrade-progress text for diagnostics.
// Satisfied by *cloud.Client.
type StatusReader interface {
	UpgradeStatus(ctx context.Context, ref cloud.ResourceRef) string
}

// Probe is an active protocol-level round-trip attempt. nil means reachable.
type Probe func(ctx context.Context) error

// Waiter runs convergence policies against one control plane.
type Waiter struct {
	reader FieldReader
	status StatusReader
	log    logr.Logger
	bus    events.Bus
}

// WaiterOption configures a Waiter.
type WaiterOption func(*Waiter)

// WithLogger sets the logger for the waiter.
func WithLogger(log logr.Logger) WaiterOption {
	return func(w *Waiter) {
		w.log = log
	}
}

// WithBus sets the event bus poll progress is published on.
func WithBus(bus events.Bus) WaiterOption {
	return func(w *Waiter) {
		w.bus = bus
	}
}

// WithStatusReader sets the source of upgrade-status diagnostics.
func WithStatusReader(s StatusReader) WaiterOption {
	return func(w *Waiter) {
		w.status = s
	}
}

// NewWaiter creates a Waiter observing through the given reader.
func NewWaiter(reader FieldReader, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		reader: reader,
		log:    logr.Discard(),
		bus:    events.NopBus{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Option adjusts the poll bounds of a single policy invocation.
type Option func(*poll.Spec)

// WithTimeout overrides the policy's default timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *poll.Spec) {
		s.Timeout = d
	}
}

// WithInterval overrides the policy's default interval.
func WithInterval(d time.Duration) Option {
	return func(s *poll.Spec) {
		s.Interval = d
	}
}

func buildSpec(timeout time.Duration, opts []Option) poll.Spec {
	spec := poll.Spec{Interval: DefaultInterval, Timeout: timeout}
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// observeField builds an ObserveFunc over one named field. Adapter failures
// surface as absent values: transient unavailability and not-yet-existing
// resources must keep the loop polling, never abort it. The error text is
// logged for diagnostics.
func (w *Waiter) observeField(ref cloud.ResourceRef, name string) poll.ObserveFunc {
	return func(ctx context.Context) fields.Value {
		v, err := w.reader.GetField(ctx, ref, name)
		if err != nil {
			w.log.V(1).Info("field read failed, treating as absent",
				"resource", ref.String(), "field", name, "error", err.Error())
		}
		return v
	}
}

// progress returns the per-iteration side effect: one log line and one
// PollProgress event.
func (w *Waiter) progress(ctx context.Context, condition string, ref cloud.ResourceRef, extra func()) poll.Option {
	return poll.WithProgress(func(v fields.Value, elapsed time.Duration, attempt int) {
		// Probe-style observations carry the last error text in Raw even
		// when not converged; plain absent field reads carry nothing.
		observed := v.Raw
		if !v.Present && v.Raw == "" {
			observed = "<absent>"
		}
		w.log.Info("waiting for convergence",
			"condition", condition,
			"resource", ref.String(),
			"observed", observed,
			"elapsed", elapsed.Round(time.Second),
			"attempt", attempt)
		_ = w.bus.Publish(ctx, events.NewPollProgress(condition, ref.String(), observed, v.Malformed, elapsed, attempt))
		if extra != nil {
			extra()
		}
	})
}

func (w *Waiter) finish(ctx context.Context, condition string, ref cloud.ResourceRef, outcome poll.Outcome, err error) (poll.Outcome, error) {
	if err != nil {
		return outcome, err
	}
	w.log.Info("poll finished",
		"condition", condition,
		"resource", ref.String(),
		"converged", outcome.Converged,
		"elapsed", outcome.Elapsed.Round(time.Second),
		"attempts", outcome.Attempts)
	_ = w.bus.Publish(ctx, events.NewPollFinished(condition, ref.String(), outcome.Converged, outcome.Elapsed, outcome.Attempts))
	return outcome, nil
}

// StateReached waits until the instance's state field matches target
// exactly. Default timeout 15m.
func (w *Waiter) StateReached(ctx context.Context, ref cloud.ResourceRef, target string, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultStateTimeout, opts)
	outcome, err := poll.Wait(ctx, spec,
		w.observeField(ref, fields.FieldState),
		func(v fields.Value) bool { return v.Present && v.Raw == target },
		w.progress(ctx, ConditionStateReached, ref, nil),
	)
	return w.finish(ctx, ConditionStateReached, ref, outcome, err)
}

// FieldReached waits until the named field matches target. Numeric targets
// compare as normalized numbers so "128" converges on an observed "128.0";
// a side that does not yet parse numerically keeps polling. Default
// timeout 15m.
func (w *Waiter) FieldReached(ctx context.Context, ref cloud.ResourceRef, field, target string, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultFieldTimeout, opts)
	outcome, err := poll.Wait(ctx, spec,
		w.observeField(ref, field),
		func(v fields.Value) bool { return v.Equals(target) },
		w.progress(ctx, ConditionFieldReached, ref, nil),
	)
	return w.finish(ctx, ConditionFieldReached, ref, outcome, err)
}

// VersionReached waits until the instance reports the target major version.
// On each non-converged iteration the control plane's upgrade-status text
// is surfaced for diagnostics only. Default timeout 30m.
func (w *Waiter) VersionReached(ctx context.Context, ref cloud.ResourceRef, target string, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultVersionTimeout, opts)

	var extra func()
	if w.status != nil {
		extra = func() {
			if status := w.status.UpgradeStatus(ctx, ref); status != "" {
				w.log.Info("upgrade in progress", "resource", ref.String(), "status", status)
			}
		}
	}

	outcome, err := poll.Wait(ctx, spec,
		w.observeField(ref, fields.FieldVersion),
		func(v fields.Value) bool { return v.Equals(target) },
		w.progress(ctx, ConditionVersionReached, ref, extra),
	)
	return w.finish(ctx, ConditionVersionReached, ref, outcome, err)
}

// ConnectivityReached waits until an active protocol round-trip succeeds.
// A connection error counts as "not yet", not an engine failure. Default
// timeout 5m, interval 10s.
func (w *Waiter) ConnectivityReached(ctx context.Context, ref cloud.ResourceRef, probe Probe, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultConnectivityTimeout, opts)
	outcome, err := poll.Until(ctx, spec, ConditionConnectivityReached,
		func(ctx context.Context) error { return probe(ctx) },
		w.progress(ctx, ConditionConnectivityReached, ref, nil),
	)
	return w.finish(ctx, ConditionConnectivityReached, ref, outcome, err)
}

// ReplicaCaughtUp waits until the replica's probe reports parity with the
// primary. Replication lag makes a one-shot comparison racy, so parity is a
// convergeable condition; the caller asserts exact match once converged.
// Default timeout 5m.
func (w *Waiter) ReplicaCaughtUp(ctx context.Context, ref cloud.ResourceRef, probe Probe, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultConnectivityTimeout, opts)
	outcome, err := poll.Until(ctx, spec, ConditionReplicaCaughtUp,
		func(ctx context.Context) error { return probe(ctx) },
		w.progress(ctx, ConditionReplicaCaughtUp, ref, nil),
	)
	return w.finish(ctx, ConditionReplicaCaughtUp, ref, outcome, err)
}

// BackupAvailable waits until the earliest-restore-time field is populated,
// regardless of its content. Default timeout 10m.
func (w *Waiter) BackupAvailable(ctx context.Context, ref cloud.ResourceRef, opts ...Option) (poll.Outcome, error) {
	spec := buildSpec(DefaultBackupTimeout, opts)
	outcome, err := poll.Wait(ctx, spec,
		w.observeField(ref, fields.FieldEarliestRestoreTime),
		func(v fields.Value) bool { return v.Present },
		w.progress(ctx, ConditionBackupAvailable, ref, nil),
	)
	return w.finish(ctx, ConditionBackupAvailable, ref, outcome, err)
}
