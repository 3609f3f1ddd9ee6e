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

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pg-lifecycle-harness/internal/events"
)

const (
	// Metric namespace
	namespace = "pglc"

	// Label names
	labelCondition = "condition"
	labelResource  = "resource"
	labelStatus    = "status"
	labelStep      = "step"
	labelKind      = "kind"
	labelPath      = "path"
)

// Status values
const (
	StatusConverged = "converged"
	StatusTimedOut  = "timed_out"
	StatusSuccess   = "success"
	StatusFailure   = "failure"
)

var (
	// Poll metrics

	// PollObservationsTotal tracks the total number of poll observations
	PollObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_observations_total",
			Help:      "Total number of poll observations made",
		},
		[]string{labelCondition, labelResource},
	)

	// PollsTotal tracks terminated polls by outcome
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total number of polls by terminal outcome",
		},
		[]string{labelCondition, labelStatus},
	)

	// ConvergenceDurationSeconds tracks how long polls ran before converging
	// or timing out
	ConvergenceDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "convergence_duration_seconds",
			Help:      "Wall-clock duration of polls in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800, 3600},
		},
		[]string{labelCondition, labelStatus},
	)

	// Workflow step metrics

	// StepsTotal tracks workflow steps by outcome
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of workflow steps by outcome",
		},
		[]string{labelStep, labelStatus},
	)

	// StepDurationSeconds tracks the duration of completed workflow steps
	StepDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of completed workflow steps in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{labelStep},
	)

	// Verification metrics

	// RowCountChecksTotal tracks successful row-count assertions by access path
	RowCountChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_count_checks_total",
			Help:      "Total number of successful row-count assertions",
		},
		[]string{labelPath},
	)

	// Cleanup metrics

	// CleanupAttemptsTotal tracks teardown destroy attempts by outcome
	CleanupAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_attempts_total",
			Help:      "Total number of teardown destroy attempts",
		},
		[]string{labelKind, labelStatus},
	)
)

// NewRegistry creates a registry with all harness metrics registered.
// The registry is per-process, created once in the CLI.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		// Poll metrics
		PollObservationsTotal,
		PollsTotal,
		ConvergenceDurationSeconds,

		// Workflow step metrics
		StepsTotal,
		StepDurationSeconds,

		// Verification metrics
		RowCountChecksTotal,

		// Cleanup metrics
		CleanupAttemptsTotal,
	)
	return reg
}

// Handler serves a registry over HTTP for the optional metrics listener.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Subscribe attaches the metric sinks to the harness event stream. Handlers
// never return errors; a metrics problem must not disturb the run.
func Subscribe(bus events.Bus) {
	bus.Subscribe(events.EventPollProgress, "metrics", func(_ context.Context, e events.Event) error {
		if p, ok := e.(events.PollProgress); ok {
			PollObservationsTotal.WithLabelValues(p.Condition, p.Resource()).Inc()
		}
		return nil
	})

	bus.Subscribe(events.EventPollFinished, "metrics", func(_ context.Context, e events.Event) error {
		if p, ok := e.(events.PollFinished); ok {
			status := StatusTimedOut
			if p.Converged {
				status = StatusConverged
			}
			// The final converging observation is not preceded by a
			// PollProgress event, so count it here.
			PollObservationsTotal.WithLabelValues(p.Condition, p.Resource()).Inc()
			PollsTotal.WithLabelValues(p.Condition, status).Inc()
			ConvergenceDurationSeconds.WithLabelValues(p.Condition, status).Observe(p.Elapsed.Seconds())
		}
		return nil
	})

	bus.Subscribe(events.EventStepCompleted, "metrics", func(_ context.Context, e events.Event) error {
		if s, ok := e.(events.StepCompleted); ok {
			StepsTotal.WithLabelValues(s.Step, StatusSuccess).Inc()
			StepDurationSeconds.WithLabelValues(s.Step).Observe(s.Duration.Seconds())
		}
		return nil
	})

	bus.Subscribe(events.EventStepFailed, "metrics", func(_ context.Context, e events.Event) error {
		if s, ok := e.(events.StepFailed); ok {
			StepsTotal.WithLabelValues(s.Step, StatusFailure).Inc()
		}
		return nil
	})

	bus.Subscribe(events.EventRowCountVerified, "metrics", func(_ context.Context, e events.Event) error {
		if r, ok := e.(events.RowCountVerified); ok {
			RowCountChecksTotal.WithLabelValues(r.Path).Inc()
		}
		return nil
	})

	bus.Subscribe(events.EventResourceDestroyed, "metrics", func(_ context.Context, e events.Event) error {
		if r, ok := e.(events.ResourceDestroyed); ok {
			CleanupAttemptsTotal.WithLabelValues(r.Kind, StatusSuccess).Inc()
		}
		return nil
	})

	bus.Subscribe(events.EventCleanupFailed, "metrics", func(_ context.Context, e events.Event) error {
		if c, ok := e.(events.CleanupFailed); ok {
			CleanupAttemptsTotal.WithLabelValues(c.Kind, StatusFailure).Inc()
		}
		return nil
	})
}
