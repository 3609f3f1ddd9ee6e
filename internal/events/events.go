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

package events

import (
	"time"
)

// Event names as constants for type safety and documentation.
const (
	// Workflow step events
	EventStepStarted   = "StepStarted"
	EventStepCompleted = "StepCompleted"
	EventStepFailed    = "StepFailed"

	// Poll events
	EventPollProgress = "PollProgress"
	EventPollFinished = "PollFinished"

	// Resource lifetime events
	EventResourceCreated   = "ResourceCreated"
	EventResourceDestroyed = "ResourceDestroyed"
	EventCleanupFailed     = "CleanupFailed"

	// Verification events
	EventRowCountVerified = "RowCountVerified"
)

// Event is the base interface for harness domain events. Events are
// immutable value objects describing something that happened during a run.
type Event interface {
	// EventName returns the unique name identifying this event type.
	EventName() string

	// EventTime returns when the event occurred.
	EventTime() time.Time

	// Resource returns the reference of the resource this event concerns,
	// or an empty string for run-level events.
	Resource() string
}

// BaseEvent provides common event fields.
// Embed this struct in concrete event types.
type BaseEvent struct {
	name      string
	timestamp time.Time
	resource  string
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent(name, resource string) BaseEvent {
	return BaseEvent{
		name:      name,
		timestamp: time.Now(),
		resource:  resource,
	}
}

func (e BaseEvent) EventName() string    { return e.name }
func (e BaseEvent) EventTime() time.Time { return e.timestamp }
func (e BaseEvent) Resource() string     { return e.resource }

// StepStarted is published when a workflow step begins.
type StepStarted struct {
	BaseEvent
	Step string
}

// NewStepStarted creates a StepStarted event.
func NewStepStarted(step, resource string) StepStarted {
	return StepStarted{BaseEvent: NewBaseEvent(EventStepStarted, resource), Step: step}
}

// StepCompleted is published when a workflow step finishes successfully.
type StepCompleted struct {
	BaseEvent
	Step     string
	Duration time.Duration
}

// NewStepCompleted creates a StepCompleted event.
func NewStepCompleted(step, resource string, d time.Duration) StepCompleted {
	return StepCompleted{BaseEvent: NewBaseEvent(EventStepCompleted, resource), Step: step, Duration: d}
}

// StepFailed is published when a workflow step fails; the run aborts and
// unwinds after this event.
type StepFailed struct {
	BaseEvent
	Step string
	Err  error
}

// NewStepFailed creates a StepFailed event.
func NewStepFailed(step, resource string, err error) StepFailed {
	return StepFailed{BaseEvent: NewBaseEvent(EventStepFailed, resource), Step: step, Err: err}
}

// PollProgress is published for each poll observation that did not satisfy
// its predicate. Diagnostic only.
type PollProgress struct {
	BaseEvent
	Condition string
	Observed  string
	Malformed bool
	Elapsed   time.Duration
	Attempt   int
}

// NewPollProgress creates a PollProgress event.
func NewPollProgress(condition, resource, observed string, malformed bool, elapsed time.Duration, attempt int) PollProgress {
	return PollProgress{
		BaseEvent: NewBaseEvent(EventPollProgress, resource),
		Condition: condition,
		Observed:  observed,
		Malformed: malformed,
		Elapsed:   elapsed,
		Attempt:   attempt,
	}
}

// PollFinished is published when a poll terminates, converged or not.
type PollFinished struct {
	BaseEvent
	Condition string
	Converged bool
	Elapsed   time.Duration
	Attempts  int
}

// NewPollFinished creates a PollFinished event.
func NewPollFinished(condition, resource string, converged bool, elapsed time.Duration, attempts int) PollFinished {
	return PollFinished{
		BaseEvent: NewBaseEvent(EventPollFinished, resource),
		Condition: condition,
		Converged: converged,
		Elapsed:   elapsed,
		Attempts:  attempts,
	}
}

// ResourceCreated is published after a create succeeds and the resource is
// registered for teardown.
type ResourceCreated struct {
	BaseEvent
	Kind string
}

// NewResourceCreated creates a ResourceCreated event.
func NewResourceCreated(kind, resource string) ResourceCreated {
	return ResourceCreated{BaseEvent: NewBaseEvent(EventResourceCreated, resource), Kind: kind}
}

// ResourceDestroyed is published after a teardown destroy attempt succeeds.
type ResourceDestroyed struct {
	BaseEvent
	Kind string
}

// NewResourceDestroyed creates a ResourceDestroyed event.
func NewResourceDestroyed(kind, resource string) ResourceDestroyed {
	return ResourceDestroyed{BaseEvent: NewBaseEvent(EventResourceDestroyed, resource), Kind: kind}
}

// CleanupFailed is published when a teardown destroy attempt fails. The
// failure is logged and swallowed; teardown continues.
type CleanupFailed struct {
	BaseEvent
	Kind string
	Err  error
}

// NewCleanupFailed creates a CleanupFailed event.
func NewCleanupFailed(kind, resource string, err error) CleanupFailed {
	return CleanupFailed{BaseEvent: NewBaseEvent(EventCleanupFailed, resource), Kind: kind, Err: err}
}

// RowCountVerified is published after a successful row-count assertion.
type RowCountVerified struct {
	BaseEvent
	Table string
	Path  string
	Count int64
}

// NewRowCountVerified creates a RowCountVerified event.
func NewRowCountVerified(resource, table, path string, count int64) RowCountVerified {
	return RowCountVerified{BaseEvent: NewBaseEvent(EventRowCountVerified, resource), Table: table, Path: path, Count: count}
}
