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

package run

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/pg-lifecycle-harness/internal/cloud"
	"github.com/pg-lifecycle-harness/internal/events"
)

// destroyFunc tears down one resource. Must be safe to call for a resource
// that no longer exists.
type destroyFunc func(ctx context.Context) error

// createdResource is one teardown obligation, recorded at creation time.
type createdResource struct {
	kind    string
	ref     cloud.ResourceRef
	destroy destroyFunc
	done    bool
}

// CleanupStack accumulates teardown obligations in creation order and
// unwinds them in reverse. Every successful create must push a record
// immediately, before any dependent step runs, so an interrupted run still
// knows what it owns.
type CleanupStack struct {
	mu      sync.Mutex
	records []*createdResource
	log     logr.Logger
	bus     events.Bus
}

// NewCleanupStack creates an empty stack.
func NewCleanupStack(log logr.Logger, bus events.Bus) *CleanupStack {
	return &CleanupStack{log: log, bus: bus}
}

// Register records a teardown obligation for a freshly created resource.
func (s *CleanupStack) Register(kind string, ref cloud.ResourceRef, destroy destroyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &createdResource{kind: kind, ref: ref, destroy: destroy})
}

// Len returns the number of registered records.
func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Run walks the records in reverse creation order, attempting each destroy
// exactly once. Failures are logged and swallowed; a failed destroy never
// stops the walk and never alters the run's outcome. Calling Run again
// skips records already attempted.
func (s *CleanupStack) Run(ctx context.Context) {
	s.mu.Lock()
	records := make([]*createdResource, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]

		s.mu.Lock()
		if rec.done {
			s.mu.Unlock()
			continue
		}
		rec.done = true
		s.mu.Unlock()

		s.log.Info("destroying resource", "kind", rec.kind, "resource", rec.ref.String())
		if err := rec.destroy(ctx); err != nil {
			s.log.Error(err, "teardown failed, continuing",
				"kind", rec.kind, "resource", rec.ref.String())
			_ = s.bus.Publish(ctx, events.NewCleanupFailed(rec.kind, rec.ref.String(), err))
			continue
		}
		_ = s.bus.Publish(ctx, events.NewResourceDestroyed(rec.kind, rec.ref.String()))
	}
}
