//go:build e2e

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

package e2e

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pg-lifecycle-harness/internal/cloud"
	"github.com/pg-lifecycle-harness/internal/converge"
	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/fields"
	"github.com/pg-lifecycle-harness/internal/logging"
	"github.com/pg-lifecycle-harness/internal/run"
	"github.com/pg-lifecycle-harness/internal/verify"
)

var _ = Describe("Full lifecycle", Ordered, func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		log       logr.Logger
		bus       *events.InMemoryBus
		completed []string
	)

	BeforeAll(func() {
		var err error
		log, err = logging.New(true)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Hour)
		ctx, log = logging.WithRunID(ctx, log)

		bus = events.NewInMemoryBus(events.WithLogger(log.WithName("events")))
		bus.Subscribe(events.EventStepCompleted, "e2e", func(_ context.Context, e events.Event) error {
			completed = append(completed, e.(events.StepCompleted).Step)
			return nil
		})
	})

	AfterAll(func() {
		cancel()
	})

	It("provisions, verifies, mutates and tears down a server", func() {
		runner, err := run.Build(cfg, log, bus)
		Expect(err).NotTo(HaveOccurred())

		Expect(runner.Execute(ctx)).To(Succeed())

		Expect(completed).To(Equal([]string{
			run.StepProvision,
			run.StepSeed,
			run.StepBackup,
			run.StepFirewall,
			run.StepScale,
			run.StepUpgrade,
			run.StepReplica,
		}))
	})
})

var _ = Describe("Teardown", func() {
	It("treats destroying an absent server as success", func() {
		client := cloud.NewClient(cfg.CLIPath, cloud.WithTimeouts(cfg.Timeouts))
		ref := cloud.ResourceRef{Zone: cfg.Zone, Name: "pglc-never-created"}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		Expect(client.Destroy(ctx, ref, true)).To(Succeed())
		Expect(client.Destroy(ctx, ref, true)).To(Succeed())
	})
})

var _ = Describe("Scaling", func() {
	It("converges the sizing fields after a modify", func() {
		log, err := logging.New(true)
		Expect(err).NotTo(HaveOccurred())

		client := cloud.NewClient(cfg.CLIPath,
			cloud.WithLogger(log.WithName("cloud")),
			cloud.WithTimeouts(cfg.Timeouts),
		)
		waiter := converge.NewWaiter(client,
			converge.WithStatusReader(client),
			converge.WithLogger(log.WithName("converge")),
		)
		verifier := verify.NewVerifier(client, verify.WithLogger(log.WithName("verify")))

		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		ref := cloud.ResourceRef{Zone: cfg.Zone, Name: "pglc-scale-" + logging.GenerateID()}

		DeferCleanup(func() {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cfg.Timeouts.CleanupTimeout)
			defer cleanupCancel()
			_ = client.Destroy(cleanupCtx, ref, true)
		})

		s := cfg.Scenario
		Expect(client.Create(ctx, ref, cloud.CreateOptions{
			Plan:       s.InitialSizing,
			StorageGiB: s.InitialStorageGiB,
			Version:    s.SourceVersion,
		})).To(Succeed())

		outcome, err := waiter.StateReached(ctx, ref, "running")
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Converged).To(BeTrue())

		Expect(client.Modify(ctx, ref, cloud.ModifyOptions{
			Plan:       s.ScaledSizing,
			StorageGiB: s.ScaledStorageGiB,
		})).To(Succeed())

		outcome, err = waiter.FieldReached(ctx, ref, fields.FieldVMSize, s.ScaledSizing)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Converged).To(BeTrue())

		connString, err := client.ConnectionString(ctx, ref)
		Expect(err).NotTo(HaveOccurred())

		outcome, err = waiter.ConnectivityReached(ctx, ref, verifier.Probe(connString))
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Converged).To(BeTrue())
	})
})
