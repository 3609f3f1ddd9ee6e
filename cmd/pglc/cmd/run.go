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

package cmd

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/logging"
	"github.com/pg-lifecycle-harness/internal/metrics"
	"github.com/pg-lifecycle-harness/internal/run"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full lifecycle scenario",
	Long: `Run the lifecycle scenario end to end: provision a server, seed and
verify data, exercise the firewall, scale it up, upgrade it, attach a read
replica, and tear everything down.

Resources created by the run are destroyed on every exit path, including
interrupts. A convergence timeout exits 3 and a data assertion failure
exits 2, so CI can tell "the service is slow" from "the service lost data".

Example:
  pglc run
  pglc run --dry-run
  pglc run --scenario big-tier.yaml --metrics-addr :9187`,
	RunE: runLifecycle,
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, log = logging.WithRunID(ctx, log)

	bus := events.NewInMemoryBus(events.WithLogger(log.WithName("events")))
	metrics.Subscribe(bus)

	if cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		go func() {
			if serr := http.ListenAndServe(cfg.MetricsAddr, mux); serr != nil {
				log.Error(serr, "metrics listener stopped")
			}
		}()
	}

	runner, err := run.Build(cfg, log, bus)
	if err != nil {
		return err
	}

	if dryRun {
		for _, line := range runner.Plan() {
			fmt.Println(line)
		}
		return nil
	}

	return runner.Execute(ctx)
}
