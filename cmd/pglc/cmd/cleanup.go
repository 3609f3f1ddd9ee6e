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

	"github.com/spf13/cobra"

	"github.com/pg-lifecycle-harness/internal/events"
	"github.com/pg-lifecycle-harness/internal/logging"
	"github.com/pg-lifecycle-harness/internal/run"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <server-name>",
	Short: "Destroy resources left behind by a dead run",
	Long: `Destroy a named server and its conventional read replica. Intended
for runs that were killed before their own teardown could finish. Destroying
a resource that no longer exists is not an error.

Example:
  pglc cleanup pglc-a1b2c3d4`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	if dryRun {
		fmt.Printf("would destroy %s/%s-replica and %s/%s\n", cfg.Zone, args[0], cfg.Zone, args[0])
		return nil
	}

	runner, err := run.Build(cfg, log, events.NopBus{})
	if err != nil {
		return err
	}
	runner.Cleanup(cmd.Context(), args[0])
	return nil
}
