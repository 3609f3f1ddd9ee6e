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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pg-lifecycle-harness/internal/app"
	"github.com/pg-lifecycle-harness/internal/run"
	"github.com/pg-lifecycle-harness/internal/verify"
)

var (
	// Global flags
	verbose      bool
	dryRun       bool
	metricsAddr  string
	scenarioPath string
)

// Exit codes. Assertion failures and convergence timeouts are
// distinguishable from plain errors so CI can triage without parsing logs.
const (
	exitOK        = 0
	exitFailure   = 1
	exitAssertion = 2
	exitTimeout   = 3
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pglc",
	Short: "Managed PostgreSQL lifecycle verification harness",
	Long: `pglc drives a managed PostgreSQL service through its full lifecycle
(create, seed, firewall, scale, upgrade, replicate, destroy) through the
service's own CLI and verifies each transition converges with the stored
data intact.

Environment Variables:
  PGLC_CLI          Path to the control-plane CLI binary [required]
  PGLC_ZONE         Placement zone [required]
  PGLC_SERVER_NAME  Primary server name (derived from the run ID if unset)
  PGLC_DATABASE     Verification database (default "postgres")
  PGLC_TABLE        Probe table name (default "lifecycle_probe")
  PGLC_SCENARIO     Path to a YAML scenario file

Example:
  export PGLC_CLI=/usr/local/bin/pgcloud
  export PGLC_ZONE=westus

  pglc run
  pglc cleanup pglc-a1b2c3d4`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var aerr *verify.AssertionError
	if errors.As(err, &aerr) {
		return exitAssertion
	}
	var terr *run.TimeoutError
	if errors.As(err, &terr) {
		return exitTimeout
	}
	return exitFailure
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Print what would be done without executing")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "Path to a YAML scenario file (overrides PGLC_SCENARIO)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

// getConfig loads configuration from environment variables and flags.
func getConfig() (*app.Config, error) {
	cfg, err := app.ConfigFromEnv(os.Getenv)
	if err != nil {
		return nil, fmt.Errorf(
			"configuration error: %w\n\n"+
				"Please ensure all required environment variables are set:\n"+
				"  PGLC_CLI, PGLC_ZONE",
			err,
		)
	}
	if scenarioPath != "" {
		s, err := app.LoadScenario(scenarioPath)
		if err != nil {
			return nil, err
		}
		cfg.Scenario = s
	}
	cfg.MetricsAddr = metricsAddr
	cfg.Verbose = verbose
	return cfg, nil
}
