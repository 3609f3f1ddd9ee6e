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

// Package app holds the harness configuration: environment-driven settings
// for the control-plane CLI and a scenario describing the lifecycle run
// (sizing tiers, storage sizes, versions).
package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pg-lifecycle-harness/internal/util"
)

// ValidationError indicates invalid or missing configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Config holds run-wide harness configuration.
type Config struct {
	// CLIPath is the control-plane CLI binary driven by the adapter.
	CLIPath string

	// Zone is the placement zone all resources are created in.
	Zone string

	// ServerName names the primary server. Empty means the run derives one
	// from its run ID.
	ServerName string

	// Database is the logical database used for verification.
	Database string

	// Table is the probe table used for seed-data verification.
	Table string

	// MetricsAddr is the optional promhttp listen address. Empty disables
	// the listener.
	MetricsAddr string

	// Verbose enables development-style logging.
	Verbose bool

	// Timeouts wrap context deadlines around external calls.
	Timeouts util.TimeoutConfig

	// Scenario describes the lifecycle sequence parameters.
	Scenario Scenario
}

// Scenario holds the lifecycle parameters: what the server starts as, what
// it is scaled and upgraded to, and the shape of the seed data.
type Scenario struct {
	InitialSizing     string `yaml:"initialSizing"`
	ScaledSizing      string `yaml:"scaledSizing"`
	InitialStorageGiB int    `yaml:"initialStorageGiB"`
	ScaledStorageGiB  int    `yaml:"scaledStorageGiB"`
	SourceVersion     string `yaml:"sourceVersion"`
	TargetVersion     string `yaml:"targetVersion"`
	SeedRows          int    `yaml:"seedRows"`
	OpenCIDR          string `yaml:"openCIDR"`
}

// DefaultScenario returns the stock lifecycle scenario: a small server
// scaled to a bigger tier, upgraded one major version, with three seed rows.
func DefaultScenario() Scenario {
	return Scenario{
		InitialSizing:     "standard-2",
		ScaledSizing:      "standard-4",
		InitialStorageGiB: 64,
		ScaledStorageGiB:  128,
		SourceVersion:     "16",
		TargetVersion:     "17",
		SeedRows:          3,
		OpenCIDR:          "0.0.0.0/0",
	}
}

// Validate checks scenario invariants.
func (s Scenario) Validate() error {
	if s.InitialSizing == "" || s.ScaledSizing == "" {
		return &ValidationError{Field: "sizing", Message: "initial and scaled sizing tiers are required"}
	}
	if s.InitialStorageGiB <= 0 || s.ScaledStorageGiB <= 0 {
		return &ValidationError{Field: "storage", Message: "storage sizes must be positive"}
	}
	if s.ScaledStorageGiB < s.InitialStorageGiB {
		return &ValidationError{Field: "storage", Message: "storage cannot shrink"}
	}
	if s.SourceVersion == "" || s.TargetVersion == "" {
		return &ValidationError{Field: "version", Message: "source and target versions are required"}
	}
	if s.SeedRows <= 0 {
		return &ValidationError{Field: "seedRows", Message: "seed row count must be positive"}
	}
	if s.OpenCIDR == "" {
		return &ValidationError{Field: "openCIDR", Message: "open CIDR is required"}
	}
	return nil
}

// LoadScenario reads a scenario from a YAML file. Fields absent from the
// file keep their defaults.
func LoadScenario(path string) (Scenario, error) {
	s := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read scenario file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse scenario file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variable names:
//   - PGLC_CLI: path to the control-plane CLI binary
//   - PGLC_ZONE: placement zone
//   - PGLC_SERVER_NAME: primary server name (optional)
//   - PGLC_DATABASE: verification database (default "postgres")
//   - PGLC_TABLE: probe table name (default "lifecycle_probe")
//   - PGLC_SCENARIO: path to a YAML scenario file (optional)
//   - PGLC_COMMAND_TIMEOUT: per-invocation timeout (e.g., "120s")
//   - PGLC_CONNECT_TIMEOUT: session dial timeout (e.g., "30s")
//   - PGLC_QUERY_TIMEOUT: verification query timeout (e.g., "30s")
//   - PGLC_CLEANUP_TIMEOUT: teardown walk timeout (e.g., "15m")
func ConfigFromEnv(getEnv func(string) string) (*Config, error) {
	cfg := &Config{
		CLIPath:    getEnv("PGLC_CLI"),
		Zone:       getEnv("PGLC_ZONE"),
		ServerName: getEnv("PGLC_SERVER_NAME"),
		Database:   getEnv("PGLC_DATABASE"),
		Table:      getEnv("PGLC_TABLE"),
	}

	// Set defaults
	if cfg.Database == "" {
		cfg.Database = "postgres"
	}
	if cfg.Table == "" {
		cfg.Table = "lifecycle_probe"
	}

	// Parse timeout configuration
	cfg.Timeouts = util.DefaultTimeoutConfig()
	if timeout := getEnv("PGLC_COMMAND_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, &ValidationError{Field: "PGLC_COMMAND_TIMEOUT", Message: "invalid duration format"}
		}
		cfg.Timeouts.CommandTimeout = d
	}
	if timeout := getEnv("PGLC_CONNECT_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, &ValidationError{Field: "PGLC_CONNECT_TIMEOUT", Message: "invalid duration format"}
		}
		cfg.Timeouts.ConnectTimeout = d
	}
	if timeout := getEnv("PGLC_QUERY_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, &ValidationError{Field: "PGLC_QUERY_TIMEOUT", Message: "invalid duration format"}
		}
		cfg.Timeouts.QueryTimeout = d
	}
	if timeout := getEnv("PGLC_CLEANUP_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, &ValidationError{Field: "PGLC_CLEANUP_TIMEOUT", Message: "invalid duration format"}
		}
		cfg.Timeouts.CleanupTimeout = d
	}

	// Scenario: defaults, optionally overridden by a YAML file
	cfg.Scenario = DefaultScenario()
	if path := getEnv("PGLC_SCENARIO"); path != "" {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		cfg.Scenario = s
	}

	// Validation
	if cfg.CLIPath == "" {
		return nil, &ValidationError{Field: "PGLC_CLI", Message: "control-plane CLI path is required"}
	}
	if cfg.Zone == "" {
		return nil, &ValidationError{Field: "PGLC_ZONE", Message: "zone is required"}
	}

	return cfg, nil
}
