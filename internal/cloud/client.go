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

// Package cloud wraps the managed-database control-plane CLI. Every
// lifecycle mutation and every state read goes through this adapter, which
// classifies failures into the taxonomy the poll loops depend on: transport
// failure, resource-not-found, malformed response. The adapter performs no
// retries itself — retrying is the poll engine's job. The one exception is
// Destroy, which is idempotent and swallows not-found so teardown can be
// re-driven safely.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"

	"github.com/pg-lifecycle-harness/internal/fields"
	"github.com/pg-lifecycle-harness/internal/util"
)

// ResourceRef identifies one remote managed instance by zone and name.
// Immutable once constructed; comparable.
type ResourceRef struct {
	Zone string
	Name string
}

func (r ResourceRef) String() string {
	return r.Zone + "/" + r.Name
}

// CreateOptions holds the sizing of a new database instance.
type CreateOptions struct {
	Plan       string
	StorageGiB int
	Version    string
}

// ModifyOptions holds the target sizing for a vertical scale.
type ModifyOptions struct {
	Plan       string
	StorageGiB int
}

// FirewallRule is one entry of an instance's inbound allow list.
type FirewallRule struct {
	ID   string
	CIDR string
}

// Runner executes one control-plane CLI invocation and returns its stdout.
// Abstracted so tests can substitute canned processes.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// execRunner shells out to the configured CLI binary.
type execRunner struct {
	binary string
}

func (r *execRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &cliError{
			exitCode: exitErr.ExitCode(),
			stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	// Spawn failures and context deadlines never produced a CLI verdict.
	return "", fmt.Errorf("%w: %v", ErrTransport, err)
}

// cliError is a non-zero CLI exit before classification.
type cliError struct {
	exitCode int
	stderr   string
}

func (e *cliError) Error() string {
	return fmt.Sprintf("exit %d: %s", e.exitCode, e.stderr)
}

// Client is the resource client adapter for one control-plane CLI.
type Client struct {
	runner   Runner
	log      logr.Logger
	timeouts util.TimeoutConfig
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithRunner replaces the subprocess runner, used by tests.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithTimeouts sets the timeout configuration for CLI invocations.
func WithTimeouts(t util.TimeoutConfig) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

// NewClient creates a client that drives the named CLI binary.
func NewClient(binary string, opts ...Option) *Client {
	c := &Client{
		runner:   &execRunner{binary: binary},
		log:      logr.Discard(),
		timeouts: util.DefaultTimeoutConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// invoke runs one CLI operation and classifies its failure mode.
func (c *Client) invoke(ctx context.Context, operation string, ref ResourceRef, args ...string) (string, error) {
	ctx, cancel := c.timeouts.WithCommandTimeout(ctx)
	defer cancel()

	out, err := c.runner.Run(ctx, args...)
	if err == nil {
		return out, nil
	}

	var cliErr *cliError
	if errors.As(err, &cliErr) {
		classified := classifyStderr(cliErr.stderr)
		c.log.V(1).Info("control-plane command failed",
			"operation", operation, "resource", ref.String(),
			"exitCode", cliErr.exitCode, "stderr", cliErr.stderr)
		return out, NewCommandError(operation, ref.String(), cliErr.exitCode, cliErr.stderr, classified)
	}

	c.log.V(1).Info("control-plane command did not complete",
		"operation", operation, "resource", ref.String(), "error", err.Error())
	return "", NewCommandError(operation, ref.String(), -1, "", err)
}

// classifyStderr maps CLI error text onto the adapter error taxonomy.
func classifyStderr(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return fmt.Errorf("%w: %s", ErrNotFound, stderr)
	case util.IsTransientText(lower):
		return fmt.Errorf("%w: %s", ErrTransport, stderr)
	default:
		return errors.New(stderr)
	}
}

// Create provisions a new database instance.
func (c *Client) Create(ctx context.Context, ref ResourceRef, opts CreateOptions) error {
	_, err := c.invoke(ctx, "create", ref,
		"database", "create",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--plan", opts.Plan,
		"--storage-gib", fmt.Sprintf("%d", opts.StorageGiB),
		"--version", opts.Version,
	)
	return err
}

// Show reads all attributes of an instance as a parsed response.
func (c *Client) Show(ctx context.Context, ref ResourceRef) (fields.Response, error) {
	out, err := c.invoke(ctx, "show", ref,
		"database", "show", "--zone", ref.Zone, "--name", ref.Name)
	if err != nil {
		return nil, err
	}
	return fields.ParseResponse(out), nil
}

// GetField reads one named attribute. A transport failure yields an absent
// value so convergence keeps polling through transient unavailability; the
// error is still returned for diagnostic logging, and callers deciding
// control flow should look at the value, not the error.
func (c *Client) GetField(ctx context.Context, ref ResourceRef, name string) (fields.Value, error) {
	out, err := c.invoke(ctx, "show", ref,
		"database", "show", "--zone", ref.Zone, "--name", ref.Name, "--field", name)
	if err != nil {
		return fields.Absent(name), err
	}
	return fields.ParseFieldLine(name, out), nil
}

// Modify changes an instance's plan and storage size. The resize is
// asynchronous; convergence is the caller's responsibility.
func (c *Client) Modify(ctx context.Context, ref ResourceRef, opts ModifyOptions) error {
	_, err := c.invoke(ctx, "modify", ref,
		"database", "modify",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--plan", opts.Plan,
		"--storage-gib", fmt.Sprintf("%d", opts.StorageGiB),
	)
	return err
}

// Upgrade starts a major-version upgrade to the target version.
func (c *Client) Upgrade(ctx context.Context, ref ResourceRef, version string) error {
	_, err := c.invoke(ctx, "upgrade", ref,
		"database", "upgrade",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--version", version,
	)
	return err
}

// UpgradeStatus reads the free-form upgrade progress text. Diagnostic only;
// failures degrade to an empty status rather than interrupting a poll.
func (c *Client) UpgradeStatus(ctx context.Context, ref ResourceRef) string {
	out, err := c.invoke(ctx, "upgrade-status", ref,
		"database", "upgrade-status", "--zone", ref.Zone, "--name", ref.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// AddFirewallRule allows inbound traffic from the given CIDR block.
func (c *Client) AddFirewallRule(ctx context.Context, ref ResourceRef, cidr string) error {
	_, err := c.invoke(ctx, "firewall-add", ref,
		"database", "firewall", "add",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--cidr", cidr,
	)
	return err
}

// ListFirewallRules returns the instance's current inbound allow list.
// Output is one rule per line in "id: cidr" form.
func (c *Client) ListFirewallRules(ctx context.Context, ref ResourceRef) ([]FirewallRule, error) {
	out, err := c.invoke(ctx, "firewall-list", ref,
		"database", "firewall", "list", "--zone", ref.Zone, "--name", ref.Name)
	if err != nil {
		return nil, err
	}

	var rules []FirewallRule
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, cidr, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: firewall rule line %q", ErrMalformedResponse, line)
		}
		rules = append(rules, FirewallRule{
			ID:   strings.TrimSpace(id),
			CIDR: strings.TrimSpace(cidr),
		})
	}
	return rules, nil
}

// DeleteFirewallRule removes one rule from the allow list.
func (c *Client) DeleteFirewallRule(ctx context.Context, ref ResourceRef, id string) error {
	_, err := c.invoke(ctx, "firewall-delete", ref,
		"database", "firewall", "delete",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--id", id,
	)
	return err
}

// CreateReadReplica provisions a read replica of ref in the same zone and
// returns its reference.
func (c *Client) CreateReadReplica(ctx context.Context, ref ResourceRef, name string) (ResourceRef, error) {
	replica := ResourceRef{Zone: ref.Zone, Name: name}
	_, err := c.invoke(ctx, "replica-create", ref,
		"database", "replica", "create",
		"--zone", ref.Zone,
		"--name", ref.Name,
		"--replica-name", name,
	)
	if err != nil {
		return ResourceRef{}, err
	}
	return replica, nil
}

// Destroy deletes an instance. Safe to retry: a not-found result means the
// resource is already gone and is treated as success, so teardown of an
// already-destroyed reference never aborts the rest of the unwind.
func (c *Client) Destroy(ctx context.Context, ref ResourceRef, force bool) error {
	args := []string{"database", "delete", "--zone", ref.Zone, "--name", ref.Name}
	if force {
		args = append(args, "--force")
	}
	_, err := c.invoke(ctx, "destroy", ref, args...)
	if err != nil && IsNotFound(err) {
		c.log.V(1).Info("destroy target already gone", "resource", ref.String())
		return nil
	}
	return err
}

// ExecSQL runs a query against the instance through the control-plane proxy
// and returns the result rows as trimmed lines of text. This is the proxied
// access path; it deliberately does not touch the instance's own network
// endpoint.
func (c *Client) ExecSQL(ctx context.Context, ref ResourceRef, database, query string) ([]string, error) {
	args := []string{"database", "sql", "--zone", ref.Zone, "--name", ref.Name}
	if database != "" {
		args = append(args, "--database", database)
	}
	args = append(args, "--command", query)
	out, err := c.invoke(ctx, "exec-sql", ref, args...)
	if err != nil {
		return nil, err
	}

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

// ConnectionString reads the instance's direct connection descriptor.
// Returns ErrMalformedResponse when the field is present but unusable.
func (c *Client) ConnectionString(ctx context.Context, ref ResourceRef) (string, error) {
	v, err := c.GetField(ctx, ref, fields.FieldConnectionString)
	if err != nil {
		return "", err
	}
	if !v.Present {
		if v.Malformed {
			return "", fmt.Errorf("%w: connection-string field", ErrMalformedResponse)
		}
		return "", fmt.Errorf("%w: connection-string not yet populated", ErrNotFound)
	}
	return v.Raw, nil
}
