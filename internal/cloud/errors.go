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

package cloud

import (
	"errors"
	"fmt"
)

// Common adapter errors
var (
	// ErrNotFound indicates the control plane does not know the resource.
	ErrNotFound = errors.New("resource not found")

	// ErrTransport indicates the control-plane call itself failed: the CLI
	// could not be spawned, timed out, or the transport dropped. Distinct
	// from the CLI reporting a domain failure.
	ErrTransport = errors.New("control-plane transport failure")

	// ErrMalformedResponse indicates the CLI exited successfully but its
	// output could not be interpreted.
	ErrMalformedResponse = errors.New("malformed control-plane response")
)

// CommandError wraps a failed control-plane invocation with its context.
type CommandError struct {
	Operation string
	Resource  string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("control-plane %s on %s failed (exit %d): %v", e.Operation, e.Resource, e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(operation, resource string, exitCode int, stderr string, err error) *CommandError {
	return &CommandError{
		Operation: operation,
		Resource:  resource,
		ExitCode:  exitCode,
		Stderr:    stderr,
		Err:       err,
	}
}

// IsNotFound checks if an error is a resource-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
