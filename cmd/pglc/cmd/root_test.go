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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pg-lifecycle-harness/internal/run"
	"github.com/pg-lifecycle-harness/internal/verify"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "success",
			err:  nil,
			want: exitOK,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: exitFailure,
		},
		{
			name: "assertion failure",
			err:  fmt.Errorf("step seed-data: %w", &verify.AssertionError{Expected: 3, Actual: 2}),
			want: exitAssertion,
		},
		{
			name: "convergence timeout",
			err:  fmt.Errorf("step scale: %w", &run.TimeoutError{Condition: "field-reached"}),
			want: exitTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
