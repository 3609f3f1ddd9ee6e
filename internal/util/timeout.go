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

package util

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout settings for the harness's external calls.
// Zero values mean no timeout (use the parent context's deadline).
type TimeoutConfig struct {
	// CommandTimeout bounds a single control-plane CLI invocation. One
	// invocation is one read or one mutation request; the asynchronous
	// transition it starts is bounded by the poll timeout, not this.
	CommandTimeout time.Duration

	// ConnectTimeout bounds establishing a direct protocol session.
	ConnectTimeout time.Duration

	// QueryTimeout bounds a single verification query.
	QueryTimeout time.Duration

	// CleanupTimeout bounds the whole teardown walk. Cleanup runs on a
	// fresh context so a cancelled run can still destroy its resources.
	CleanupTimeout time.Duration
}

// DefaultTimeoutConfig returns conservative defaults:
//   - Command: 120s - control-plane calls can be slow but must not hang a poll iteration forever
//   - Connect: 30s - enough for slow networks but catches stuck connections
//   - Query: 30s - verification queries are small
//   - Cleanup: 15m - teardown of a primary/replica pair needs headroom
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		CommandTimeout: 120 * time.Second,
		ConnectTimeout: 30 * time.Second,
		QueryTimeout:   30 * time.Second,
		CleanupTimeout: 15 * time.Minute,
	}
}

// WithTimeout wraps a context with a timeout if the duration is positive.
// If duration is zero or negative, returns the original context and a no-op
// cancel function. Always call the returned cancel function.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// WithCommandTimeout wraps a context with the command timeout from config.
func (c TimeoutConfig) WithCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return WithTimeout(ctx, c.CommandTimeout)
}

// WithConnectTimeout wraps a context with the connect timeout from config.
func (c TimeoutConfig) WithConnectTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return WithTimeout(ctx, c.ConnectTimeout)
}

// WithQueryTimeout wraps a context with the query timeout from config.
func (c TimeoutConfig) WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return WithTimeout(ctx, c.QueryTimeout)
}
