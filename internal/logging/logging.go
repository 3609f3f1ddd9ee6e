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

package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the harness logger: zap behind the logr interface. Verbose
// enables debug-level output and development formatting for interactive
// troubleshooting runs.
func New(verbose bool) (logr.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// runIDKey is the unexported context key for storing the run ID.
type runIDKey struct{}

// GenerateID returns a random 8-character lowercase hex string suitable
// for log correlation. Uses crypto/rand for uniqueness.
func GenerateID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRunID enriches the context and logger with a unique run ID so every
// log line of one harness run can be filtered together.
func WithRunID(ctx context.Context, log logr.Logger) (context.Context, logr.Logger) {
	id := GenerateID()
	log = log.WithValues("runID", id)
	ctx = logr.NewContext(ctx, log)
	ctx = context.WithValue(ctx, runIDKey{}, id)
	return ctx, log
}

// IDFromContext retrieves the run ID from context.
// Returns an empty string if no run ID is present.
func IDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
