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

import "strings"

// IsTransient determines if an error signals transient unavailability: the
// kind of failure a poll loop must ride out rather than escalate. Covers
// network-level failures and the messages PostgreSQL emits while an
// instance is starting, restarting for a resize, or mid-upgrade.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return IsTransientText(err.Error())
}

// IsTransientText is IsTransient over raw error text, for callers holding
// CLI stderr rather than a Go error.
func IsTransientText(s string) bool {
	errStr := strings.ToLower(s)
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"deadline exceeded",
		"temporary failure",
		"too many connections",
		"server is starting up",
		"the database system is starting up",
		"the database system is shutting down",
		"not currently accepting connections", // PostgreSQL SQLSTATE 55000
		"connection timed out",
		"network is unreachable",
		"no route to host",
		"broken pipe",
		"connection closed",
		"eof",
		"unavailable",
		"try again",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
