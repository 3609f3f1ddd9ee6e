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

// Package fields parses control-plane show output into typed field values.
//
// The control plane renders resource attributes as "key: value" text, one
// attribute per line. Responses are tolerated in every degraded form the
// backend produces while a resource is converging: a field may be missing
// entirely, present with an empty value, or garbled. All of those surface as
// an absent Value rather than an error, because convergence policies must
// keep polling through transient gaps. Malformed input is additionally
// flagged so diagnostics can tell it apart from legitimate absence.
package fields

import (
	"strconv"
	"strings"
	"time"
)

// Well-known field names exposed by the control plane for a database
// instance. Callers may also read arbitrary fields by name.
const (
	FieldState               = "state"
	FieldVMSize              = "vm-size"
	FieldStorageSizeGiB      = "storage-size-gib"
	FieldVersion             = "version"
	FieldEarliestRestoreTime = "earliest-restore-time"
	FieldConnectionString    = "connection-string"
)

// Value is one observation of a named resource attribute. It is always
// re-fetched; a Value is never cached beyond a single poll iteration.
//
// The zero Value is absent: Present is false and Raw is empty. An absent
// Value is a valid, distinct observation meaning "not yet populated", not an
// error.
type Value struct {
	// Name is the field this value was read for.
	Name string

	// Raw is the unparsed field text with surrounding whitespace removed.
	// Empty when the field is absent.
	Raw string

	// Present reports whether the field carried a concrete value.
	Present bool

	// Malformed marks a value that parsed to absent because the response
	// line was garbled, as opposed to the field simply not being set yet.
	// Convergence treats both identically; diagnostics do not.
	Malformed bool
}

// Absent returns an absent Value for the named field.
func Absent(name string) Value {
	return Value{Name: name}
}

// Concrete returns a present Value for the named field.
func Concrete(name, raw string) Value {
	return Value{Name: name, Raw: raw, Present: true}
}

// malformed returns an absent Value flagged as malformed.
func malformed(name string) Value {
	return Value{Name: name, Malformed: true}
}

// String returns the raw text and whether the value is present.
func (v Value) String() (string, bool) {
	return v.Raw, v.Present
}

// Number parses the value as a float64. Returns false when the value is
// absent or does not parse as a number; the field may not yet be populated
// in numeric form, so a parse failure is not an error.
func (v Value) Number() (float64, bool) {
	if !v.Present {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v.Raw), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Time parses the value as an RFC 3339 timestamp.
func (v Value) Time() (time.Time, bool) {
	if !v.Present {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v.Raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Equals reports whether the value matches target. When target parses as a
// number both sides are compared as normalized numbers, so "128" matches an
// observed "128.0" regardless of how the backend formats the field. When the
// observed side fails to parse numerically the comparison is false rather
// than an error: the field may not be populated in numeric form yet.
func (v Value) Equals(target string) bool {
	if !v.Present {
		return false
	}
	if want, err := strconv.ParseFloat(strings.TrimSpace(target), 64); err == nil {
		got, ok := v.Number()
		return ok && got == want
	}
	return v.Raw == target
}

// Response is a parsed show response: field name to observed value.
type Response map[string]Value

// ParseResponse parses key:value lines into a Response. Lines split on the
// first colon only, so values containing colons (timestamps, connection
// URIs) survive intact. Lines without a colon are recorded as malformed
// under the whole trimmed line so diagnostics can surface them.
func ParseResponse(raw string) Response {
	resp := make(Response)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			if key != "" {
				resp[key] = malformed(key)
			}
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			resp[key] = Absent(key)
			continue
		}
		resp[key] = Concrete(key, value)
	}
	return resp
}

// Field returns the named field's value, absent when the response does not
// contain it.
func (r Response) Field(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Absent(name)
}

// ParseField parses a full show response and extracts one field.
func ParseField(raw, name string) Value {
	return ParseResponse(raw).Field(name)
}

// ParseFieldLine parses a single-field show response, where the control
// plane was asked for exactly one named field and answered with one line.
// An empty response is legitimate absence; a response that does not carry
// the requested key in key:value form is malformed. Both parse to absent,
// the Malformed flag tells them apart in diagnostics.
func ParseFieldLine(name, raw string) Value {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Absent(name)
	}
	key, value, found := strings.Cut(line, ":")
	if !found || strings.TrimSpace(key) != name {
		return malformed(name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Absent(name)
	}
	return Concrete(name, value)
}
