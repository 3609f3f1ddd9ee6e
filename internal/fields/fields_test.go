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

package fields

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	raw := `
state: running
vm-size: standard-2
storage-size-gib: 64
earliest-restore-time: 2026-08-29T10:15:00Z
connection-string: postgres://admin@db.example.com:5432/defaultdb
empty-field:
`
	resp := ParseResponse(raw)

	v := resp.Field("state")
	assert.True(t, v.Present)
	assert.Equal(t, "running", v.Raw)

	// Values containing colons split on the first colon only.
	v = resp.Field("connection-string")
	assert.True(t, v.Present)
	assert.Equal(t, "postgres://admin@db.example.com:5432/defaultdb", v.Raw)

	v = resp.Field("earliest-restore-time")
	ts, ok := v.Time()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC), ts)

	// A key with no value is absent, not an error.
	v = resp.Field("empty-field")
	assert.False(t, v.Present)
	assert.False(t, v.Malformed)

	// A field the response never mentioned is absent.
	v = resp.Field("no-such-field")
	assert.False(t, v.Present)
	assert.False(t, v.Malformed)
}

func TestParseFieldLine(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		present   bool
		malformed bool
		value     string
	}{
		{"concrete", "state: running", true, false, "running"},
		{"whitespace trimmed", "  state:   running  ", true, false, "running"},
		{"empty response", "", false, false, ""},
		{"blank response", "   \n", false, false, ""},
		{"key without value", "state:", false, false, ""},
		{"garbled line", "state running", false, true, ""},
		{"wrong key", "status: running", false, true, ""},
		{"colon in value", "earliest-restore-time: 2026-08-29T10:15:00Z", true, false, "2026-08-29T10:15:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "state"
			if tt.name == "colon in value" {
				key = "earliest-restore-time"
			}
			v := ParseFieldLine(key, tt.raw)
			assert.Equal(t, tt.present, v.Present)
			assert.Equal(t, tt.malformed, v.Malformed)
			if tt.present {
				assert.Equal(t, tt.value, v.Raw)
			}
		})
	}
}

func TestAbsentVersusMalformedAreDistinguishable(t *testing.T) {
	empty := ParseFieldLine("version", "")
	garbled := ParseFieldLine("version", "###")

	// Convergence sees the same thing for both.
	assert.False(t, empty.Present)
	assert.False(t, garbled.Present)

	// Diagnostics do not.
	assert.False(t, empty.Malformed)
	assert.True(t, garbled.Malformed)
}

func TestValueNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"128", 128, true},
		{"128.0", 128, true},
		{" 64 ", 64, true},
		{"standard-2", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := Concrete("storage-size-gib", tt.raw).Number()
		assert.Equal(t, tt.ok, ok, "raw=%q", tt.raw)
		if ok {
			assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		}
	}

	_, ok := Absent("storage-size-gib").Number()
	assert.False(t, ok)
}

func TestValueEquals(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		target string
		want   bool
	}{
		{"string match", Concrete("state", "running"), "running", true},
		{"string mismatch", Concrete("state", "rebuilding"), "running", false},
		{"numeric normalized", Concrete("storage-size-gib", "128.0"), "128", true},
		{"numeric exact", Concrete("storage-size-gib", "128"), "128", true},
		{"numeric mismatch", Concrete("storage-size-gib", "64"), "128", false},
		{"numeric target, non-numeric observed", Concrete("storage-size-gib", "pending"), "128", false},
		{"absent never matches", Absent("state"), "running", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Equals(tt.target))
		})
	}
}
