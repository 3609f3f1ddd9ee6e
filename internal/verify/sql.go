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

package verify

import (
	"fmt"
	"strings"
)

// EscapeIdentifier wraps s in double quotes, doubling any embedded quotes.
// Table names travel through both access paths as SQL text, so they are
// always escaped, never interpolated raw.
func EscapeIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func ensureTableSQL(table string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY, note text NOT NULL)",
		EscapeIdentifier(table))
}

func insertRowsSQL(table string, n int) string {
	return fmt.Sprintf(
		"INSERT INTO %s (note) SELECT 'seed-' || g FROM generate_series(1, %d) AS g",
		EscapeIdentifier(table), n)
}

func rowCountSQL(table string) string {
	return fmt.Sprintf("SELECT count(*) FROM %s", EscapeIdentifier(table))
}
