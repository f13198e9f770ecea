// Package migrations embeds the SQL migration files for the change log
// schema, consumed by golang-migrate's iofs source driver.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
