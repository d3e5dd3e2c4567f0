// Package dbmigrations exposes embedded SQL migrations for vizframe binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into vizframe binaries.
//
//go:embed *.sql
var Files embed.FS
