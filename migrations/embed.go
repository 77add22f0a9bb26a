// Package migrations embeds the postgres schema so binaries and tests can
// migrate without a checkout of this directory.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql pair in this directory
//
//go:embed *.sql
var FS embed.FS
