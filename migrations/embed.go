// Package migrations embeds the ward schema SQL files.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
