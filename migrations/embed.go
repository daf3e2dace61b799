// Package migrations embeds the identity schema migrations into the binary.
//
// Importing this package registers the files with the database package:
//
//	import _ "github.com/nerrad567/gray-logic-identity/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
