package auth

import (
	"embed"
)

// MigrationsDir is the root of the goose migrations inside GetMigrationsFS
const MigrationsDir = "data/sql/migrations"

//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the accounts, jobs and activity log migrations
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
