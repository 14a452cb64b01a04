// Package watcherdb holds all the migrations for the watcher database
package watcherdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the watcher database
var Migrations = migrate.NewMigrations()
