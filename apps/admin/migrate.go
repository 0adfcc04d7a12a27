package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/huddle/storage/database"
)

var errSQLiteMigrations = errors.New("the sqlite schema is created from the models, migrations only apply to postgres")

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if cli.conf.Database.Engine == database.EngineSQLite {
		return errSQLiteMigrations
	}
	return migrateFunc(ctx, cli.db, args[0], args[1:]...)
}
