package commands

import (
	"database/sql"

	"github.com/teranos/regalsync/am"
	"github.com/teranos/regalsync/db"
	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/logger"
)

// openDatabase opens and migrates the database holding harvest checkpoints
// and the run log. An empty dbPath falls back to the am config.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
