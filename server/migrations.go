package server

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

// Open or create the DB
func openDB(log logs.Log, config dbh.DBConfig) (*gorm.DB, error) {
	log.Infof("Opening journal DB")
	return dbh.OpenDB(log, config, migrations(log), 0)
}

func migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE conversion(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			frame_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_conversion_frame_key ON conversion(frame_key);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE conversion ADD COLUMN carried INT NOT NULL DEFAULT 0;
		ALTER TABLE conversion ADD COLUMN minted INT NOT NULL DEFAULT 0;
	`))

	return migs
}
