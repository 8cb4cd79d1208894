package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "packs: one row per (feature, uow) with its revision",
		SQL: `
CREATE TABLE packs (
    feature_id  TEXT NOT NULL,
    uow_id      TEXT NOT NULL,
    revision    TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (feature_id, uow_id)
);

CREATE INDEX idx_packs_uow ON packs(uow_id);
`,
	},
	{
		Version:     2,
		Description: "pack_documents: raw JSON documents per pack",
		SQL: `
CREATE TABLE pack_documents (
    feature_id  TEXT NOT NULL,
    uow_id      TEXT NOT NULL,
    kind        TEXT NOT NULL,
    body        BLOB NOT NULL,
    PRIMARY KEY (feature_id, uow_id, kind),
    FOREIGN KEY (feature_id, uow_id) REFERENCES packs(feature_id, uow_id) ON DELETE CASCADE
);
`,
	},
}

func (db *SQLite) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *SQLite) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
