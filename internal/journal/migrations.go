package journal

// runMigrations executes all database migrations.
func (j *Journal) runMigrations() error {
	migrations := []string{
		// Events table - one row per published event, images are not kept
		`CREATE TABLE IF NOT EXISTS events (
			row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			frame INTEGER NOT NULL,
			at_ns INTEGER NOT NULL,
			has_image INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
