package learning

// migrate creates the necessary tables and indexes if they don't exist.
func (s *ProfileStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profile_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM profile_schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Profiles},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO profile_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const migrationV1Profiles = `
CREATE TABLE IF NOT EXISTS agent_profiles (
	id TEXT PRIMARY KEY,
	capabilities TEXT NOT NULL DEFAULT '[]',
	temperature REAL NOT NULL,
	ema_success REAL NOT NULL,
	ema_latency_ns INTEGER NOT NULL DEFAULT 0,
	observations INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS beliefs (
	task_type TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	successes INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (task_type, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_beliefs_agent ON beliefs(agent_id);
`
