package learning

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomery/loom/internal/router"
	"github.com/loomery/loom/pkg/models"
)

// ProfileStore provides SQLite-backed persistence for agent profiles and
// belief state. Persistence is optional: the core functions correctly from
// cold-start uniform priors when no store is configured.
type ProfileStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// DefaultStorePath returns the XDG data path for the profile database.
func DefaultStorePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "loom", "profiles.db")
}

// OpenStore opens (creating if needed) the profile database at path and
// applies migrations. WAL mode is enabled for concurrent reads.
func OpenStore(path string) (*ProfileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &ProfileStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *ProfileStore) Close() error {
	return s.db.Close()
}

// SaveProfiles persists the given profiles and belief snapshot in one
// transaction, replacing any previous rows for the same keys.
func (s *ProfileStore) SaveProfiles(profiles []*models.AgentProfile, beliefs map[router.Key][2]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range profiles {
		capsJSON, err := json.Marshal(p.Capabilities)
		if err != nil {
			return fmt.Errorf("marshal capabilities for %s: %w", p.ID, err)
		}
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO agent_profiles
				(id, capabilities, temperature, ema_success, ema_latency_ns, observations, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ID, string(capsJSON), p.Temperature, p.EMASuccess,
			int64(p.EMALatency), p.Observations, p.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert profile %s: %w", p.ID, err)
		}
	}

	for key, counts := range beliefs {
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO beliefs (task_type, agent_id, successes, failures)
			VALUES (?, ?, ?, ?)
		`, string(key.TaskType), key.AgentID, counts[0], counts[1])
		if err != nil {
			return fmt.Errorf("insert belief %s/%s: %w", key.TaskType, key.AgentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadProfiles reads back all persisted profiles and belief counters.
func (s *ProfileStore) LoadProfiles() ([]*models.AgentProfile, map[router.Key][2]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, capabilities, temperature, ema_success, ema_latency_ns, observations, updated_at
		FROM agent_profiles
		ORDER BY id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.AgentProfile
	for rows.Next() {
		var p models.AgentProfile
		var capsJSON, updatedAt string
		var latencyNs int64

		if err := rows.Scan(&p.ID, &capsJSON, &p.Temperature, &p.EMASuccess,
			&latencyNs, &p.Observations, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := json.Unmarshal([]byte(capsJSON), &p.Capabilities); err != nil {
			return nil, nil, fmt.Errorf("unmarshal capabilities for %s: %w", p.ID, err)
		}
		p.EMALatency = time.Duration(latencyNs)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	beliefRows, err := s.db.Query(`SELECT task_type, agent_id, successes, failures FROM beliefs`)
	if err != nil {
		return nil, nil, fmt.Errorf("query beliefs: %w", err)
	}
	defer beliefRows.Close()

	beliefs := make(map[router.Key][2]uint64)
	for beliefRows.Next() {
		var taskType, agentID string
		var successes, failures uint64
		if err := beliefRows.Scan(&taskType, &agentID, &successes, &failures); err != nil {
			return nil, nil, fmt.Errorf("scan belief: %w", err)
		}
		beliefs[router.Key{TaskType: models.SubtaskType(taskType), AgentID: agentID}] = [2]uint64{successes, failures}
	}

	return profiles, beliefs, beliefRows.Err()
}
