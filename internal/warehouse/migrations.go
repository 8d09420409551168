package warehouse

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial dimensional schema",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    station_id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS train_types (
    train_type_id INTEGER PRIMARY KEY AUTOINCREMENT,
    train_type_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS trains (
    train_id INTEGER PRIMARY KEY AUTOINCREMENT,
    train_name TEXT NOT NULL UNIQUE,
    train_type_id INTEGER NOT NULL REFERENCES train_types(train_type_id)
);

CREATE TABLE IF NOT EXISTS train_rides (
    ride_id TEXT PRIMARY KEY,
    train_id INTEGER NOT NULL REFERENCES trains(train_id),
    final_destination_station_id INTEGER NOT NULL REFERENCES stations(station_id),
    date DATE,
    canceled BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS stops (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ride_id TEXT NOT NULL,
    station_id INTEGER NOT NULL REFERENCES stations(station_id),
    station_num INTEGER NOT NULL,
    arrival_delay_min INTEGER NOT NULL DEFAULT 0,
    arrival_planned_time DATETIME,
    arrival_change_time DATETIME,
    departure_delay_min INTEGER NOT NULL DEFAULT 0,
    departure_planned_time DATETIME,
    departure_change_time DATETIME,
    canceled BOOLEAN NOT NULL DEFAULT FALSE,
    is_start BOOLEAN NOT NULL DEFAULT FALSE,
    is_end BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_stops_ride_station ON stops(ride_id, station_id);
CREATE INDEX IF NOT EXISTS idx_rides_date ON train_rides(date);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
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

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
