package warehouse

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Store wraps the relational warehouse. All write paths are append-only:
// dimension and fact rows are inserted once and never updated.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the sqlite warehouse at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrainRow is a candidate row for the trains dimension.
type TrainRow struct {
	Name        string
	TrainTypeID int64
}

// RideRow is a candidate row for the train_rides fact table.
type RideRow struct {
	RideID                    string
	TrainID                   int64
	FinalDestinationStationID int64
	Date                      time.Time
	Canceled                  bool
}

// StopRow is a candidate row for the stops fact table.
type StopRow struct {
	RideID            string
	StationID         int64
	StationNum        int32
	ArrivalDelayMin   int32
	ArrivalPlanned    sql.NullTime
	ArrivalChange     sql.NullTime
	DepartureDelayMin int32
	DeparturePlanned  sql.NullTime
	DepartureChange   sql.NullTime
	Canceled          bool
	IsStart           bool
	IsEnd             bool
}

// StopNaturalKey is the loader's identity for a stop row. A ride visiting the
// same station twice collides on this key; see DESIGN.md.
type StopNaturalKey struct {
	RideID    string
	StationID int64
}

func (s *Store) StationIDs() (map[string]int64, error) {
	return s.idsByName("SELECT station_name, station_id FROM stations")
}

func (s *Store) TrainTypeIDs() (map[string]int64, error) {
	return s.idsByName("SELECT train_type_name, train_type_id FROM train_types")
}

func (s *Store) TrainIDs() (map[string]int64, error) {
	return s.idsByName("SELECT train_name, train_id FROM trains")
}

func (s *Store) idsByName(query string) (map[string]int64, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

func (s *Store) ExistingRideIDs() (map[string]struct{}, error) {
	rows, err := s.db.Query("SELECT ride_id FROM train_rides")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *Store) ExistingStopKeys() (map[StopNaturalKey]struct{}, error) {
	rows, err := s.db.Query("SELECT ride_id, station_id FROM stops")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[StopNaturalKey]struct{})
	for rows.Next() {
		var k StopNaturalKey
		if err := rows.Scan(&k.RideID, &k.StationID); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// InsertStations appends the given station names, sorted for stable ids.
func (s *Store) InsertStations(names []string) error {
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.db.Exec("INSERT INTO stations (station_name) VALUES (?)", name); err != nil {
			return fmt.Errorf("insert station %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) InsertTrainTypes(names []string) error {
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.db.Exec("INSERT INTO train_types (train_type_name) VALUES (?)", name); err != nil {
			return fmt.Errorf("insert train type %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) InsertTrains(trains []TrainRow) error {
	sort.Slice(trains, func(i, j int) bool { return trains[i].Name < trains[j].Name })
	for _, t := range trains {
		if _, err := s.db.Exec(
			"INSERT INTO trains (train_name, train_type_id) VALUES (?, ?)",
			t.Name, t.TrainTypeID,
		); err != nil {
			return fmt.Errorf("insert train %q: %w", t.Name, err)
		}
	}
	return nil
}

func (s *Store) InsertTrainRides(rides []RideRow) error {
	for _, r := range rides {
		if _, err := s.db.Exec(
			"INSERT INTO train_rides (ride_id, train_id, final_destination_station_id, date, canceled) VALUES (?, ?, ?, ?, ?)",
			r.RideID, r.TrainID, r.FinalDestinationStationID, r.Date, r.Canceled,
		); err != nil {
			return fmt.Errorf("insert train ride %q: %w", r.RideID, err)
		}
	}
	return nil
}

func (s *Store) InsertStops(stops []StopRow) error {
	for _, st := range stops {
		if _, err := s.db.Exec(`
			INSERT INTO stops (ride_id, station_id, station_num,
				arrival_delay_min, arrival_planned_time, arrival_change_time,
				departure_delay_min, departure_planned_time, departure_change_time,
				canceled, is_start, is_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, st.RideID, st.StationID, st.StationNum,
			st.ArrivalDelayMin, st.ArrivalPlanned, st.ArrivalChange,
			st.DepartureDelayMin, st.DeparturePlanned, st.DepartureChange,
			st.Canceled, st.IsStart, st.IsEnd,
		); err != nil {
			return fmt.Errorf("insert stop %s/%d: %w", st.RideID, st.StationID, err)
		}
	}
	return nil
}

// CountRows reports the row count of a warehouse table.
func (s *Store) CountRows(table string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	return count, err
}
