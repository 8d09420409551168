package columnar

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

// ErrMissingDay reports that the requested day has no columnar file yet.
var ErrMissingDay = errors.New("no columnar file for day")

// Row is the canonical on-disk schema, one row per stop. Column order and
// types are fixed; CanonicalStopFact is converted through this type so that
// the file layout cannot drift with the in-memory model.
type Row struct {
	Station                 string     `parquet:"station"`
	FinalDestinationStation string     `parquet:"final_destination_station"`
	TrainName               string     `parquet:"train_name"`
	TrainType               string     `parquet:"train_type"`
	RideID                  string     `parquet:"train_line_ride_id"`
	StationNum              int32      `parquet:"train_line_station_num"`
	ArrivalDelayMin         int32      `parquet:"arrival_delay_min"`
	ArrivalPlanned          *time.Time `parquet:"arrival_planned_time,optional,timestamp(millisecond)"`
	ArrivalChange           *time.Time `parquet:"arrival_change_time,optional,timestamp(millisecond)"`
	DepartureDelayMin       int32      `parquet:"departure_delay_min"`
	DeparturePlanned        *time.Time `parquet:"departure_planned_time,optional,timestamp(millisecond)"`
	DepartureChange         *time.Time `parquet:"departure_change_time,optional,timestamp(millisecond)"`
	Canceled                bool       `parquet:"canceled"`
	Weekday                 *string    `parquet:"weekday,optional"`
	Date                    time.Time  `parquet:"date,date"`
}

// DayPath is the canonical location of a day's file under dir.
func DayPath(dir string, day time.Time) string {
	return filepath.Join(dir, day.Format("060102")+".parquet")
}

// WriteDay persists one day's canonical facts as a brotli-compressed parquet
// file. Day files are immutable: writing a day that already has a file is an
// error, never a rewrite.
func WriteDay(dir string, day time.Time, facts []models.CanonicalStopFact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create daily folder: %w", err)
	}

	path := DayPath(dir, day)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("day file %s already exists", path)
		}
		return "", fmt.Errorf("create day file: %w", err)
	}

	rows := make([]Row, len(facts))
	for i, fact := range facts {
		rows[i] = toRow(fact)
	}

	if err := parquet.Write(f, rows, parquet.Compression(&parquet.Brotli)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close day file: %w", err)
	}
	return path, nil
}

// ReadDay loads a day's canonical facts. A missing file yields ErrMissingDay
// so callers can abort the whole run rather than load partially.
func ReadDay(dir string, day time.Time) ([]models.CanonicalStopFact, error) {
	path := DayPath(dir, day)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingDay, path)
	}

	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}

	facts := make([]models.CanonicalStopFact, len(rows))
	for i, row := range rows {
		facts[i] = fromRow(row)
	}
	return facts, nil
}

func toRow(f models.CanonicalStopFact) Row {
	return Row{
		Station:                 f.Station,
		FinalDestinationStation: f.FinalDestinationStation,
		TrainName:               f.TrainName,
		TrainType:               f.TrainType,
		RideID:                  f.RideID,
		StationNum:              f.StationNum,
		ArrivalDelayMin:         f.ArrivalDelayMin,
		ArrivalPlanned:          timePtr(f.ArrivalPlanned),
		ArrivalChange:           timePtr(f.ArrivalChange),
		DepartureDelayMin:       f.DepartureDelayMin,
		DeparturePlanned:        timePtr(f.DeparturePlanned),
		DepartureChange:         timePtr(f.DepartureChange),
		Canceled:                f.Canceled,
		Weekday:                 stringPtr(f.Weekday),
		Date:                    f.Date,
	}
}

func fromRow(r Row) models.CanonicalStopFact {
	return models.CanonicalStopFact{
		Station:                 r.Station,
		FinalDestinationStation: r.FinalDestinationStation,
		TrainName:               r.TrainName,
		TrainType:               r.TrainType,
		RideID:                  r.RideID,
		StationNum:              r.StationNum,
		ArrivalDelayMin:         r.ArrivalDelayMin,
		ArrivalPlanned:          nullTime(r.ArrivalPlanned),
		ArrivalChange:           nullTime(r.ArrivalChange),
		DepartureDelayMin:       r.DepartureDelayMin,
		DeparturePlanned:        nullTime(r.DeparturePlanned),
		DepartureChange:         nullTime(r.DepartureChange),
		Canceled:                r.Canceled,
		Weekday:                 stringValue(r.Weekday),
		Date:                    r.Date,
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
