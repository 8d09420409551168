package models

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StopKey identifies one scheduled stop: the ride it belongs to plus the
// position of the station within that ride. The feed encodes it as a single
// string "<ride id>-<sequence>", e.g. "-7874571842864554321-2405241145-3".
type StopKey struct {
	RideID     string
	StationNum int
}

// ParseStopID splits a raw stop id at its last dash. The sequence suffix must
// be a positive integer; everything before it is the ride id.
func ParseStopID(id string) (StopKey, error) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return StopKey{}, fmt.Errorf("stop id %q has no sequence suffix", id)
	}
	num, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return StopKey{}, fmt.Errorf("stop id %q has non-numeric sequence: %w", id, err)
	}
	return StopKey{RideID: id[:idx], StationNum: num}, nil
}

// StopID reconstructs the feed's string form of the key.
func (k StopKey) StopID() string {
	return fmt.Sprintf("%s-%d", k.RideID, k.StationNum)
}

// StopFact is one stop as extracted from a planned-snapshot document.
type StopFact struct {
	Key                     StopKey
	Station                 string
	FinalDestinationStation string
	TrainName               string
	TrainType               string
	ArrivalPlanned          sql.NullTime
	DeparturePlanned        sql.NullTime
	Weekday                 string // empty when the record carries no parsable time
}

// ChangeFact is the realtime deviation recorded for a single stop. A stop
// with neither a changed time nor a cancellation never gets a ChangeFact.
type ChangeFact struct {
	StopID          string
	ArrivalChange   sql.NullTime
	DepartureChange sql.NullTime
	Canceled        bool
}

// CanonicalStopFact is the merged, delay-annotated representation of a stop,
// the row shape of the daily columnar file.
type CanonicalStopFact struct {
	Station                 string
	FinalDestinationStation string
	TrainName               string
	TrainType               string
	RideID                  string
	StationNum              int32
	ArrivalDelayMin         int32
	ArrivalPlanned          sql.NullTime
	ArrivalChange           sql.NullTime
	DepartureDelayMin       int32
	DeparturePlanned        sql.NullTime
	DepartureChange         sql.NullTime
	Canceled                bool
	Weekday                 string
	Date                    time.Time // calendar day, zero when the stop has no planned times
}
