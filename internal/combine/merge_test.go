package combine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

var berlin = mustLoadBerlin()

func mustLoadBerlin() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
	return loc
}

func ts(t *testing.T, value string) sql.NullTime {
	t.Helper()
	parsed, err := time.ParseInLocation("0601021504", value, berlin)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return sql.NullTime{Time: parsed, Valid: true}
}

func plannedStop(t *testing.T) models.StopFact {
	t.Helper()
	return models.StopFact{
		Key:                     models.StopKey{RideID: "ICE-100", StationNum: 3},
		Station:                 "Nürnberg Hbf",
		FinalDestinationStation: "C",
		TrainName:               "ICE 100",
		TrainType:               "ICE",
		ArrivalPlanned:          ts(t, "2505081530"),
		DeparturePlanned:        ts(t, "2505081532"),
		Weekday:                 "Thursday",
	}
}

func TestMerge_UnchangedStop(t *testing.T) {
	facts := Merge([]models.StopFact{plannedStop(t)}, nil)
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1", len(facts))
	}

	f := facts[0]
	if f.TrainName != "ICE 100" {
		t.Errorf("TrainName = %q, want 'ICE 100'", f.TrainName)
	}
	if f.FinalDestinationStation != "C" {
		t.Errorf("FinalDestinationStation = %q, want C", f.FinalDestinationStation)
	}
	if f.Canceled {
		t.Error("Canceled = true, want false for unmatched stop")
	}
	if f.ArrivalDelayMin != 0 || f.DepartureDelayMin != 0 {
		t.Errorf("delays = %d/%d, want 0/0", f.ArrivalDelayMin, f.DepartureDelayMin)
	}
	if !f.ArrivalChange.Valid || !f.ArrivalChange.Time.Equal(f.ArrivalPlanned.Time) {
		t.Error("ArrivalChange should default to the planned time")
	}
	if f.Weekday != "Thursday" {
		t.Errorf("Weekday = %q, want Thursday", f.Weekday)
	}
	wantDate := time.Date(2025, 5, 8, 0, 0, 0, 0, berlin)
	if !f.Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", f.Date, wantDate)
	}
}

func TestMerge_ArrivalDelay(t *testing.T) {
	changes := map[string]models.ChangeFact{
		"ICE-100-3": {
			StopID:        "ICE-100-3",
			ArrivalChange: ts(t, "2505081545"),
		},
	}

	facts := Merge([]models.StopFact{plannedStop(t)}, changes)
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1", len(facts))
	}

	f := facts[0]
	if f.ArrivalDelayMin != 15 {
		t.Errorf("ArrivalDelayMin = %d, want 15", f.ArrivalDelayMin)
	}
	if f.DepartureDelayMin != 0 {
		t.Errorf("DepartureDelayMin = %d, want 0 (departure unchanged)", f.DepartureDelayMin)
	}
	if !f.DepartureChange.Time.Equal(f.DeparturePlanned.Time) {
		t.Error("DepartureChange should fall back to the planned time")
	}
	if f.Canceled {
		t.Error("Canceled = true, want false")
	}
}

func TestMerge_CancellationWithoutTimeChange(t *testing.T) {
	changes := map[string]models.ChangeFact{
		"ICE-100-3": {StopID: "ICE-100-3", Canceled: true},
	}

	facts := Merge([]models.StopFact{plannedStop(t)}, changes)
	f := facts[0]
	if !f.Canceled {
		t.Error("Canceled = false, want true")
	}
	if f.ArrivalDelayMin != 0 || f.DepartureDelayMin != 0 {
		t.Errorf("delays = %d/%d, want 0/0 for cancellation-only change", f.ArrivalDelayMin, f.DepartureDelayMin)
	}
}

func TestMerge_DeduplicatesIdenticalRows(t *testing.T) {
	stop := plannedStop(t)
	facts := Merge([]models.StopFact{stop, stop, stop}, nil)
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1 after dedup", len(facts))
	}
}

func TestMerge_DateFallsBackToDeparture(t *testing.T) {
	stop := plannedStop(t)
	stop.ArrivalPlanned = sql.NullTime{}
	stop.DeparturePlanned = ts(t, "2505091015")

	facts := Merge([]models.StopFact{stop}, nil)
	wantDate := time.Date(2025, 5, 9, 0, 0, 0, 0, berlin)
	if !facts[0].Date.Equal(wantDate) {
		t.Errorf("Date = %v, want %v", facts[0].Date, wantDate)
	}
}

func TestMerge_NoPlannedTimes(t *testing.T) {
	stop := plannedStop(t)
	stop.ArrivalPlanned = sql.NullTime{}
	stop.DeparturePlanned = sql.NullTime{}
	stop.Weekday = ""

	facts := Merge([]models.StopFact{stop}, nil)
	f := facts[0]
	if !f.Date.IsZero() {
		t.Errorf("Date = %v, want zero when no planned times", f.Date)
	}
	if f.ArrivalDelayMin != 0 || f.DepartureDelayMin != 0 {
		t.Error("delays should be zero when planned times are missing")
	}
}

func TestMerge_DelayRounding(t *testing.T) {
	stop := plannedStop(t)
	change := ts(t, "2505081545")
	// 14 minutes 40 seconds late rounds to 15.
	change.Time = change.Time.Add(-20 * time.Second)

	facts := Merge([]models.StopFact{stop}, map[string]models.ChangeFact{
		"ICE-100-3": {StopID: "ICE-100-3", ArrivalChange: change},
	})
	if facts[0].ArrivalDelayMin != 15 {
		t.Errorf("ArrivalDelayMin = %d, want 15 (rounded)", facts[0].ArrivalDelayMin)
	}
}

func TestMerge_NegativeDelay(t *testing.T) {
	stop := plannedStop(t)
	facts := Merge([]models.StopFact{stop}, map[string]models.ChangeFact{
		"ICE-100-3": {StopID: "ICE-100-3", ArrivalChange: ts(t, "2505081525")},
	})
	if facts[0].ArrivalDelayMin != -5 {
		t.Errorf("ArrivalDelayMin = %d, want -5 for an early train", facts[0].ArrivalDelayMin)
	}
}
