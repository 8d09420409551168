package combine

import (
	"database/sql"
	"math"
	"time"

	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

// Merge joins a day's planned stop facts with the reduced change map and
// computes per-stop delay and cancellation. Planned facts are deduplicated by
// full-row equality first; input order is otherwise preserved.
//
// Stops without a change record are treated as unchanged: change times fall
// back to the planned times, delays are zero and canceled is false. A delay
// of zero therefore means "on time or never reported", which is accepted.
func Merge(planned []models.StopFact, changes map[string]models.ChangeFact) []models.CanonicalStopFact {
	seen := make(map[models.StopFact]struct{}, len(planned))
	facts := make([]models.CanonicalStopFact, 0, len(planned))

	for _, p := range planned {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		change, changed := changes[p.Key.StopID()]

		arrivalChange := p.ArrivalPlanned
		departureChange := p.DeparturePlanned
		canceled := false
		if changed {
			if change.ArrivalChange.Valid {
				arrivalChange = change.ArrivalChange
			}
			if change.DepartureChange.Valid {
				departureChange = change.DepartureChange
			}
			canceled = change.Canceled
		}

		facts = append(facts, models.CanonicalStopFact{
			Station:                 p.Station,
			FinalDestinationStation: p.FinalDestinationStation,
			TrainName:               p.TrainName,
			TrainType:               p.TrainType,
			RideID:                  p.Key.RideID,
			StationNum:              int32(p.Key.StationNum),
			ArrivalDelayMin:         delayMinutes(p.ArrivalPlanned, arrivalChange),
			ArrivalPlanned:          p.ArrivalPlanned,
			ArrivalChange:           arrivalChange,
			DepartureDelayMin:       delayMinutes(p.DeparturePlanned, departureChange),
			DeparturePlanned:        p.DeparturePlanned,
			DepartureChange:         departureChange,
			Canceled:                canceled,
			Weekday:                 p.Weekday,
			Date:                    factDate(p.ArrivalPlanned, p.DeparturePlanned),
		})
	}
	return facts
}

// delayMinutes is the resolved change time minus the planned time in whole
// minutes, rounded. Zero when either side is missing.
func delayMinutes(planned, change sql.NullTime) int32 {
	if !planned.Valid || !change.Valid {
		return 0
	}
	return int32(math.Round(change.Time.Sub(planned.Time).Minutes()))
}

// factDate is the calendar day of the planned arrival, falling back to the
// planned departure. Zero when the stop carries no planned time at all.
func factDate(arrival, departure sql.NullTime) time.Time {
	t := arrival
	if !t.Valid {
		t = departure
	}
	if !t.Valid {
		return time.Time{}
	}
	y, m, d := t.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Time.Location())
}
