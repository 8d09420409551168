package warehouse

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bahnspiegel/bahnspiegel/internal/metrics"
	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

// Loader resolves a day's canonical stop facts into the five warehouse
// tables. Every table follows the same incremental shape: derive candidates,
// read the existing natural-key set, insert only the difference. Re-running
// the loader over the same day's facts inserts nothing.
type Loader struct {
	store *Store
}

func NewLoader(store *Store) *Loader {
	return &Loader{store: store}
}

// LoadDay runs the five loads in dependency order. A candidate whose
// dimension join finds no match is skipped with a warning; null foreign keys
// are never persisted.
func (l *Loader) LoadDay(facts []models.CanonicalStopFact) error {
	if err := l.loadStations(facts); err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	if err := l.loadTrainTypes(facts); err != nil {
		return fmt.Errorf("load train types: %w", err)
	}
	if err := l.loadTrains(facts); err != nil {
		return fmt.Errorf("load trains: %w", err)
	}
	if err := l.loadTrainRides(facts); err != nil {
		return fmt.Errorf("load train rides: %w", err)
	}
	if err := l.loadStops(facts); err != nil {
		return fmt.Errorf("load stops: %w", err)
	}
	return nil
}

// newByKey is the shared anti-join: candidates whose key is neither already
// stored nor already emitted for this batch, in input order.
func newByKey[R any, K comparable](candidates []R, existing map[K]struct{}, key func(R) K) []R {
	emitted := make(map[K]struct{}, len(candidates))
	var fresh []R
	for _, c := range candidates {
		k := key(c)
		if _, ok := existing[k]; ok {
			continue
		}
		if _, ok := emitted[k]; ok {
			continue
		}
		emitted[k] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

func keySet[K comparable](ids map[K]int64) map[K]struct{} {
	set := make(map[K]struct{}, len(ids))
	for k := range ids {
		set[k] = struct{}{}
	}
	return set
}

func (l *Loader) loadStations(facts []models.CanonicalStopFact) error {
	existing, err := l.store.StationIDs()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(facts))
	for _, f := range facts {
		names = append(names, f.Station)
	}
	fresh := newByKey(names, keySet(existing), func(n string) string { return n })

	if len(fresh) == 0 {
		log.Info().Msg("no new stations")
		return nil
	}
	if err := l.store.InsertStations(fresh); err != nil {
		return err
	}
	metrics.RowsInserted.WithLabelValues("stations").Add(float64(len(fresh)))
	log.Info().Int("count", len(fresh)).Msg("inserted new stations")
	return nil
}

func (l *Loader) loadTrainTypes(facts []models.CanonicalStopFact) error {
	existing, err := l.store.TrainTypeIDs()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(facts))
	for _, f := range facts {
		names = append(names, f.TrainType)
	}
	fresh := newByKey(names, keySet(existing), func(n string) string { return n })

	if len(fresh) == 0 {
		log.Info().Msg("no new train types")
		return nil
	}
	if err := l.store.InsertTrainTypes(fresh); err != nil {
		return err
	}
	metrics.RowsInserted.WithLabelValues("train_types").Add(float64(len(fresh)))
	log.Info().Int("count", len(fresh)).Msg("inserted new train types")
	return nil
}

func (l *Loader) loadTrains(facts []models.CanonicalStopFact) error {
	existing, err := l.store.TrainIDs()
	if err != nil {
		return err
	}
	typeIDs, err := l.store.TrainTypeIDs()
	if err != nil {
		return err
	}

	type candidate struct {
		name     string
		typeName string
	}
	candidates := make([]candidate, 0, len(facts))
	for _, f := range facts {
		candidates = append(candidates, candidate{name: f.TrainName, typeName: f.TrainType})
	}
	fresh := newByKey(candidates, keySet(existing), func(c candidate) string { return c.name })

	rows := make([]TrainRow, 0, len(fresh))
	for _, c := range fresh {
		typeID, ok := typeIDs[c.typeName]
		if !ok {
			metrics.UnresolvedForeignKeys.WithLabelValues("trains").Inc()
			log.Warn().Str("train", c.name).Str("train_type", c.typeName).Msg("skipping train with unresolved train type")
			continue
		}
		rows = append(rows, TrainRow{Name: c.name, TrainTypeID: typeID})
	}

	if len(rows) == 0 {
		log.Info().Msg("no new trains")
		return nil
	}
	if err := l.store.InsertTrains(rows); err != nil {
		return err
	}
	metrics.RowsInserted.WithLabelValues("trains").Add(float64(len(rows)))
	log.Info().Int("count", len(rows)).Msg("inserted new trains")
	return nil
}

func (l *Loader) loadTrainRides(facts []models.CanonicalStopFact) error {
	existing, err := l.store.ExistingRideIDs()
	if err != nil {
		return err
	}
	trainIDs, err := l.store.TrainIDs()
	if err != nil {
		return err
	}
	stationIDs, err := l.store.StationIDs()
	if err != nil {
		return err
	}

	// A ride counts as canceled only when every one of its stops is.
	canceledPerRide := make(map[string]bool, len(facts))
	for _, f := range facts {
		if all, seen := canceledPerRide[f.RideID]; seen {
			canceledPerRide[f.RideID] = all && f.Canceled
		} else {
			canceledPerRide[f.RideID] = f.Canceled
		}
	}

	fresh := newByKey(facts, existing, func(f models.CanonicalStopFact) string { return f.RideID })

	rows := make([]RideRow, 0, len(fresh))
	for _, f := range fresh {
		trainID, ok := trainIDs[f.TrainName]
		if !ok {
			metrics.UnresolvedForeignKeys.WithLabelValues("train_rides").Inc()
			log.Warn().Str("ride", f.RideID).Str("train", f.TrainName).Msg("skipping ride with unresolved train")
			continue
		}
		destID, ok := stationIDs[f.FinalDestinationStation]
		if !ok {
			metrics.UnresolvedForeignKeys.WithLabelValues("train_rides").Inc()
			log.Warn().Str("ride", f.RideID).Str("destination", f.FinalDestinationStation).Msg("skipping ride with unresolved destination station")
			continue
		}
		rows = append(rows, RideRow{
			RideID:                    f.RideID,
			TrainID:                   trainID,
			FinalDestinationStationID: destID,
			Date:                      f.Date,
			Canceled:                  canceledPerRide[f.RideID],
		})
	}

	if len(rows) == 0 {
		log.Info().Msg("no new train rides")
		return nil
	}
	if err := l.store.InsertTrainRides(rows); err != nil {
		return err
	}
	metrics.RowsInserted.WithLabelValues("train_rides").Add(float64(len(rows)))
	log.Info().Int("count", len(rows)).Msg("inserted new train rides")
	return nil
}

func (l *Loader) loadStops(facts []models.CanonicalStopFact) error {
	existing, err := l.store.ExistingStopKeys()
	if err != nil {
		return err
	}
	stationIDs, err := l.store.StationIDs()
	if err != nil {
		return err
	}

	// Start and end flags come from the per-ride sequence extremes.
	minNum := make(map[string]int32, len(facts))
	maxNum := make(map[string]int32, len(facts))
	for _, f := range facts {
		if cur, ok := minNum[f.RideID]; !ok || f.StationNum < cur {
			minNum[f.RideID] = f.StationNum
		}
		if cur, ok := maxNum[f.RideID]; !ok || f.StationNum > cur {
			maxNum[f.RideID] = f.StationNum
		}
	}

	candidates := make([]StopRow, 0, len(facts))
	for _, f := range facts {
		stationID, ok := stationIDs[f.Station]
		if !ok {
			metrics.UnresolvedForeignKeys.WithLabelValues("stops").Inc()
			log.Warn().Str("ride", f.RideID).Str("station", f.Station).Msg("skipping stop with unresolved station")
			continue
		}
		candidates = append(candidates, StopRow{
			RideID:            f.RideID,
			StationID:         stationID,
			StationNum:        f.StationNum,
			ArrivalDelayMin:   f.ArrivalDelayMin,
			ArrivalPlanned:    f.ArrivalPlanned,
			ArrivalChange:     f.ArrivalChange,
			DepartureDelayMin: f.DepartureDelayMin,
			DeparturePlanned:  f.DeparturePlanned,
			DepartureChange:   f.DepartureChange,
			Canceled:          f.Canceled,
			IsStart:           f.StationNum == minNum[f.RideID],
			IsEnd:             f.StationNum == maxNum[f.RideID],
		})
	}

	fresh := newByKey(candidates, existing, func(st StopRow) StopNaturalKey {
		return StopNaturalKey{RideID: st.RideID, StationID: st.StationID}
	})

	if len(fresh) == 0 {
		log.Info().Msg("no new stops")
		return nil
	}
	if err := l.store.InsertStops(fresh); err != nil {
		return err
	}
	metrics.RowsInserted.WithLabelValues("stops").Add(float64(len(fresh)))
	log.Info().Int("count", len(fresh)).Msg("inserted new stops")
	return nil
}
