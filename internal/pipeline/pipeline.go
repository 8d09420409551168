package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bahnspiegel/bahnspiegel/internal/columnar"
	"github.com/bahnspiegel/bahnspiegel/internal/combine"
	"github.com/bahnspiegel/bahnspiegel/internal/dbapi"
	"github.com/bahnspiegel/bahnspiegel/internal/metrics"
	"github.com/bahnspiegel/bahnspiegel/internal/models"
	"github.com/bahnspiegel/bahnspiegel/internal/timetable"
	"github.com/bahnspiegel/bahnspiegel/internal/warehouse"
)

// planHoursAhead is how many plan hours one collection cycle covers; four
// cycles a day give full coverage with overlap.
const planHoursAhead = 6

// Pipeline wires the collection, combine and load stages over a shared
// directory layout. Each stage is one scheduled job; stages communicate only
// through files and the warehouse.
type Pipeline struct {
	client      *dbapi.Client
	loc         *time.Location
	rawDir      string
	dailyDir    string
	stationFile string
}

func New(client *dbapi.Client, loc *time.Location, rawDir, dailyDir, stationFile string) *Pipeline {
	return &Pipeline{
		client:      client,
		loc:         loc,
		rawDir:      rawDir,
		dailyDir:    dailyDir,
		stationFile: stationFile,
	}
}

// DiscoverStations refreshes the station file from the station directory API.
func (p *Pipeline) DiscoverStations(ctx context.Context, federalState string) error {
	entries, err := p.client.FetchStations(ctx, federalState)
	if err != nil {
		return fmt.Errorf("fetch stations: %w", err)
	}
	if err := dbapi.WriteStationFile(p.stationFile, entries); err != nil {
		return err
	}
	log.Info().Int("stations", len(entries)).Str("file", p.stationFile).Msg("station directory refreshed")
	return nil
}

// Collect fetches one polling cycle of raw snapshots for every known EVA
// number: the current full-change document plus the next planHoursAhead plan
// hours. A failed station is logged and skipped; the cycle continues.
func (p *Pipeline) Collect(ctx context.Context, now time.Time) error {
	evas, err := dbapi.ReadEVANumbers(p.stationFile)
	if err != nil {
		return err
	}
	if len(evas) == 0 {
		return fmt.Errorf("station file %s lists no EVA numbers", p.stationFile)
	}

	now = now.In(p.loc)
	day := now.Format("060102")
	hour := now.Hour()

	dir := filepath.Join(p.rawDir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raw folder: %w", err)
	}

	for _, eva := range evas {
		// The midnight change poll would be attributed to the wrong day.
		if hour != 0 {
			body, err := p.client.FetchChanges(ctx, eva)
			if err != nil {
				log.Error().Str("eva", eva).Err(err).Msg("change fetch failed")
			} else {
				p.saveSnapshot(dir, fmt.Sprintf("%s_change_%s_%02d.xml", eva, day, hour), body)
			}
		}

		if hour == 23 {
			continue
		}
		for i := 0; i < planHoursAhead; i++ {
			planHour := (hour + i) % 24
			body, err := p.client.FetchPlan(ctx, eva, now, planHour)
			if err != nil {
				log.Error().Str("eva", eva).Int("hour", planHour).Err(err).Msg("plan fetch failed")
				continue
			}
			p.saveSnapshot(dir, fmt.Sprintf("%s_plan_%s_%02d.xml", eva, day, planHour), body)
		}
	}
	return nil
}

func (p *Pipeline) saveSnapshot(dir, name string, body []byte) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		log.Error().Str("file", path).Err(err).Msg("save snapshot failed")
		return
	}
	log.Debug().Str("file", path).Msg("saved snapshot")
}

// Combine merges a day's accumulated raw snapshots into its canonical
// columnar file. Individual unreadable files are skipped; a day without any
// raw files aborts with combine.ErrNoData.
func (p *Pipeline) Combine(day time.Time) error {
	files, err := combine.FindDayFiles(p.rawDir, day)
	if err != nil {
		return err
	}

	extractor := timetable.NewExtractor(p.loc)

	var stops []models.StopFact
	for _, path := range files.Plan {
		facts, err := p.extractPlanFile(extractor, path)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("skipping unreadable plan file")
			continue
		}
		stops = append(stops, facts...)
	}

	var batches []timetable.ChangeBatch
	for _, path := range files.Change {
		batch, err := p.extractChangeFile(extractor, path)
		if err != nil {
			log.Error().Str("file", path).Err(err).Msg("skipping unreadable change file")
			continue
		}
		batches = append(batches, batch)
	}

	facts := combine.Merge(stops, timetable.ReduceChanges(batches))
	path, err := columnar.WriteDay(p.dailyDir, day, facts)
	if err != nil {
		return err
	}
	metrics.CanonicalRowsWritten.Add(float64(len(facts)))
	log.Info().Int("rows", len(facts)).Str("file", path).Msg("daily file written")
	return nil
}

func (p *Pipeline) extractPlanFile(e *timetable.Extractor, path string) ([]models.StopFact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return e.ExtractPlanned(f)
}

func (p *Pipeline) extractChangeFile(e *timetable.Extractor, path string) (timetable.ChangeBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return e.ExtractChanges(f)
}

// Load reads a day's columnar file and runs the dimensional loader against
// the warehouse at dbPath. The store is closed on every exit path.
func (p *Pipeline) Load(day time.Time, dbPath string) error {
	facts, err := columnar.ReadDay(p.dailyDir, day)
	if err != nil {
		return err
	}
	log.Info().Int("rows", len(facts)).Str("day", day.Format("2006-01-02")).Msg("loading canonical facts")

	store, err := warehouse.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return warehouse.NewLoader(store).LoadDay(facts)
}
