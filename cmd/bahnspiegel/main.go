package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/bahnspiegel/bahnspiegel/internal/api"
	"github.com/bahnspiegel/bahnspiegel/internal/dbapi"
	"github.com/bahnspiegel/bahnspiegel/internal/pipeline"
)

type globals struct {
	APIKey      string `env:"DB_API_KEY" help:"Timetable API key."`
	ClientID    string `env:"DB_CLIENT_ID" help:"Timetable API client id."`
	RawDir      string `env:"RAW_DIR" default:"data/raw" help:"Folder for raw XML snapshots."`
	DailyDir    string `env:"DAILY_DIR" default:"data/daily" help:"Folder for daily parquet files."`
	StationFile string `env:"STATION_FILE" default:"data/evaNumbers.json" help:"Discovered station list."`
	Database    string `env:"DATABASE_PATH" default:"data/bahnspiegel.db" help:"Path to the sqlite warehouse."`
	Timezone    string `default:"Europe/Berlin" help:"Calendar timezone of the feed."`
	Debug       bool   `help:"Enable debug logging."`
}

type cli struct {
	globals

	Stations stationsCmd `cmd:"" help:"Refresh the station directory (EVA numbers)."`
	Collect  collectCmd  `cmd:"" help:"Fetch one polling cycle of raw snapshots."`
	Combine  combineCmd  `cmd:"" help:"Merge a day's snapshots into its canonical parquet file."`
	Load     loadCmd     `cmd:"" help:"Load a day's canonical file into the warehouse."`
	Run      runCmd      `cmd:"" help:"Run the scheduler with health and metrics endpoints."`
}

type appContext struct {
	pipeline *pipeline.Pipeline
	loc      *time.Location
	database string
}

func (g *globals) build() (*appContext, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", g.Timezone, err)
	}
	client := dbapi.NewClient(g.APIKey, g.ClientID)
	return &appContext{
		pipeline: pipeline.New(client, loc, g.RawDir, g.DailyDir, g.StationFile),
		loc:      loc,
		database: g.Database,
	}, nil
}

func (g *globals) requireCredentials() error {
	if g.APIKey == "" || g.ClientID == "" {
		return fmt.Errorf("DB_API_KEY and DB_CLIENT_ID must be set")
	}
	return nil
}

// yesterday is the day the daily jobs operate on: combine and load always
// process the previous calendar day.
func yesterday(loc *time.Location) time.Time {
	return time.Now().In(loc).AddDate(0, 0, -1)
}

func parseDay(day string, loc *time.Location) (time.Time, error) {
	if day == "" {
		return yesterday(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q (want YYYY-MM-DD): %w", day, err)
	}
	return t, nil
}

type stationsCmd struct {
	FederalState string `default:"bayern" help:"Federal state to discover stations in."`
}

func (c *stationsCmd) Run(g *globals) error {
	if err := g.requireCredentials(); err != nil {
		return err
	}
	app, err := g.build()
	if err != nil {
		return err
	}
	return app.pipeline.DiscoverStations(context.Background(), c.FederalState)
}

type collectCmd struct{}

func (c *collectCmd) Run(g *globals) error {
	if err := g.requireCredentials(); err != nil {
		return err
	}
	app, err := g.build()
	if err != nil {
		return err
	}
	return app.pipeline.Collect(context.Background(), time.Now())
}

type combineCmd struct {
	Date string `help:"Day to combine as YYYY-MM-DD (default: yesterday)."`
}

func (c *combineCmd) Run(g *globals) error {
	app, err := g.build()
	if err != nil {
		return err
	}
	day, err := parseDay(c.Date, app.loc)
	if err != nil {
		return err
	}
	return app.pipeline.Combine(day)
}

type loadCmd struct {
	Date string `help:"Day to load as YYYY-MM-DD (default: yesterday)."`
}

func (c *loadCmd) Run(g *globals) error {
	app, err := g.build()
	if err != nil {
		return err
	}
	day, err := parseDay(c.Date, app.loc)
	if err != nil {
		return err
	}
	return app.pipeline.Load(day, g.Database)
}

type runCmd struct {
	Port        string `default:"8080" help:"HTTP port for health and metrics."`
	CollectSpec string `default:"5 0,6,12,18 * * *" help:"Cron spec for raw collection."`
	CombineSpec string `default:"0 1 * * *" help:"Cron spec for the daily combine."`
	LoadSpec    string `default:"0 2 * * *" help:"Cron spec for the daily warehouse load."`
}

func (c *runCmd) Run(g *globals) error {
	if err := g.requireCredentials(); err != nil {
		return err
	}
	app, err := g.build()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler := cron.New(cron.WithLocation(app.loc))
	if _, err := scheduler.AddFunc(c.CollectSpec, func() {
		if err := app.pipeline.Collect(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("collect cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule collect: %w", err)
	}
	if _, err := scheduler.AddFunc(c.CombineSpec, func() {
		if err := app.pipeline.Combine(yesterday(app.loc)); err != nil {
			log.Error().Err(err).Msg("daily combine failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule combine: %w", err)
	}
	if _, err := scheduler.AddFunc(c.LoadSpec, func() {
		if err := app.pipeline.Load(yesterday(app.loc), g.Database); err != nil {
			log.Error().Err(err).Msg("daily load failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule load: %w", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Str("port", c.Port).Msg("scheduler running")
	return api.NewServer(c.Port).Run(ctx)
}

func main() {
	var app cli
	ktx := kong.Parse(&app,
		kong.Name("bahnspiegel"),
		kong.Description("Rail timetable snapshot pipeline and dimensional warehouse."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if app.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := ktx.Run(&app.globals); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}
