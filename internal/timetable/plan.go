package timetable

import (
	"database/sql"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bahnspiegel/bahnspiegel/internal/metrics"
	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

// TimeLayout is the feed's compact timestamp format, e.g. "2505081530"
// for 2025-05-08 15:30.
const TimeLayout = "0601021504"

// Categories that never reach the warehouse: urban rail and buses.
var excludedCategories = map[string]bool{
	"S":   true,
	"U":   true,
	"Bus": true,
}

// Long-distance classes are named by train number ("ICE 100"); everything
// else is named by line ("RE 7").
var longDistanceCategories = map[string]bool{
	"ICE": true,
	"IC":  true,
	"EC":  true,
}

// Extractor turns raw timetable documents into stop facts. Timestamps in the
// feed carry no zone; they are interpreted in loc.
type Extractor struct {
	loc *time.Location
}

func NewExtractor(loc *time.Location) *Extractor {
	return &Extractor{loc: loc}
}

// ExtractPlanned parses a planned-snapshot document into the normalized stop
// facts of one station. Individual malformed stop elements are skipped; only
// an undecodable document is an error.
func (e *Extractor) ExtractPlanned(r io.Reader) ([]models.StopFact, error) {
	var doc timetableDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan document: %w", err)
	}

	var facts []models.StopFact
	for _, s := range doc.Stops {
		category, number := "", ""
		if s.TripLabel != nil {
			category = s.TripLabel.Category
			number = s.TripLabel.Number
		}
		if excludedCategories[category] {
			continue
		}

		key, err := models.ParseStopID(s.ID)
		if err != nil {
			log.Debug().Str("station", doc.Station).Err(err).Msg("skipping malformed stop element")
			continue
		}

		arrival := e.parseEventTime(s.Arrival)
		departure := e.parseEventTime(s.Departure)

		facts = append(facts, models.StopFact{
			Key:                     key,
			Station:                 doc.Station,
			FinalDestinationStation: destination(doc.Station, s.Departure),
			TrainName:               trainName(category, number, s.Arrival, s.Departure),
			TrainType:               category,
			ArrivalPlanned:          arrival,
			DeparturePlanned:        departure,
			Weekday:                 weekday(firstTime(arrival, departure)),
		})
		metrics.StopsExtracted.WithLabelValues("plan").Inc()
	}
	return facts, nil
}

func trainName(category, number string, arrival, departure *eventElem) string {
	if longDistanceCategories[category] {
		return category + " " + number
	}
	if arrival != nil && arrival.Line != "" {
		return category + " " + arrival.Line
	}
	if departure != nil && departure.Line != "" {
		return category + " " + departure.Line
	}
	return category
}

// destination is the last entry of the departure leg's planned route. A stop
// without a departure route is the terminus, so the station itself.
func destination(station string, departure *eventElem) string {
	if departure == nil || departure.PlannedPath == "" {
		return station
	}
	path := strings.Split(departure.PlannedPath, "|")
	return path[len(path)-1]
}

func (e *Extractor) parseEventTime(ev *eventElem) sql.NullTime {
	if ev == nil {
		return sql.NullTime{}
	}
	return e.parseTime(ev.PlannedTime)
}

func (e *Extractor) parseTime(raw string) sql.NullTime {
	if len(raw) != len(TimeLayout) {
		return sql.NullTime{}
	}
	t, err := time.ParseInLocation(TimeLayout, raw, e.loc)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func firstTime(times ...sql.NullTime) sql.NullTime {
	for _, t := range times {
		if t.Valid {
			return t
		}
	}
	return sql.NullTime{}
}

func weekday(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Weekday().String()
}
