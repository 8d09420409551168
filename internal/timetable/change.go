package timetable

import (
	"database/sql"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/bahnspiegel/bahnspiegel/internal/metrics"
	"github.com/bahnspiegel/bahnspiegel/internal/models"
)

// ChangeBatch holds the change facts of one document in document order.
type ChangeBatch []models.ChangeFact

// ExtractChanges parses one change-snapshot document. Stops whose category is
// excluded, and stops carrying neither a changed time nor a cancellation on
// either leg, produce no record at all.
func (e *Extractor) ExtractChanges(r io.Reader) (ChangeBatch, error) {
	var doc timetableDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode change document: %w", err)
	}

	var batch ChangeBatch
	for _, s := range doc.Stops {
		category := ""
		if s.TripLabel != nil {
			category = s.TripLabel.Category
		}
		if excludedCategories[category] {
			continue
		}

		arrivalChange := e.parseChangedTime(s.Arrival)
		departureChange := e.parseChangedTime(s.Departure)
		canceled := hasCancellation(s.Arrival) || hasCancellation(s.Departure)

		if !arrivalChange.Valid && !departureChange.Valid && !canceled {
			continue
		}

		batch = append(batch, models.ChangeFact{
			StopID:          s.ID,
			ArrivalChange:   arrivalChange,
			DepartureChange: departureChange,
			Canceled:        canceled,
		})
		metrics.StopsExtracted.WithLabelValues("change").Inc()
	}
	return batch, nil
}

// ReduceChanges folds per-document batches into a single map keyed by stop
// id. Batches must be supplied in chronological polling order: the last
// record for a stop id fully replaces earlier ones. Entries are only ever
// added or replaced, never deleted, so a cancellation recorded by an early
// poll survives later documents that omit the stop.
func ReduceChanges(batches []ChangeBatch) map[string]models.ChangeFact {
	changes := make(map[string]models.ChangeFact)
	for _, batch := range batches {
		for _, c := range batch {
			changes[c.StopID] = c
		}
	}
	return changes
}

func (e *Extractor) parseChangedTime(ev *eventElem) sql.NullTime {
	if ev == nil {
		return sql.NullTime{}
	}
	return e.parseTime(ev.ChangedTime)
}

func hasCancellation(ev *eventElem) bool {
	return ev != nil && ev.CancellationTime != ""
}
