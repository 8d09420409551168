package timetable

import (
	"strings"
	"testing"
)

func TestExtractChanges_RecordsOnlyActualChanges(t *testing.T) {
	doc := `<timetable station="X">
		<s id="RE-1-1"><tl c="RE" n="1"/><ar ct="2505081545"/></s>
		<s id="RE-1-2"><tl c="RE" n="1"/><ar pt="2505081600"/></s>
		<s id="RE-1-3"><tl c="RE" n="1"/><dp clt="2505081530"/></s>
		<s id="S-1-1"><tl c="S" n="1"/><ar ct="2505081545"/></s>
	</timetable>`

	batch, err := testExtractor(t).ExtractChanges(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2 (unchanged and excluded stops skipped)", len(batch))
	}

	if batch[0].StopID != "RE-1-1" {
		t.Errorf("batch[0].StopID = %q", batch[0].StopID)
	}
	if !batch[0].ArrivalChange.Valid {
		t.Error("batch[0].ArrivalChange should be set")
	}
	if batch[0].Canceled {
		t.Error("batch[0].Canceled = true, want false")
	}

	if batch[1].StopID != "RE-1-3" {
		t.Errorf("batch[1].StopID = %q", batch[1].StopID)
	}
	if !batch[1].Canceled {
		t.Error("batch[1].Canceled = false, want true for cancellation timestamp")
	}
	if batch[1].ArrivalChange.Valid || batch[1].DepartureChange.Valid {
		t.Error("cancellation-only record should carry no change times")
	}
}

func TestExtractChanges_CanceledOnEitherLeg(t *testing.T) {
	doc := `<timetable station="X">
		<s id="RE-1-1"><tl c="RE" n="1"/><ar clt="2505081530"/></s>
		<s id="RE-2-1"><tl c="RE" n="2"/><dp clt="2505081530"/></s>
	</timetable>`

	batch, err := testExtractor(t).ExtractChanges(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
	for _, c := range batch {
		if !c.Canceled {
			t.Errorf("stop %s: Canceled = false, want true", c.StopID)
		}
	}
}

func TestReduceChanges_LastWriteWins(t *testing.T) {
	e := testExtractor(t)

	first, err := e.ExtractChanges(strings.NewReader(
		`<timetable station="X"><s id="RE-1-1"><tl c="RE" n="1"/><ar ct="2505081540"/></s></timetable>`))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}
	second, err := e.ExtractChanges(strings.NewReader(
		`<timetable station="X"><s id="RE-1-1"><tl c="RE" n="1"/><ar ct="2505081550"/></s></timetable>`))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}

	changes := ReduceChanges([]ChangeBatch{first, second})
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	got := changes["RE-1-1"]
	if got.ArrivalChange.Time.Minute() != 50 {
		t.Errorf("ArrivalChange minute = %d, want 50 (later document wins)", got.ArrivalChange.Time.Minute())
	}
}

func TestReduceChanges_EntriesNeverDeleted(t *testing.T) {
	e := testExtractor(t)

	// First poll cancels stop X; the second poll omits it entirely.
	first, err := e.ExtractChanges(strings.NewReader(
		`<timetable station="X"><s id="RE-1-1"><tl c="RE" n="1"/><ar clt="2505081530"/></s></timetable>`))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}
	second, err := e.ExtractChanges(strings.NewReader(
		`<timetable station="X"><s id="RE-9-1"><tl c="RE" n="9"/><ar ct="2505081540"/></s></timetable>`))
	if err != nil {
		t.Fatalf("ExtractChanges: %v", err)
	}

	changes := ReduceChanges([]ChangeBatch{first, second})
	got, ok := changes["RE-1-1"]
	if !ok {
		t.Fatal("cancellation entry disappeared after later batch omitted the stop")
	}
	if !got.Canceled {
		t.Error("Canceled = false, want true to survive later batches")
	}
}
