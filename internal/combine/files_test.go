package combine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRawFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("<timetable/>"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFindDayFiles(t *testing.T) {
	rawDir := t.TempDir()
	day := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	dir := filepath.Join(rawDir, "250508")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	writeRawFile(t, dir, "8000284_plan_250508_06.xml")
	writeRawFile(t, dir, "8000284_change_250508_12.xml")
	writeRawFile(t, dir, "8000284_change_250508_06.xml")
	writeRawFile(t, dir, "8000105_change_250508_12.xml")
	writeRawFile(t, dir, "notes.txt")
	writeRawFile(t, dir, "8000284_plan_250507_06.xml")

	files, err := FindDayFiles(rawDir, day)
	if err != nil {
		t.Fatalf("FindDayFiles: %v", err)
	}

	if len(files.Plan) != 1 {
		t.Fatalf("len(Plan) = %d, want 1", len(files.Plan))
	}

	want := []string{
		"8000284_change_250508_06.xml",
		"8000105_change_250508_12.xml",
		"8000284_change_250508_12.xml",
	}
	if len(files.Change) != len(want) {
		t.Fatalf("len(Change) = %d, want %d", len(files.Change), len(want))
	}
	for i, path := range files.Change {
		if got := filepath.Base(path); got != want[i] {
			t.Errorf("Change[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestFindDayFiles_MissingFolder(t *testing.T) {
	_, err := FindDayFiles(t.TempDir(), time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestFindDayFiles_EmptyFolder(t *testing.T) {
	rawDir := t.TempDir()
	day := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	if err := os.MkdirAll(filepath.Join(rawDir, "250508"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := FindDayFiles(rawDir, day)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}
