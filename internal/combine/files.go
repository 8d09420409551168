package combine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoData reports that a day's raw folder exists but holds no usable
// snapshot files (or is missing entirely).
var ErrNoData = errors.New("no raw timetable files for day")

// DayFiles lists a day's raw snapshot files, split by feed. Change files are
// ordered by polling hour so that folding them preserves last-write-wins
// semantics across the day.
type DayFiles struct {
	Plan   []string
	Change []string
}

// FindDayFiles scans rawDir/<yymmdd> for files following the collector's
// naming convention {eva}_{plan|change}_{yymmdd}_{hh}.xml.
func FindDayFiles(rawDir string, day time.Time) (DayFiles, error) {
	tag := day.Format("060102")
	dir := filepath.Join(rawDir, tag)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return DayFiles{}, fmt.Errorf("%w: %s", ErrNoData, dir)
	}
	if err != nil {
		return DayFiles{}, fmt.Errorf("read raw folder %s: %w", dir, err)
	}

	var files DayFiles
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".xml") || !strings.Contains(name, tag) {
			continue
		}
		switch {
		case strings.Contains(name, "_plan_"):
			files.Plan = append(files.Plan, filepath.Join(dir, name))
		case strings.Contains(name, "_change_"):
			files.Change = append(files.Change, filepath.Join(dir, name))
		}
	}

	if len(files.Plan) == 0 && len(files.Change) == 0 {
		return DayFiles{}, fmt.Errorf("%w: %s", ErrNoData, dir)
	}

	sort.Strings(files.Plan)
	sortByPollingHour(files.Change)
	return files, nil
}

// sortByPollingHour orders change files by the trailing _{hh} of the name
// first and by station second, so later polls override earlier ones.
func sortByPollingHour(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		hi, hj := pollingHour(paths[i]), pollingHour(paths[j])
		if hi != hj {
			return hi < hj
		}
		return paths[i] < paths[j]
	})
}

func pollingHour(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".xml")
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
