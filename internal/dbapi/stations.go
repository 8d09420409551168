package dbapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// StationEntry is one discovered station with its EVA numbers, the shape
// persisted to the eva-numbers file.
type StationEntry struct {
	Name     string `json:"name"`
	Category int    `json:"category"`
	Evas     string `json:"evas"` // comma-joined EVA numbers
}

type stationResponse struct {
	Result []struct {
		Name       string `json:"name"`
		Category   int    `json:"category"`
		EvaNumbers []struct {
			Number int `json:"number"`
		} `json:"evaNumbers"`
	} `json:"result"`
}

// FetchStations queries the station directory for main stations (category
// 1-2) within the given federal state.
func (c *Client) FetchStations(ctx context.Context, federalState string) ([]StationEntry, error) {
	query := url.Values{}
	query.Set("category", "1-2")
	query.Set("federalstate", federalState)
	query.Set("logicaloperator", "or")

	body, err := c.fetchJSON(ctx, "stations", c.stationBase+"/stations?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var data stationResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal stations: %w", err)
	}

	entries := make([]StationEntry, 0, len(data.Result))
	for _, st := range data.Result {
		evas := make([]string, 0, len(st.EvaNumbers))
		for _, eva := range st.EvaNumbers {
			evas = append(evas, fmt.Sprintf("%d", eva.Number))
		}
		entries = append(entries, StationEntry{
			Name:     st.Name,
			Category: st.Category,
			Evas:     strings.Join(evas, ","),
		})
	}
	return entries, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint, url string) ([]byte, error) {
	return c.fetch(ctx, endpoint, url, "application/json")
}

// WriteStationFile persists discovered stations for the collector to read.
func WriteStationFile(path string, entries []StationEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create station folder: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal stations: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write station file: %w", err)
	}
	return nil
}

// ReadEVANumbers loads the flattened EVA number list from the station file.
func ReadEVANumbers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station file: %w", err)
	}
	var entries []StationEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal station file: %w", err)
	}

	var evas []string
	for _, entry := range entries {
		for _, eva := range strings.Split(entry.Evas, ",") {
			if eva = strings.TrimSpace(eva); eva != "" {
				evas = append(evas, eva)
			}
		}
	}
	return evas, nil
}
