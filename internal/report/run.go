// Package report records pipeline runs as run.json summaries and renders
// them into self-contained HTML pages.
package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/woozymasta/lidardsm/internal/config"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/rs/zerolog/log"
)

// File names inside a dataset output directory.
const (
	RunFile       = "run.json"
	IndexFile     = "index.html"
	FootprintFile = "footprint.geojson"
	ThumbDir      = "thumbs"
)

// Image describes one rendered figure.
type Image struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	File   string `json:"file"`
	Thumb  string `json:"thumb,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Run summarises one processed dataset.
type Run struct {
	ID         string         `json:"id"`
	Dataset    string         `json:"dataset"`
	Title      string         `json:"title"`
	Started    time.Time      `json:"started"`
	DurationMS int64          `json:"duration_ms"`
	Sources    []string       `json:"sources"`
	CRS        geo.CRS        `json:"crs"`
	Params     config.Params  `json:"params"`
	Region     geo.Region     `json:"region"`
	Spacing    float64        `json:"spacing"`
	Loaded     int            `json:"points_loaded"`
	Kept       int            `json:"points_kept"`
	Classes    map[uint8]int  `json:"classes"`
	Summary    points.Summary `json:"summary"`
	Cells      int            `json:"cells"`
	NX         int            `json:"nx"`
	NY         int            `json:"ny"`
	ZMin       float64        `json:"zmin"`
	ZMax       float64        `json:"zmax"`
	Raster     string         `json:"raster"`
	Footprint  string         `json:"footprint"`
	Images     []Image        `json:"images"`
}

// Excluded returns how many points the class filter removed.
func (r *Run) Excluded() int { return r.Loaded - r.Kept }

// Duration returns the run time.
func (r *Run) Duration() time.Duration { return time.Duration(r.DurationMS) * time.Millisecond }

// WriteJSON stores the run as dir/run.json.
func WriteJSON(dir string, run *Run) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, RunFile), data, 0644)
}

// ReadJSON loads dir/run.json.
func ReadJSON(dir string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunFile))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// List loads every run found one level below outputDir, sorted by dataset name.
// Directories without a readable run.json are skipped.
func List(outputDir string) ([]*Run, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var runs []*Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := ReadJSON(filepath.Join(outputDir, e.Name()))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("dir", e.Name()).Msg("Skipping unreadable run summary")
			}
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Dataset < runs[j].Dataset })
	return runs, nil
}
