// Package pipeline runs the per-dataset chain: fetch, load, filter, reduce,
// interpolate, render and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/woozymasta/lidardsm/internal/blockreduce"
	"github.com/woozymasta/lidardsm/internal/config"
	"github.com/woozymasta/lidardsm/internal/fetch"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/geotiff"
	"github.com/woozymasta/lidardsm/internal/grid"
	"github.com/woozymasta/lidardsm/internal/las"
	"github.com/woozymasta/lidardsm/internal/points"
	"github.com/woozymasta/lidardsm/internal/render"
	"github.com/woozymasta/lidardsm/internal/report"
	"github.com/woozymasta/lidardsm/internal/surface"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Stage names used in errors and logs.
const (
	StageFetch   = "fetch"
	StageLoad    = "load"
	StageFilter  = "filter"
	StageReduce  = "reduce"
	StageSurface = "surface"
	StageRender  = "render"
	StageExport  = "export"
	StageReport  = "report"
)

// Image kinds, also used as file name suffixes.
const (
	KindPoints      = "1d_lidar"
	KindMap         = "2d_dsm_map"
	KindPerspective = "3d_dsm_view"
)

const thumbSize = 360

// StageError reports which stage of a dataset run failed.
type StageError struct {
	Dataset string
	Stage   string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Dataset, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Runner executes datasets sequentially.
type Runner struct {
	Fetcher      *fetch.Fetcher
	Decompressor las.Decompressor
	OutputDir    string
	// Download allows fetching remote sources that are not cached yet.
	Download bool

	now func() time.Time
}

// New returns a Runner writing to cfg.OutputDir and caching downloads in cfg.WorkDir.
func New(cfg *config.Config) *Runner {
	return &Runner{
		Fetcher:      fetch.New(cfg.WorkDir, cfg.Timeout),
		Decompressor: las.Decompressor{Command: cfg.LAZCommand, TempDir: cfg.WorkDir},
		OutputDir:    cfg.OutputDir,
		Download:     true,
		now:          time.Now,
	}
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

// RunAll processes datasets in order and stops at the first failure.
func (r *Runner) RunAll(ctx context.Context, datasets []config.Dataset) ([]*report.Run, error) {
	runs := make([]*report.Run, 0, len(datasets))
	for _, ds := range datasets {
		run, err := r.Run(ctx, ds)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	if err := report.WriteIndex(r.OutputDir, "Digital surface models"); err != nil {
		return runs, &StageError{Stage: StageReport, Err: err}
	}
	return runs, nil
}

// Run processes a single dataset and writes its artifacts to OutputDir/<name>.
func (r *Runner) Run(ctx context.Context, ds config.Dataset) (*report.Run, error) {
	started := r.clock()
	dir := filepath.Join(r.OutputDir, ds.Name)
	fail := func(stage string, err error) (*report.Run, error) {
		return nil, &StageError{Dataset: ds.Name, Stage: stage, Err: err}
	}
	logger := log.With().Str("dataset", ds.Name).Logger()

	run := &report.Run{
		ID:      uuid.NewString(),
		Dataset: ds.Name,
		Title:   ds.DisplayTitle(),
		Started: started,
		Sources: ds.Sources,
		Params:  ds.Params,
	}

	// Fetch
	paths, err := r.Fetcher.WhichAll(ctx, ds.Sources, r.Download)
	if err != nil {
		return fail(StageFetch, err)
	}

	// Load
	t := r.clock()
	cloud, err := las.LoadAll(ctx, paths, r.Decompressor)
	if err != nil {
		return fail(StageLoad, err)
	}
	if cloud.CRS.EPSG == 0 && ds.CRS.EPSG > 0 {
		cloud.CRS.EPSG = ds.CRS.EPSG
	}
	run.Loaded = cloud.Len()
	run.Classes = cloud.Classes()
	logger.Info().Int("points", cloud.Len()).Str("crs", cloud.CRS.String()).Dur("duration", r.clock().Sub(t)).Msg("Point cloud loaded")

	// Filter
	kept := cloud.Exclude(ds.ExcludeCodes()...)
	run.Kept = kept.Len()
	run.CRS = kept.CRS
	run.Summary = kept.Summary()
	logger.Info().Int("points", kept.Len()).Int("excluded", run.Excluded()).Msg("Classes filtered")
	if kept.Len() == 0 {
		return fail(StageFilter, fmt.Errorf("%w: no points left after excluding classes %v", surface.ErrInput, ds.ExcludeClasses))
	}

	// Region and spacing
	region, inc, err := resolveRegion(ds, kept)
	if err != nil {
		return fail(StageReduce, err)
	}
	run.Region, run.Spacing = region, inc
	if err := ctx.Err(); err != nil {
		return fail(StageReduce, err)
	}

	// Reduce
	t = r.clock()
	reduced, err := blockreduce.Reduce(kept.Points, blockreduce.Options{
		Spacing:  inc,
		Region:   region,
		Quantile: ds.Quantile,
	})
	if err != nil {
		return fail(StageReduce, err)
	}
	run.Cells = len(reduced)
	logger.Info().Int("cells", len(reduced)).Float64("quantile", ds.Quantile).Dur("duration", r.clock().Sub(t)).Msg("Points reduced")

	// Surface
	t = r.clock()
	g, err := surface.Grid(reduced, surface.Options{
		Spacing:       inc,
		Region:        region,
		Tension:       ds.Tension,
		MaxIterations: ds.MaxIterations,
		CRS:           kept.CRS,
	})
	if err != nil {
		return fail(StageSurface, err)
	}
	run.NX, run.NY = g.NX, g.NY
	run.ZMin, run.ZMax, _ = g.Range()
	logger.Info().Int("nx", g.NX).Int("ny", g.NY).Dur("duration", r.clock().Sub(t)).Msg("Surface interpolated")
	if err := ctx.Err(); err != nil {
		return fail(StageSurface, err)
	}

	// Render
	images, err := r.renderAll(ds, kept, g, region)
	if err != nil {
		return fail(StageRender, err)
	}
	for _, fig := range images {
		entry, err := saveFigure(dir, ds, fig)
		if err != nil {
			return fail(StageRender, err)
		}
		run.Images = append(run.Images, entry)
	}

	// Export
	run.Raster = ds.RasterFile()
	if err := geotiff.WriteFile(filepath.Join(dir, run.Raster), g); err != nil {
		return fail(StageExport, err)
	}
	run.Footprint = report.FootprintFile
	fc := geo.Footprint(region, map[string]any{
		"dataset": ds.Name,
		"title":   run.Title,
		"crs":     run.CRS.String(),
		"spacing": inc,
	})
	if err := geo.WriteGeoJSON(filepath.Join(dir, run.Footprint), fc); err != nil {
		return fail(StageExport, err)
	}

	// Report
	run.DurationMS = r.clock().Sub(started).Milliseconds()
	if err := report.WriteJSON(dir, run); err != nil {
		return fail(StageReport, err)
	}
	if err := report.WriteHTML(dir, run); err != nil {
		return fail(StageReport, err)
	}

	logger.Info().
		Str("id", run.ID).
		Str("dir", dir).
		Dur("duration", run.Duration()).
		Msg("Dataset processed")
	return run, nil
}

// resolveRegion returns the processing region, snapped outward to the
// spacing and adjusted by the spacing mode, and the final grid increment.
func resolveRegion(ds config.Dataset, c points.Cloud) (geo.Region, float64, error) {
	region := ds.Region
	if region.IsZero() {
		var ok bool
		if region, ok = c.Region(); !ok {
			return geo.Region{}, 0, fmt.Errorf("%w: empty point cloud", blockreduce.ErrReduction)
		}
		if ds.Spacing.Mode != geo.SpacingNodes {
			region = region.Snap(ds.Spacing.Value)
		}
	}

	inc, region, err := ds.Spacing.Resolve(region)
	if err != nil {
		return geo.Region{}, 0, fmt.Errorf("%w: %v", blockreduce.ErrReduction, err)
	}
	return region, inc, nil
}

type figure struct {
	kind, title string
	img         image.Image
}

func (r *Runner) renderAll(ds config.Dataset, c points.Cloud, g *grid.Grid, region geo.Region) ([]figure, error) {
	colors := render.ColorRange{Name: ds.ColorMap}
	mapColors := colors
	if len(ds.MapRange) == 2 {
		mapColors.Min, mapColors.Max = ds.MapRange[0], ds.MapRange[1]
	}

	scatter, err := render.Scatter(c, render.ScatterOptions{
		Title:    ds.DisplayTitle() + " point cloud",
		Decimate: ds.Decimate,
		Region:   region,
		Color:    colors,
		Width:    ds.ImageWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}

	dsm, err := render.Map(g, render.MapOptions{
		Title:  ds.DisplayTitle() + " DSM",
		Region: ds.MapRegion,
		Color:  mapColors,
		Width:  ds.ImageWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}

	view, err := render.Perspective(g, render.PerspectiveOptions{
		Title:     ds.DisplayTitle(),
		Azimuth:   ds.Azimuth,
		Elevation: ds.Elevation,
		ZScale:    ds.ZScale,
		Shading:   ds.Shading,
		Labels:    true,
		Color:     colors,
		Width:     ds.ImageWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("perspective: %w", err)
	}

	return []figure{
		{kind: KindPoints, title: "Point cloud", img: scatter},
		{kind: KindMap, title: "DSM map", img: dsm},
		{kind: KindPerspective, title: "3D view", img: view},
	}, nil
}

func saveFigure(dir string, ds config.Dataset, fig figure) (report.Image, error) {
	name := ds.ImageFile(fig.kind)
	if err := render.Save(filepath.Join(dir, name), fig.img); err != nil {
		return report.Image{}, err
	}

	thumb := filepath.ToSlash(filepath.Join(report.ThumbDir, strings.TrimSuffix(name, filepath.Ext(name))+".webp"))
	if err := render.Save(filepath.Join(dir, thumb), render.Thumbnail(fig.img, thumbSize, thumbSize)); err != nil {
		return report.Image{}, err
	}

	b := fig.img.Bounds()
	return report.Image{
		Kind:   fig.kind,
		Title:  fig.title,
		File:   name,
		Thumb:  thumb,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// Stage returns the failed stage name of err, or "" when err is not a StageError.
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
