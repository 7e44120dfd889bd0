// Package config handles configuration loading and per-dataset processing parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/points"

	"gopkg.in/yaml.v3"
)

// ErrConfig is returned for unreadable or invalid configuration.
var ErrConfig = errors.New("invalid configuration")

// Config represents the root configuration file structure.
type Config struct {
	OutputDir  string        `yaml:"output_dir" json:"output_dir"`
	WorkDir    string        `yaml:"work_dir" json:"work_dir"`
	LAZCommand string        `yaml:"laz_command,omitempty" json:"laz_command,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Defaults   Params        `yaml:"defaults" json:"defaults"`
	Datasets   []Dataset     `yaml:"datasets" json:"datasets"`
}

// Params are the processing parameters every dataset inherits from defaults.
type Params struct {
	Spacing        geo.Spacing `yaml:"spacing" json:"spacing"`
	Quantile       float64     `yaml:"quantile" json:"quantile"`
	Tension        float64     `yaml:"tension" json:"tension"`
	MaxIterations  int         `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	ExcludeClasses []int       `yaml:"exclude_classes" json:"exclude_classes"`
	Decimate       int         `yaml:"decimate" json:"decimate"`
	ColorMap       string      `yaml:"cmap" json:"cmap"`
	Azimuth        float64     `yaml:"azimuth" json:"azimuth"`
	Elevation      float64     `yaml:"elevation" json:"elevation"`
	ZScale         float64     `yaml:"zscale" json:"zscale"`
	Shading        bool        `yaml:"shading" json:"shading"`
	ImageFormat    string      `yaml:"image_format" json:"image_format"`
	ImageWidth     int         `yaml:"image_width,omitempty" json:"image_width,omitempty"`
}

// Dataset represents a single point cloud area to process.
type Dataset struct {
	Params `yaml:",inline"`

	Name       string     `yaml:"name" json:"name"`
	Title      string     `yaml:"title,omitempty" json:"title,omitempty"`
	Prefix     string     `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	RasterName string     `yaml:"raster_name,omitempty" json:"raster_name,omitempty"`
	Sources    []string   `yaml:"sources" json:"sources"`
	CRS        geo.CRS    `yaml:"crs,omitempty" json:"crs,omitempty"`            // fallback when files carry none
	Region     geo.Region `yaml:"region,omitempty" json:"region,omitempty"`      // processing region, default data extent
	MapRegion  geo.Region `yaml:"map_region,omitempty" json:"map_region,omitempty"`
	MapRange   []float64  `yaml:"map_range,omitempty" json:"map_range,omitempty"`
}

// DefaultParams returns the walkthrough constants.
func DefaultParams() Params {
	return Params{
		Spacing:        geo.MustParseSpacing("1+e"),
		Quantile:       0.99,
		Tension:        0.35,
		ExcludeClasses: []int{int(points.ClassHighNoise)},
		Decimate:       20,
		ColorMap:       "bukavu",
		Azimuth:        315,
		Elevation:      30,
		ZScale:         0.02,
		Shading:        true,
		ImageFormat:    "png",
		ImageWidth:     1200,
	}
}

// Default returns a configuration with defaults and no datasets.
func Default() *Config {
	return &Config{
		OutputDir: "output",
		WorkDir:   ".",
		Timeout:   10 * time.Minute,
		Defaults:  DefaultParams(),
	}
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Missing defaults take the built-in values
// and every dataset starts from the resolved defaults before its own keys apply.
func Parse(data []byte) (*Config, error) {
	var raw struct {
		OutputDir  string        `yaml:"output_dir"`
		WorkDir    string        `yaml:"work_dir"`
		LAZCommand string        `yaml:"laz_command"`
		Timeout    time.Duration `yaml:"timeout"`
		Defaults   yaml.Node     `yaml:"defaults"`
		Datasets   []yaml.Node   `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := Default()
	if raw.OutputDir != "" {
		cfg.OutputDir = raw.OutputDir
	}
	if raw.WorkDir != "" {
		cfg.WorkDir = raw.WorkDir
	}
	if raw.Timeout > 0 {
		cfg.Timeout = raw.Timeout
	}
	cfg.LAZCommand = raw.LAZCommand

	if !raw.Defaults.IsZero() {
		if err := raw.Defaults.Decode(&cfg.Defaults); err != nil {
			return nil, fmt.Errorf("%w: defaults: %v", ErrConfig, err)
		}
	}

	for i := range raw.Datasets {
		ds := Dataset{Params: cfg.Defaults}
		ds.ExcludeClasses = append([]int(nil), cfg.Defaults.ExcludeClasses...)
		if err := raw.Datasets[i].Decode(&ds); err != nil {
			return nil, fmt.Errorf("%w: dataset %d: %v", ErrConfig, i, err)
		}
		cfg.Datasets = append(cfg.Datasets, ds)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the datasets and their parameters.
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return fmt.Errorf("%w: no datasets defined", ErrConfig)
	}

	seen := make(map[string]bool, len(c.Datasets))
	for _, ds := range c.Datasets {
		if !nameRe.MatchString(ds.Name) {
			return fmt.Errorf("%w: dataset name %q must be lowercase letters, digits, '-' or '_'", ErrConfig, ds.Name)
		}
		if seen[ds.Name] {
			return fmt.Errorf("%w: duplicate dataset %q", ErrConfig, ds.Name)
		}
		seen[ds.Name] = true

		if err := ds.Validate(); err != nil {
			return fmt.Errorf("%w: dataset %q: %v", ErrConfig, ds.Name, err)
		}
	}
	return nil
}

// Validate checks the dataset parameters that can be judged before processing.
func (d Dataset) Validate() error {
	if len(d.Sources) == 0 {
		return errors.New("no sources")
	}
	if err := d.Spacing.Validate(); err != nil {
		return err
	}
	if d.Quantile < 0 || d.Quantile > 1 {
		return fmt.Errorf("quantile %g outside [0, 1]", d.Quantile)
	}
	if d.Tension < 0 || d.Tension > 1 {
		return fmt.Errorf("tension %g outside [0, 1]", d.Tension)
	}
	for _, c := range d.ExcludeClasses {
		if c < 0 || c > 255 {
			return fmt.Errorf("classification code %d outside [0, 255]", c)
		}
	}
	if f := strings.ToLower(d.ImageFormat); f != "png" && f != "webp" {
		return fmt.Errorf("image format %q must be png or webp", d.ImageFormat)
	}
	if !d.Region.IsZero() {
		if err := d.Region.Validate(); err != nil {
			return fmt.Errorf("region: %v", err)
		}
	}
	if !d.MapRegion.IsZero() {
		if err := d.MapRegion.Validate(); err != nil {
			return fmt.Errorf("map region: %v", err)
		}
	}
	if len(d.MapRange) != 0 && (len(d.MapRange) != 2 || d.MapRange[0] >= d.MapRange[1]) {
		return fmt.Errorf("map range %v must be [min, max] with min < max", d.MapRange)
	}
	return nil
}

// ExcludeCodes returns ExcludeClasses as classification bytes.
func (p Params) ExcludeCodes() []uint8 {
	out := make([]uint8, 0, len(p.ExcludeClasses))
	for _, c := range p.ExcludeClasses {
		out = append(out, uint8(c))
	}
	return out
}

// FilePrefix returns the prefix of rendered image names.
func (d Dataset) FilePrefix() string {
	if d.Prefix != "" {
		return d.Prefix
	}
	return d.Name
}

// RasterFile returns the GeoTIFF file name, DSM_of_<Name>.tif by default.
func (d Dataset) RasterFile() string {
	if d.RasterName != "" {
		return d.RasterName
	}
	name := d.Name
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return "DSM_of_" + name + ".tif"
}

// ImageFile returns the file name of a rendered image kind, e.g. "1d_lidar".
func (d Dataset) ImageFile(kind string) string {
	return d.FilePrefix() + "_" + kind + "." + strings.ToLower(d.ImageFormat)
}

// DisplayTitle returns the title or the name when none is set.
func (d Dataset) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Select returns the named datasets in configuration order, or all when names is empty.
func (c *Config) Select(names ...string) ([]Dataset, error) {
	if len(names) == 0 {
		return c.Datasets, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Dataset
	for _, ds := range c.Datasets {
		if want[ds.Name] {
			out = append(out, ds)
			delete(want, ds.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
			}
		}
		return nil, fmt.Errorf("%w: unknown dataset(s) %s", ErrConfig, strings.Join(missing, ", "))
	}
	return out, nil
}
