package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/woozymasta/lidardsm/internal/fetch"
	"github.com/woozymasta/lidardsm/internal/geo"
	"github.com/woozymasta/lidardsm/internal/las"
	"github.com/woozymasta/lidardsm/internal/logger"
	"github.com/woozymasta/lidardsm/internal/points"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Output     string   `short:"o" long:"out"         description:"Output file path. Writes to stdout if empty"`
	Format     string   `short:"f" long:"format"      description:"Output format" choice:"json" choice:"yaml" default:"json"`
	WorkDir    string   `short:"w" long:"work-dir"    env:"WORK_DIR"    description:"Download directory for URL inputs" default:"."`
	LAZCommand string   `long:"laz-command"           env:"LAZ_COMMAND" description:"LAZ decompressor executable"`
	Exclude    []uint8  `short:"x" long:"exclude"     description:"Classification codes to drop before statistics and extraction"`
	Extract    string   `short:"e" long:"extract"     description:"Write the remaining points of all inputs to this LAS file"`
	Scale      float64  `long:"scale"                 description:"Coordinate scale of the extracted LAS file" default:"0.001"`
	Args       struct {
		Inputs []string `positional-arg-name:"file-or-url" required:"1"`
	} `positional-args:"yes"`
}

type fileInfo struct {
	Path    string         `json:"path" yaml:"path"`
	Version string         `json:"version" yaml:"version"`
	Header  las.Header     `json:"header" yaml:"header"`
	CRS     geo.CRS        `json:"crs" yaml:"crs"`
	Region  geo.Region     `json:"region" yaml:"region"`
	Points  int            `json:"points" yaml:"points"`
	Classes map[uint8]int  `json:"classes" yaml:"classes"`
	Summary points.Summary `json:"summary" yaml:"summary"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	ctx := context.Background()
	fetcher := fetch.New(opts.WorkDir, 10*time.Minute)
	dec := las.Decompressor{Command: opts.LAZCommand, TempDir: opts.WorkDir}

	paths, err := fetcher.WhichAll(ctx, opts.Args.Inputs, true)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve inputs")
	}

	infos := make([]fileInfo, 0, len(paths))
	var all points.Cloud
	for _, p := range paths {
		f, err := las.Load(ctx, p, dec)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("Failed to read point cloud")
		}

		cloud := f.Cloud().Exclude(opts.Exclude...)
		region, _ := cloud.Region()
		infos = append(infos, fileInfo{
			Path:    p,
			Version: f.Header.Version(),
			Header:  f.Header,
			CRS:     f.CRS,
			Region:  region,
			Points:  cloud.Len(),
			Classes: cloud.Classes(),
			Summary: cloud.Summary(),
		})

		if opts.Extract != "" {
			all = all.Concat(cloud)
		}
	}

	if opts.Extract != "" {
		if err := las.WriteFile(opts.Extract, all, opts.Scale); err != nil {
			log.Fatal().Err(err).Str("path", opts.Extract).Msg("Failed to write extracted points")
		}
		log.Info().Str("path", opts.Extract).Int("points", all.Len()).Msg("Points extracted")
	}

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = yaml.Marshal(infos)
	} else {
		outputData, err = json.MarshalIndent(infos, "", "  ")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal report")
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, outputData, 0644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write output file")
		}
		log.Info().Int("files", len(infos)).Str("out", opts.Output).Str("format", opts.Format).Msg("Report written")
		return
	}
	fmt.Println(string(outputData))
}
