package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/lidardsm/internal/config"
	"github.com/woozymasta/lidardsm/internal/logger"
	"github.com/woozymasta/lidardsm/internal/pipeline"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string        `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Limit      []string      `short:"l" long:"limit"       env:"LIMIT_NAMES" description:"Limit processing to specific dataset names"`
	OutputDir  string        `short:"o" long:"output"      env:"OUTPUT_DIR"  description:"Override output directory"`
	WorkDir    string        `short:"w" long:"work-dir"    env:"WORK_DIR"    description:"Override download directory"`
	LAZCommand string        `long:"laz-command"           env:"LAZ_COMMAND" description:"LAZ decompressor executable"`
	Timeout    time.Duration `short:"t" long:"timeout"     env:"TIMEOUT"     description:"Download timeout per file"`
	Offline    bool          `long:"offline"               description:"Do not download missing sources"`
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

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.WorkDir != "" {
		cfg.WorkDir = opts.WorkDir
	}
	if opts.LAZCommand != "" {
		cfg.LAZCommand = opts.LAZCommand
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}

	datasets, err := cfg.Select(opts.Limit...)
	if err != nil {
		log.Fatal().Err(err).Msg("Dataset specified in --limit not found in configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.New(cfg)
	runner.Download = !opts.Offline

	log.Info().
		Int("datasets_total", len(cfg.Datasets)).
		Int("datasets_queued", len(datasets)).
		Str("output_dir", cfg.OutputDir).
		Bool("offline", opts.Offline).
		Msg("Starting DSM pipeline")

	runs, err := runner.RunAll(ctx, datasets)
	if err != nil {
		log.Error().
			Err(err).
			Str("stage", pipeline.Stage(err)).
			Int("datasets_done", len(runs)).
			Msg("Pipeline failed")
		stop()
		os.Exit(1)
	}

	log.Info().Int("datasets_done", len(runs)).Msg("Pipeline finished successfully")
}
