package server

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/lidardsm/internal/config"
	"github.com/woozymasta/lidardsm/internal/report"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config    *config.Config
	OutputDir string
	Title     string
	// DatasetResolver maps dataset names and file prefixes to dataset names.
	DatasetResolver map[string]string
}

// NewServerContext indexes the configured datasets. Datasets without a
// run.json are still resolvable so they appear once a run finishes.
func NewServerContext(cfg *config.Config) *ServerContext {
	log.Info().Int("config_datasets_count", len(cfg.Datasets)).Msg("Initializing server context")

	resolver := make(map[string]string, len(cfg.Datasets))
	ready := 0
	for _, ds := range cfg.Datasets {
		resolver[ds.Name] = ds.Name
		if p := ds.FilePrefix(); p != ds.Name {
			resolver[p] = ds.Name
		}

		runPath := filepath.Join(cfg.OutputDir, ds.Name, report.RunFile)
		if _, err := os.Stat(runPath); os.IsNotExist(err) {
			log.Trace().
				Str("dataset", ds.Name).
				Str("path", runPath).
				Msg("Dataset has no finished run yet")
			continue
		}
		ready++
		log.Debug().Str("dataset", ds.Name).Msg("Dataset run found")
	}

	log.Info().
		Int("datasets_ready", ready).
		Str("output_dir", cfg.OutputDir).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:          cfg,
		OutputDir:       cfg.OutputDir,
		Title:           "Digital surface models",
		DatasetResolver: resolver,
	}
}

func (s *ServerContext) datasetDir(name string) string {
	return filepath.Join(s.OutputDir, name)
}
