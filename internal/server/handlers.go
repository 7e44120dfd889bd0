// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/lidardsm/internal/report"
)

const etagCap = 64

var contentTypes = map[string]string{
	".tif":     "image/tiff",
	".geojson": "application/geo+json",
	".json":    "application/json",
	".webp":    "image/webp",
	".png":     "image/png",
	".html":    "text/html; charset=utf-8",
}

// HandleRunsList serves the summaries of all finished runs.
func (s *ServerContext) HandleRunsList(w http.ResponseWriter, r *http.Request) {
	runs, err := report.List(s.OutputDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*report.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(runs)
}

// HandleRun serves the summary of one run: /api/runs/{dataset}.
func (s *ServerContext) HandleRun(w http.ResponseWriter, r *http.Request) {
	name, ok := s.DatasetResolver[strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !s.serveFile(w, r, filepath.Join(s.datasetDir(name), report.RunFile), "application/json") {
		http.NotFound(w, r)
	}
}

// HandleRoot serves the run index at "/" and dataset artifacts below it.
func (s *ServerContext) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		s.handleIndex(w, r)
		return
	}
	s.handleDataset(w, r)
}

func (s *ServerContext) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := report.List(s.OutputDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	page, err := report.IndexHTML(s.Title, runs)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "failed to render index", http.StatusInternalServerError)
		return
	}

	h := fnv.New64a()
	_, _ = h.Write(page)
	etag := fmt.Sprintf(`"%x"`, h.Sum64())

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(page)
}

// handleDataset serves /{dataset}/[file]. Only files recorded in the
// dataset's run.json are reachable, to prevent path probing.
func (s *ServerContext) handleDataset(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)

	name, ok := s.DatasetResolver[parts[0]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		http.Redirect(w, r, "/"+parts[0]+"/", http.StatusMovedPermanently)
		return
	}

	file := parts[1]
	if file == "" {
		file = report.IndexFile
	}

	dir := s.datasetDir(name)
	run, err := report.ReadJSON(dir)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !allowed(run, file) {
		http.NotFound(w, r)
		return
	}

	if !s.serveFile(w, r, filepath.Join(dir, filepath.FromSlash(file)), contentTypes[path.Ext(file)]) {
		http.NotFound(w, r)
	}
}

func allowed(run *report.Run, file string) bool {
	switch file {
	case report.IndexFile, report.RunFile, run.Raster, run.Footprint:
		return true
	}
	for _, img := range run.Images {
		if file == img.File || file == img.Thumb {
			return true
		}
	}
	return false
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

// Routes registers all handlers on a new mux wrapped in RequestLogger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.HandleRunsList)
	mux.HandleFunc("/api/runs/", s.HandleRun)
	mux.HandleFunc("/", s.HandleRoot)
	return RequestLogger(mux)
}
