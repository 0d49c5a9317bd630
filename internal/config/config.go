// Package config parses the gis-map-server configuration file and the
// GIS_ROOT-rooted paths derived from it, grounded on
// original_source/src/gis-map-server/server.py's parse_config and
// utils.py's get_log_path.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the six required KEY=VALUE entries spec.md §6 names.
type Config struct {
	ServerAddress  string
	ServerPort     int
	SlotsNumber    int
	StorageMaxSize int64
	HTMLPagesPath  string
	GISSharedMemID string
}

var requiredKeys = []string{
	"SERVER_ADDRESS", "SERVER_PORT", "SLOTS_NUMBER",
	"STORAGE_MAX_SIZE", "HTML_PAGES_PATH", "GIS_SHID",
}

// Load reads a line-oriented KEY=VALUE config file from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string, len(requiredKeys))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed config line (missing '='): %q", line)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	for _, k := range requiredKeys {
		if _, ok := values[k]; !ok {
			return nil, fmt.Errorf("config missing required key %s", k)
		}
	}

	port, err := strconv.Atoi(values["SERVER_PORT"])
	if err != nil {
		return nil, fmt.Errorf("SERVER_PORT must be an integer: %w", err)
	}
	slots, err := strconv.Atoi(values["SLOTS_NUMBER"])
	if err != nil {
		return nil, fmt.Errorf("SLOTS_NUMBER must be an integer: %w", err)
	}
	maxSize, err := strconv.ParseInt(values["STORAGE_MAX_SIZE"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("STORAGE_MAX_SIZE must be an integer: %w", err)
	}

	return &Config{
		ServerAddress:  values["SERVER_ADDRESS"],
		ServerPort:     port,
		SlotsNumber:    slots,
		StorageMaxSize: maxSize,
		HTMLPagesPath:  values["HTML_PAGES_PATH"],
		GISSharedMemID: values["GIS_SHID"],
	}, nil
}

// GISRoot returns the GIS_ROOT environment variable, which roots the
// renderer binary, the HTML templates folder and the log directory
// (spec.md §6 "Environment").
func GISRoot() (string, error) {
	root := os.Getenv("GIS_ROOT")
	if root == "" {
		return "", fmt.Errorf("GIS_ROOT environment variable is not set")
	}
	return root, nil
}

// RendererPath returns $GIS_ROOT/sbin/gis-buffer-renderer.
func RendererPath(gisRoot string) string {
	return filepath.Join(gisRoot, "sbin", "gis-buffer-renderer")
}

// LogPath returns $GIS_ROOT/data/logs/gis-map-server/server.log.
func LogPath(gisRoot string) string {
	return filepath.Join(gisRoot, "data", "logs", "gis-map-server", "server.log")
}

// PrepareLogDir recreates the log directory that holds server.log,
// mirroring server.py's shutil.rmtree + os.mkdir dance at startup: a
// stale log directory from a previous run is removed before a fresh one
// is created, so each run starts from a clean log file.
func PrepareLogDir(gisRoot string) error {
	dir := filepath.Dir(LogPath(gisRoot))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove stale log dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return nil
}

// HTMLPagesDir resolves the configured HTML_PAGES_PATH relative to
// GIS_ROOT, matching server.py's
// `os.environ['GIS_ROOT'] + '/' + html_path`.
func HTMLPagesDir(gisRoot, htmlPagesPath string) string {
	return filepath.Join(gisRoot, htmlPagesPath)
}
