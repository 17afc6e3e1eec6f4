package library

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"

	"podfeed/internal/metadata"
	"podfeed/internal/models"
)

// ProbeFunc inspects an audio file and returns its duration in seconds and
// embedded title.
type ProbeFunc func(path string) (int, string)

// Scanner resolves the audio files below a directory into source entries.
type Scanner struct {
	root    string
	baseURL string
	probe   ProbeFunc
	logger  *log.Logger
}

// NewScanner creates a Scanner for root. Enclosure URLs are built from
// baseURL and the slash separated path relative to root; with an empty
// baseURL entries carry no URL and end up reported as skipped.
func NewScanner(root, baseURL string, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{
		root:    root,
		baseURL: baseURL,
		probe:   metadata.Probe,
		logger:  logger,
	}
}

// Scan walks the directory. Unreadable files are logged and skipped; only a
// missing or unreadable root is an error.
func (s *Scanner) Scan(ctx context.Context) ([]models.SourceEntry, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, err
	}

	var entries []models.SourceEntry
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.logger.Printf("walk error for %s: %v", path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !metadata.IsAudio(d.Name()) {
			return nil
		}

		entry, err := s.entry(path, d)
		if err != nil {
			s.logger.Printf("metadata error for %s: %v", path, err)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func (s *Scanner) entry(path string, d os.DirEntry) (models.SourceEntry, error) {
	info, err := d.Info()
	if err != nil {
		return models.SourceEntry{}, err
	}

	relative, err := filepath.Rel(s.root, path)
	if err != nil {
		relative = filepath.Base(path)
	}
	relative = filepath.ToSlash(relative)

	entry := models.SourceEntry{
		Name:       d.Name(),
		Path:       relative,
		Type:       models.EntryFile,
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UTC(),
	}

	if s.baseURL != "" {
		resolved, err := metadata.ResolveURL(s.baseURL, relative)
		if err != nil {
			s.logger.Printf("cannot build url for %s: %v", relative, err)
		} else {
			entry.URL = resolved
		}
	}

	if s.probe != nil {
		entry.DurationSeconds, entry.TagTitle = s.probe(path)
	}
	return entry, nil
}
