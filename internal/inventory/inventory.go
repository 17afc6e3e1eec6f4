// Package inventory persists source listings as JSON so that fetching and
// feed generation can run as separate steps.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"

	"podfeed/internal/feed"
	"podfeed/internal/models"
)

// Read loads a listing written by Write.
func Read(path string) ([]models.SourceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var entries []models.SourceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	return entries, nil
}

// Write stores entries as indented JSON, replacing path atomically.
func Write(path string, entries []models.SourceEntry) error {
	if entries == nil {
		entries = []models.SourceEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	data = append(data, '\n')
	return feed.WriteFile(path, data, 0o644)
}
