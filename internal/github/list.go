package github

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"podfeed/internal/metadata"
	"podfeed/internal/models"
)

// ListAudio walks repo.Path recursively and returns one entry per audio file.
// A missing root is logged and yields an empty listing. A failed commit
// lookup leaves that entry without a modification time.
func (c *Client) ListAudio(ctx context.Context, repo Repository) ([]models.SourceEntry, error) {
	files, err := c.walk(ctx, repo, repo.Path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Printf("github path %s not found; no files listed", repo)
			return nil, nil
		}
		return nil, err
	}

	entries := make([]models.SourceEntry, 0, len(files))
	for _, item := range files {
		modified, err := c.LastCommitDate(ctx, repo, item.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Printf("warning: commit date for %s unavailable: %v", item.Path, err)
		}
		entries = append(entries, models.SourceEntry{
			Name:       item.Name,
			Path:       item.Path,
			Type:       models.EntryFile,
			Size:       item.Size,
			ModifiedAt: modified,
			URL:        c.RawURL(repo, item.Path),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	c.logger.Printf("listed %d audio files from %s", len(entries), repo)
	return entries, nil
}

// walk collects audio files below dir. Subdirectories that vanish between
// listings are skipped.
func (c *Client) walk(ctx context.Context, repo Repository, dir string) ([]ContentItem, error) {
	items, err := c.ListDir(ctx, repo, dir)
	if err != nil {
		return nil, err
	}

	var files []ContentItem
	for _, item := range items {
		switch item.Type {
		case "file":
			if metadata.IsAudio(item.Name) {
				files = append(files, item)
			}
		case "dir":
			nested, err := c.walk(ctx, repo, item.Path)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					c.logger.Printf("github directory %s disappeared; skipping", item.Path)
					continue
				}
				return nil, fmt.Errorf("list %s: %w", item.Path, err)
			}
			files = append(files, nested...)
		}
	}
	return files, nil
}

func relativeTo(root, path string) string {
	root = strings.Trim(root, "/")
	path = strings.Trim(path, "/")
	if root == "" {
		return path
	}
	return strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
}
