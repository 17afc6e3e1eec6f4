package github

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
)

// SyncReport counts the outcome of a repository sync.
type SyncReport struct {
	Copied  int
	Skipped int
	Failed  int
}

// Sync copies every audio file below from.Path to the same relative location
// below to.Path. Files whose size already matches are left alone; per-file
// failures are logged and counted.
func (c *Client) Sync(ctx context.Context, from, to Repository) (SyncReport, error) {
	var report SyncReport

	sources, err := c.walk(ctx, from, from.Path)
	if err != nil {
		return report, fmt.Errorf("list source %s: %w", from, err)
	}

	existing := make(map[string]ContentItem)
	targets, err := c.walk(ctx, to, to.Path)
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.Printf("target %s does not exist yet", to)
	case err != nil:
		return report, fmt.Errorf("list target %s: %w", to, err)
	}
	for _, item := range targets {
		existing[relativeTo(to.Path, item.Path)] = item
	}

	for _, item := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rel := relativeTo(from.Path, item.Path)
		current, ok := existing[rel]
		if ok && current.Size == item.Size {
			report.Skipped++
			continue
		}

		data, _, err := c.ReadFile(ctx, from, item.Path)
		if err != nil {
			c.logger.Printf("warning: read %s: %v", item.Path, err)
			report.Failed++
			continue
		}

		dest := rel
		if base := strings.Trim(to.Path, "/"); base != "" {
			dest = path.Join(base, rel)
		}
		message := fmt.Sprintf("Sync %s from %s/%s", rel, from.Owner, from.Name)
		if err := c.WriteFile(ctx, to, dest, data, current.SHA, message); err != nil {
			c.logger.Printf("warning: write %s: %v", dest, err)
			report.Failed++
			continue
		}
		c.logger.Printf("copied %s (%s)", dest, humanize.Bytes(uint64(len(data))))
		report.Copied++
	}

	c.logger.Printf("sync %s -> %s: %d copied, %d unchanged, %d failed", from, to, report.Copied, report.Skipped, report.Failed)
	return report, nil
}
