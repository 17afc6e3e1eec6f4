// Package mirror copies audio files into the directory that is published
// alongside the feed.
package mirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"podfeed/internal/metadata"
)

// Report summarizes a mirror pass.
type Report struct {
	Copied    int
	Unchanged int
	Failed    int
	Bytes     int64
}

// Mirror copies every audio file below src to the same relative path below
// dst when the destination is missing or its size differs. Per-file copy
// errors are logged and counted; a missing src is an error.
func Mirror(ctx context.Context, src, dst string, logger *log.Logger) (Report, error) {
	if logger == nil {
		logger = log.Default()
	}
	var report Report

	info, err := os.Stat(src)
	if err != nil {
		return report, fmt.Errorf("stat audio dir: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("audio dir %s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Printf("warning: walk %s: %v", path, walkErr)
			return nil
		}
		if d.IsDir() || !metadata.IsAudio(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		srcInfo, err := d.Info()
		if err != nil {
			logger.Printf("warning: stat %s: %v", path, err)
			report.Failed++
			return nil
		}
		if dstInfo, err := os.Stat(target); err == nil && dstInfo.Size() == srcInfo.Size() {
			report.Unchanged++
			return nil
		}

		if err := copyFile(path, target); err != nil {
			logger.Printf("warning: copy %s: %v", rel, err)
			report.Failed++
			return nil
		}
		logger.Printf("copied %s (%s)", rel, humanize.Bytes(uint64(srcInfo.Size())))
		report.Copied++
		report.Bytes += srcInfo.Size()
		return nil
	})
	if err != nil {
		return report, err
	}

	logger.Printf("mirror %s -> %s: %d copied (%s), %d unchanged, %d failed",
		src, dst, report.Copied, humanize.Bytes(uint64(report.Bytes)), report.Unchanged, report.Failed)
	return report, nil
}

// copyFile streams src into a temporary sibling of dst and renames it into
// place so a published file is never seen half written.
func copyFile(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".mirror-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(out.Name())
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	if err = out.Chmod(0o644); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	err = os.Rename(out.Name(), dst)
	return err
}
