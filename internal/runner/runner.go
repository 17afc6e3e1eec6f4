// Package runner drives a complete feed regeneration: gather listings from
// every source, turn them into episode records and reconcile the persisted
// feed against them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"podfeed/internal/feed"
	"podfeed/internal/metadata"
	"podfeed/internal/models"
)

var (
	// ErrLocked is returned when another run holds the lock file.
	ErrLocked = errors.New("another run is in progress")
	// ErrNoSources is returned when every configured source failed.
	ErrNoSources = errors.New("no source could be read")
)

// Source produces a listing of audio entries.
type Source interface {
	Name() string
	List(ctx context.Context) ([]models.SourceEntry, error)
}

// ListFunc adapts a listing function to Source.
type ListFunc func(ctx context.Context) ([]models.SourceEntry, error)

type funcSource struct {
	name string
	list ListFunc
}

func (s funcSource) Name() string { return s.name }

func (s funcSource) List(ctx context.Context) ([]models.SourceEntry, error) { return s.list(ctx) }

// NewSource names a listing function.
func NewSource(name string, list ListFunc) Source {
	return funcSource{name: name, list: list}
}

// SourceError records a source that could not be listed.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// Result describes a completed run.
type Result struct {
	Entries      int
	Episodes     int
	Written      int
	Removed      int
	Duplicates   int
	Skipped      []feed.SkippedEpisode
	SourceErrors []SourceError
}

// Options configures a Runner.
type Options struct {
	FeedPath string
	// LockPath defaults to FeedPath + ".lock".
	LockPath string
	Extract  metadata.Options
}

// Runner performs feed regeneration runs.
type Runner struct {
	opts       Options
	sources    []Source
	store      *feed.Store
	reconciler *feed.Reconciler
	logger     *log.Logger
}

// New creates a Runner.
func New(opts Options, sources []Source, store *feed.Store, reconciler *feed.Reconciler, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if opts.LockPath == "" {
		opts.LockPath = opts.FeedPath + ".lock"
	}
	return &Runner{
		opts:       opts,
		sources:    sources,
		store:      store,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Run gathers every source and rewrites the feed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	unlock, err := r.lock()
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	entries, sourceErrs, err := r.Gather(ctx)
	if err != nil {
		return Result{SourceErrors: sourceErrs}, err
	}
	result, err := r.generate(entries)
	result.SourceErrors = sourceErrs
	return result, err
}

// Generate rewrites the feed from an already gathered listing.
func (r *Runner) Generate(entries []models.SourceEntry) (Result, error) {
	unlock, err := r.lock()
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	return r.generate(entries)
}

// Gather lists every source in order. A failing source is logged and
// skipped; ErrNoSources is returned only when all of them fail.
func (r *Runner) Gather(ctx context.Context) ([]models.SourceEntry, []SourceError, error) {
	if len(r.sources) == 0 {
		return nil, nil, ErrNoSources
	}

	var (
		entries []models.SourceEntry
		errs    []SourceError
	)
	for _, source := range r.sources {
		listed, err := source.List(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errs, ctxErr
			}
			r.logger.Printf("warning: source %s failed: %v", source.Name(), err)
			errs = append(errs, SourceError{Source: source.Name(), Err: err})
			continue
		}
		r.logger.Printf("source %s listed %d entries", source.Name(), len(listed))
		entries = append(entries, listed...)
	}

	if len(errs) == len(r.sources) {
		return nil, errs, fmt.Errorf("%w: %w", ErrNoSources, errors.Join(sourceErrors(errs)...))
	}
	return entries, errs, nil
}

func (r *Runner) generate(entries []models.SourceEntry) (Result, error) {
	result := Result{Entries: len(entries)}

	seen := make(map[string]struct{}, len(entries))
	episodes := make([]models.EpisodeRecord, 0, len(entries))
	for _, entry := range entries {
		record, ok := metadata.Extract(entry, r.opts.Extract)
		if !ok {
			continue
		}
		if _, dup := seen[record.StableID]; dup {
			r.logger.Printf("warning: duplicate episode %s ignored", record.StableID)
			result.Duplicates++
			continue
		}
		seen[record.StableID] = struct{}{}
		episodes = append(episodes, record)
	}
	result.Episodes = len(episodes)
	if len(episodes) == 0 {
		r.logger.Printf("warning: no episodes found; writing an empty feed")
	}

	doc, err := r.store.Load(r.opts.FeedPath)
	if err != nil {
		return result, err
	}

	report := r.reconciler.Reconcile(doc, episodes)
	result.Written = report.Written
	result.Removed = report.Removed
	result.Skipped = report.Skipped

	data, err := feed.Serialize(doc)
	if err != nil {
		return result, err
	}
	if err := feed.WriteFile(r.opts.FeedPath, data, 0o644); err != nil {
		return result, fmt.Errorf("write feed %s: %w", r.opts.FeedPath, err)
	}

	r.logger.Printf("wrote %s: %d items (%d replaced, %d skipped)", r.opts.FeedPath, result.Written, result.Removed, len(result.Skipped))
	return result, nil
}

func (r *Runner) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(r.opts.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(r.opts.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", r.opts.LockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, r.opts.LockPath)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Printf("warning: release lock %s: %v", r.opts.LockPath, err)
		}
	}, nil
}

func sourceErrors(errs []SourceError) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, err)
	}
	return out
}
