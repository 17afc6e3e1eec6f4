package main

import (
	"context"
	"fmt"
	"log"

	"podfeed/internal/config"
	"podfeed/internal/credentials"
	"podfeed/internal/feed"
	"podfeed/internal/github"
	"podfeed/internal/library"
	"podfeed/internal/metadata"
	"podfeed/internal/models"
	"podfeed/internal/runner"
)

func channelMetadata(cfg config.Config) feed.ChannelMetadata {
	ch := cfg.Channel
	return feed.ChannelMetadata{
		Title:       ch.Title,
		Description: ch.Description,
		Link:        ch.Link,
		Language:    ch.Language,
		Author:      ch.Author,
		OwnerName:   ch.OwnerName,
		OwnerEmail:  ch.OwnerEmail,
		Category:    ch.Category,
		Explicit:    ch.Explicit,
		ImageURL:    ch.Image,
		Copyright:   ch.Copyright,
	}
}

func itemSettings(cfg config.Config) feed.ItemSettings {
	author := cfg.Channel.Author
	if author == "" {
		author = cfg.Channel.Title
	}
	return feed.ItemSettings{
		DescriptionSuffix: cfg.Episode.DescriptionSuffix,
		Author:            author,
		PubDateOffset:     cfg.Episode.PubDateOffset,
		DurationFormat:    feed.DurationFormat(cfg.Episode.DurationFormat),
		GUIDIsPermaLink:   cfg.Episode.GUIDPermaLink,
		Explicit:          cfg.Episode.Explicit,
	}
}

func newGitHubClient(cfg config.Config, logger *log.Logger) (*github.Client, error) {
	token, err := credentials.GitHubToken(cfg.GitHub.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("resolve github token: %w", err)
	}
	if token == "" {
		logger.Printf("warning: no github token configured; requests are unauthenticated and heavily rate limited")
	}
	return github.New(github.Config{
		Token:             token,
		APIURL:            cfg.GitHub.APIURL,
		RawURL:            cfg.GitHub.RawURL,
		Timeout:           cfg.GitHubTimeout(),
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Logger:            logger,
	})
}

func sourceRepository(cfg config.Config) github.Repository {
	return github.Repository{
		Owner:  cfg.GitHub.Owner,
		Name:   cfg.GitHub.Repo,
		Branch: cfg.GitHub.Branch,
		Path:   cfg.GitHub.Path,
	}
}

func buildSources(cfg config.Config, logger *log.Logger) ([]runner.Source, error) {
	sources := make([]runner.Source, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		switch name {
		case config.SourceLocal:
			if cfg.MediaBaseURL == "" {
				logger.Printf("warning: media_base_url is not set; local episodes will be skipped for lack of a url")
			}
			scanner := library.NewScanner(cfg.Paths.AudioDir, cfg.MediaBaseURL, logger)
			sources = append(sources, runner.NewSource(name, scanner.Scan))
		case config.SourceGitHub:
			client, err := newGitHubClient(cfg, logger)
			if err != nil {
				return nil, err
			}
			repo := sourceRepository(cfg)
			sources = append(sources, runner.NewSource(name, func(ctx context.Context) ([]models.SourceEntry, error) {
				return client.ListAudio(ctx, repo)
			}))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return sources, nil
}

func buildRunner(cfg config.Config, logger *log.Logger) (*runner.Runner, error) {
	sources, err := buildSources(cfg, logger)
	if err != nil {
		return nil, err
	}
	reconciler, err := feed.NewReconciler(itemSettings(cfg), logger)
	if err != nil {
		return nil, err
	}
	store := feed.NewStore(channelMetadata(cfg), logger)
	opts := runner.Options{
		FeedPath: cfg.Paths.Feed,
		LockPath: cfg.LockPath(),
		Extract: metadata.Options{
			IDMode:         metadata.IDMode(cfg.Episode.GUIDMode),
			PreferTagTitle: cfg.Episode.PreferTagTitle,
		},
	}
	return runner.New(opts, sources, store, reconciler, logger), nil
}

func logResult(logger *log.Logger, result runner.Result) {
	for _, skipped := range result.Skipped {
		logger.Printf("skipped %s: %s", skipped.Filename, skipped.Reason)
	}
	for _, srcErr := range result.SourceErrors {
		logger.Printf("source %s failed: %v", srcErr.Source, srcErr.Err)
	}
	logger.Printf("done: %d entries, %d episodes, %d written, %d skipped, %d duplicates",
		result.Entries, result.Episodes, result.Written, len(result.Skipped), result.Duplicates)
}
