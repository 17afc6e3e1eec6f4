package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podfeed/internal/config"
	"podfeed/internal/credentials"
	"podfeed/internal/github"
	"podfeed/internal/inventory"
	"podfeed/internal/library"
	"podfeed/internal/mirror"
	"podfeed/internal/runner"
	"podfeed/internal/server"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Gather every source and rewrite the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r, err := buildRunner(cfg, ctx.logger)
			if err != nil {
				return err
			}
			result, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			logResult(ctx.logger, result)
			return nil
		},
	}
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Gather every source into an inventory file without touching the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r, err := buildRunner(cfg, ctx.logger)
			if err != nil {
				return err
			}
			entries, _, err := r.Gather(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				output = cfg.Paths.Inventory
			}
			if err := inventory.Write(output, entries); err != nil {
				return err
			}
			ctx.logger.Printf("wrote %d entries to %s", len(entries), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Inventory file to write (default paths.inventory)")
	return cmd
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Rewrite the feed from an inventory file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if input == "" {
				input = cfg.Paths.Inventory
			}
			entries, err := inventory.Read(input)
			if err != nil {
				return err
			}
			r, err := buildRunner(cfg, ctx.logger)
			if err != nil {
				return err
			}
			result, err := r.Generate(entries)
			if err != nil {
				return err
			}
			logResult(ctx.logger, result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Inventory file to read (default paths.inventory)")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rewrite the feed whenever the audio directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			r, err := buildRunner(cfg, ctx.logger)
			if err != nil {
				return err
			}

			changes := make(chan struct{}, 1)
			watcher, err := library.NewWatcher(cfg.Paths.AudioDir, cfg.WatchDebounce(), func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			}, ctx.logger)
			if err != nil {
				return fmt.Errorf("watch %s: %w", cfg.Paths.AudioDir, err)
			}
			defer func() {
				if err := watcher.Close(); err != nil {
					ctx.logger.Printf("error closing watcher: %v", err)
				}
			}()

			runCtx := cmd.Context()
			runOnce := func() {
				result, err := r.Run(runCtx)
				if errors.Is(err, runner.ErrLocked) {
					ctx.logger.Printf("another run is in progress; skipping this change")
					return
				}
				if err != nil {
					ctx.logger.Printf("run failed: %v", err)
					return
				}
				logResult(ctx.logger, result)
			}

			ctx.logger.Printf("watching %s", cfg.Paths.AudioDir)
			runOnce()
			for {
				select {
				case <-runCtx.Done():
					ctx.logger.Println("watch stopped")
					return nil
				case <-changes:
					runOnce()
				}
			}
		},
	}
}

func newMirrorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror",
		Short: "Copy new or changed audio files into the published pages directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := mirror.Mirror(cmd.Context(), cfg.Paths.AudioDir, cfg.Paths.PagesDir, ctx.logger)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d files could not be mirrored", report.Failed)
			}
			return nil
		},
	}
}

func newSyncRepoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-repo",
		Short: "Copy audio files from the source repository into the target repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			gh := cfg.GitHub
			if gh.Owner == "" || gh.Repo == "" || gh.TargetOwner == "" || gh.TargetRepo == "" {
				return errors.New("sync-repo requires github.owner, github.repo, github.target_owner and github.target_repo")
			}
			client, err := newGitHubClient(cfg, ctx.logger)
			if err != nil {
				return err
			}
			target := github.Repository{
				Owner:  gh.TargetOwner,
				Name:   gh.TargetRepo,
				Branch: gh.TargetBranch,
				Path:   gh.TargetPath,
			}
			report, err := client.Sync(cmd.Context(), sourceRepository(cfg), target)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d files could not be synced", report.Failed)
			}
			return nil
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated feed and published audio for local preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			listenAddr := cfg.Serve.ListenAddr
			if err := config.ValidateListenAddr(listenAddr); err != nil {
				return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
			}

			var validator server.TokenValidator
			if strings.TrimSpace(cfg.Serve.TokenFile) != "" {
				tokens, err := credentials.LoadTokenSet(cfg.Serve.TokenFile)
				if err != nil {
					return fmt.Errorf("load serve tokens: %w", err)
				}
				ctx.logger.Printf("loaded %d preview tokens", tokens.Len())
				validator = tokens
			}

			handler := server.New(cfg.Paths.Feed, cfg.Paths.PagesDir, validator, ctx.logger)
			return serveHTTP(cmd.Context(), listenAddr, handler, ctx)
		},
	}
}

func serveHTTP(runCtx context.Context, addr string, handler http.Handler, ctx *commandContext) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctx.logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	ctx.logger.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	ctx.logger.Println("shutdown complete")
	return nil
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [feed]",
		Short: "Parse a feed the way podcast clients do and report problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Paths.Feed
			if len(args) == 1 {
				path = args[0]
			}
			report, err := verifyFeed(path)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout())
			return nil
		},
	}
}
