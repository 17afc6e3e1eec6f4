package main

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"podfeed/internal/config"
)

type commandContext struct {
	configFlag  *string
	envFileFlag *string
	logOutput   io.Writer

	configOnce sync.Once
	config     config.Config
	configErr  error
	logger     *log.Logger
}

func newCommandContext(configFlag, envFileFlag *string, logOutput io.Writer) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		envFileFlag: envFileFlag,
		logOutput:   logOutput,
		logger:      log.New(logOutput, "podfeed ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		envFile := strings.TrimSpace(*c.envFileFlag)
		if err := config.LoadDotEnv(envFile); err != nil {
			c.configErr = err
			return
		}
		c.config, c.configErr = config.Load(strings.TrimSpace(*c.configFlag))
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithOutput(os.Stdout)
}

func newRootCommandWithOutput(logOutput io.Writer) *cobra.Command {
	var configFlag string
	var envFileFlag string

	ctx := newCommandContext(&configFlag, &envFileFlag, logOutput)

	rootCmd := &cobra.Command{
		Use:           "podfeed",
		Short:         "Generate and maintain a podcast RSS feed from MP3 files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $PODFEED_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Environment file loaded before configuration")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newMirrorCommand(ctx))
	rootCmd.AddCommand(newSyncRepoCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))

	return rootCmd
}
