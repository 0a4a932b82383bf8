package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Siphon/internal"
	"github.com/hbomb79/Siphon/pkg/logger"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	flagConfigPath string
	flagDebug      bool
	flagVerbose    bool
)

var log = logger.Get("Bootstrap")

var rootCmd = &cobra.Command{
	Use:          "siphon",
	Short:        "Siphon is an HTTP service for extracting and downloading web media",
	Version:      Version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "Path to a YAML configuration file (environment variables are used if omitted)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging (implies --debug)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	switch {
	case flagVerbose:
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	case flagDebug:
		logger.SetMinLoggingLevel(logger.DEBUG.Level())
	}

	config, err := internal.LoadConfig(flagConfigPath)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		return err
	}
	if config.RestConfig.Debug && !flagVerbose {
		logger.SetMinLoggingLevel(logger.DEBUG.Level())
	}

	siphon, err := internal.New(*config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Siphon: %v\n", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := siphon.Run(ctx); err != nil {
		return fmt.Errorf("siphon exited with error: %w", err)
	}

	return nil
}
