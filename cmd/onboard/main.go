package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matthewjhunter/onboard"
	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/logging"
	"github.com/matthewjhunter/onboard/internal/output"
)

var (
	configPath   string
	cfg          *config.Config
	outputFormat string
	logLevel     string
	formatter    *output.Formatter
	logger       zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "onboard",
		Short:        "Personal reading recommender - learns from clicks and bookmarks, ranks what to read next",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, YAML or TOML (default: $ONBOARD_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(clickCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(feedsCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format)

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger = logging.New(cfg.Log)
	return nil
}

func openEngine() (*onboard.Engine, error) {
	eng, err := onboard.NewEngineFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return eng, nil
}
