// Package main provides the assessment_agent command: the career assessment
// wizard on the terminal and the HTTP backend for browser clients.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/config"
	"github.com/jonathan/assessment-wizard/internal/logging"
)

var (
	configPath string
	verbose    bool
	apiURL     string
	apiToken   string
	storePath  string

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "assessment_agent",
	Short: "Career assessment wizard",
	Long: "assessment_agent walks a candidate through resume analysis, a quick test " +
		"or an AI interview, and serves the same flow over HTTP.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Assessment API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Assessment API access token")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path to the local state database")
}

// setup resolves the configuration and builds the logger. Flags override the
// file, which overrides the environment.
func setup(cmd *cobra.Command, _ []string) error {
	resolved, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		resolved.APIBaseURL = apiURL
	}
	if flags.Changed("token") {
		resolved.APIToken = apiToken
	}
	if flags.Changed("store") {
		resolved.StorePath = storePath
	}
	if flags.Changed("verbose") {
		resolved.Verbose = verbose
	}
	if err := resolved.Validate(); err != nil {
		return err
	}
	cfg = resolved

	l, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
