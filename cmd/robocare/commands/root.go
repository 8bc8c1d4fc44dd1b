package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/robocare/cmd/robocare/internal/config"
	"github.com/haivivi/robocare/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	contextName  string
	formatOutput string
	queryOutput  string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "robocare",
	Short: "Talk to Robo, the multilingual health assistant",
	Long: `robocare - a command line client for the Robo health assistant.

Robo answers health questions in English, Hindi, Kannada, Tamil, Telugu and
Malayalam. Replies can be spoken, and photos can be sent for analysis.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/robocare/
  Linux:   ~/.config/robocare/
  Windows: %AppData%/robocare/

Examples:
  # Create a context pointing at a Robo service
  robocare config add-context home
  robocare config set home robocare base_url http://localhost:8000
  robocare config use-context home

  # Talk
  robocare chat
  robocare ask "I have a headache since morning"
  robocare -c clinic image rash.jpg

  # Review past conversations
  robocare transcript list
  robocare transcript show <session> --format json --query '.[].text'`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "", "output format: yaml, json or raw")
	rootCmd.PersistentFlags().StringVar(&queryOutput, "query", "", "jq expression applied to the output")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	globalConfig, configLoadErr = nil, nil
	cfg, err := config.Load()
	if err != nil {
		// Commands that need config report it through GetConfig; 'version'
		// still works.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// outputOptions returns the --format and --query settings. def is used
// when --format is not given.
func outputOptions(def cli.OutputFormat) (cli.OutputOptions, error) {
	if formatOutput == "" {
		return cli.OutputOptions{Format: def, Query: queryOutput}, nil
	}
	f, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return cli.OutputOptions{}, err
	}
	return cli.OutputOptions{Format: f, Query: queryOutput}, nil
}
