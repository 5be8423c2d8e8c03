package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/searcher/internal/config"
	"github.com/searcher/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	configPath string
	logLevel   string
	logFile    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "searcher",
	Short: "Send endpoint requests through a classified network layer",
	Long: `searcher builds requests from named endpoints, sends them over HTTP,
HTTP/2 or gRPC and reports each outcome as a body or a classified error:
url-generation, http-error, not-connected, cancelled or generic.

Get started:
  searcher endpoints          List endpoints from the config file
  searcher request search     Send one request
  searcher batch --repeat 10  Send every endpoint concurrently`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "searcher %s\n  built:  %s\n  commit: %s\n", version, buildTime, gitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "searcher.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// SetGitCommit sets the commit the binary was built from
func SetGitCommit(c string) {
	gitCommit = c
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit)
}

// loadConfig reads the config file. A missing file is only an error when
// the path was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if _, statErr := os.Stat(configPath); statErr != nil && !cmd.Flags().Changed("config") {
		cfg, err = config.Parse(nil)
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console io.Writer) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log, console)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
