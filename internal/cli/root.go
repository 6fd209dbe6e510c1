// Package cli implements the vlquery command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/vlquery/config"
)

var (
	// Global flags
	configPath string
	schemaPath string
	verbose    bool
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vlquery",
	Short: "Compile and run entity queries against PostgreSQL",
	Long: `vlquery compiles JSON expression trees over an entity schema into
parameterized PostgreSQL and runs them through a resilient connection pool.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "completion":
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if schemaPath != "" {
			cfg.Schema = schemaPath
		}
		if verbose {
			cfg.Verbose = true
		}
		level := slog.LevelWarn
		if cfg.Verbose {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $"+config.EnvConfig+")")
	rootCmd.PersistentFlags().StringVarP(&schemaPath, "schema", "s", "", "Path to the entity schema file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log statements with inlined parameters")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.SetErr(os.Stderr)
}
