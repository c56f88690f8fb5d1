// Package cli implements the ambrose command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nhle/ambrose/internal/model"
)

var (
	configPath string // --config
	logLevel   string // --log-level, overrides logging.level
)

var rootCmd = &cobra.Command{
	Use:           "ambrose",
	Short:         "Ambrose aggregates build, release and service status onto status lights",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		model.DefaultConfigPath(),
		"path to the YAML configuration file",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel,
		"log-level",
		"",
		"log level (debug, info, warn, error)",
	)

	addCommandOnce(rootCmd, serveCmd)
	addCommandOnce(rootCmd, refreshCmd)
	addCommandOnce(rootCmd, userCmd)
	addCommandOnce(rootCmd, accountCmd)
	addCommandOnce(rootCmd, tasksCmd)
	addCommandOnce(rootCmd, deviceCmd)
	addCommandOnce(rootCmd, watchCmd)
	addCommandOnce(rootCmd, configCmd)
}

func addCommandOnce(parent *cobra.Command, child *cobra.Command) {
	for _, existing := range parent.Commands() {
		if existing == child || existing.Name() == child.Name() {
			return
		}
	}
	parent.AddCommand(child)
}
