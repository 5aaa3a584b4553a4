// Package cmd implements the overseer command-line interface.
package cmd

import (
	"strings"

	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Agent orchestration engine",
	Long: `Overseer decomposes a coding task into a dependency graph of sub-tasks,
gives each one an isolated git worktree and branch, drives a coding agent
per task in a tmux pane, verifies the results with the repository's tests,
and opens a pull request per completed task.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/overseer/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/overseer")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OVERSEER")
	// Nested keys map to env vars with underscores, e.g.
	// OVERSEER_ORCHESTRATOR_MAX_PARALLEL for orchestrator.max_parallel.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
