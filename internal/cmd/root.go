// Package cmd implements the tasker command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/tasker/internal/cmd/config"
	appconfig "github.com/Iron-Ham/tasker/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tasker",
	Short: "In-process priority task handler",
	Long: `Tasker dispatches prioritized tasks to a pool of hired workers.

Tasks wait in a priority queue until a qualified worker has a free slot;
faster workers ask for work more often and so take a larger share.
Use 'tasker run' to watch the handler balance a simulated workload.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tasker/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	config.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TASKER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TASKER_WORKERS_COUNT for workers.count
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
