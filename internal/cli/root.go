package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath     string
	storageBackend string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	play := NewPlayCmd(&configPath, &storageBackend)
	cmd := &cobra.Command{
		Use:          "trivia-quiz",
		Short:        "Timed multiple-choice trivia quiz in the terminal",
		SilenceUsage: true,
		RunE:         play.RunE,
	}
	cmd.Flags().AddFlagSet(play.Flags())

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&storageBackend, "storage", "", "storage backend: file, memory, redis or postgres")
	cmd.AddCommand(play)
	cmd.AddCommand(NewResetCmd(&configPath, &storageBackend))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
