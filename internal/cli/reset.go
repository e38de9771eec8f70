package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"trivia-quiz/internal/config"
	"trivia-quiz/internal/storage"
)

// NewResetCmd logs out without starting a quiz: every persisted key is removed.
func NewResetCmd(configPath, backend *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Log out and clear saved quiz progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *backend)
			if err != nil {
				return err
			}
			kv, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			storage.NewProgress(kv, cfg.Storage.Prefix).ClearSession(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Saved progress cleared.")
			return nil
		},
	}
}

func loadConfig(path, backend string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	return cfg, nil
}
