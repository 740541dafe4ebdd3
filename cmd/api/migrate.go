package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warmpath/backend/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		logger.Info("schema up to date", zap.String("driver", cfg.Storage.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
