package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warmpath/backend/internal/cache/redis"
	"github.com/warmpath/backend/internal/importer"
	"github.com/warmpath/backend/pkg/logger"
)

var (
	importEmail string
	importCSV   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV file for a user",
	Long:  "Runs the same import pipeline as the CSV upload endpoint. The user is created when the email is new.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(importCSV)
		if err != nil {
			return eris.Wrapf(err, "open %s", importCSV)
		}
		defer f.Close() //nolint:errcheck

		rows, err := importer.ParseCSV(f)
		if err != nil {
			return err
		}

		store, err := openStore(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		user, err := store.UpsertUserByEmail(ctx, importEmail)
		if err != nil {
			return eris.Wrap(err, "resolve user")
		}

		var opts []importer.Option
		if cfg.Redis.Enabled {
			cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL())
			if err != nil {
				return eris.Wrap(err, "connect redis")
			}
			defer cache.Close() //nolint:errcheck
			opts = append(opts, importer.WithInvalidator(cache))
		}

		res, err := importer.New(store, opts...).Import(ctx, user.ID, importer.OriginCSV, rows)
		if err != nil {
			return err
		}

		logger.Info("import complete",
			zap.String("email", user.Email),
			zap.Int("added", res.Added),
			zap.Int("skipped", res.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importEmail, "email", "", "owner email address")
	importCmd.Flags().StringVar(&importCSV, "csv", "", "path to the CSV file")
	_ = importCmd.MarkFlagRequired("email")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
