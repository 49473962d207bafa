package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/formflow/internal/config"
	"github.com/example/formflow/internal/db"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(cfg.DatabaseURL, cfg.DBLogLevel)
			if err != nil {
				return errors.Wrap(err, "connect database")
			}
			if err := db.Migrate(database); err != nil {
				return err
			}
			logrus.Info("schema up to date")
			return nil
		},
	}
}
