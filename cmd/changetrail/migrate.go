package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotasktoday/changetrail"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [table...]",
		Short: "Create history tables",
		Long: `Creates <table><suffix> for every table given on the command line, or
for the tables listed in the config file when none are given. Tables may be
schema-qualified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := args
			if len(tables) == 0 {
				tables = a.cfg.Tables
			}
			if len(tables) == 0 {
				return errors.New("no tables to migrate")
			}

			db, err := a.database()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			targets := make([]any, len(tables))
			for i, t := range tables {
				targets[i] = t
			}
			if err := changetrail.Migrate(cmd.Context(), db, changetrail.SchemaConfig{
				HistorySuffix: a.cfg.HistorySuffix,
				IDColumn:      a.cfg.IDColumn,
				CreateIDIndex: a.cfg.CreateIDIndex,
			}, targets...); err != nil {
				return err
			}
			a.logger.Info("history tables ready", zap.Strings("tables", tables))
			return nil
		},
	}
}
