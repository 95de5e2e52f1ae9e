package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gotasktoday/changetrail"
	"github.com/gotasktoday/changetrail/internal/config"
)

type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	openDB func(dsn string) (*sql.DB, error)
}

func main() {
	a := &app{openDB: openPostgres}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func openPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "changetrail",
		Short: "Describe and record field-level changes to database rows",
		Long: `changetrail renders partial updates as human-readable change descriptions
and keeps them, with before and after row images, in per-table history tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.logger != nil {
				return nil
			}
			logger, err := buildLogger(cfg.LogLevel, a.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (CHANGETRAIL_* env vars override it)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newDiffCmd(a),
		newMigrateCmd(a),
		newHistoryCmd(a),
		newUpdateCmd(a),
	)
	return root
}

func buildLogger(level string, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// handlerConfig maps the file configuration onto the recorder configuration.
func (a *app) handlerConfig() changetrail.Config {
	return changetrail.Config{
		HistorySuffix: a.cfg.HistorySuffix,
		IDColumn:      a.cfg.IDColumn,
		Redact:        redactMap(a.cfg.Redact),
		Strict:        a.cfg.Strict,
		Equal:         equalFunc(a.cfg.Equality),
		Logger:        a.logger,
	}
}

func (a *app) database() (*sql.DB, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	db, err := a.openDB(a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func redactMap(fields []string) changetrail.RedactMap {
	if len(fields) == 0 {
		return nil
	}
	m := make(changetrail.RedactMap, len(fields))
	for _, f := range fields {
		m[f] = changetrail.Mask
	}
	return m
}

func equalFunc(mode string) changetrail.EqualFunc {
	if mode == "shallow" {
		return changetrail.ShallowEqual
	}
	return changetrail.DeepEqual
}
