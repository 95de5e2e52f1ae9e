package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotasktoday/changetrail"
	"github.com/gotasktoday/changetrail/sink"
)

func newUpdateCmd(a *app) *cobra.Command {
	var (
		table     string
		id        string
		patchPath string
		operator  string
		reason    string
		traceID   string
		format    string
		textfile  string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply a patch to one row and record its history",
		Long: `Locks the row, applies only the fields of the patch that differ from the
stored values, and writes a history entry with the change descriptions. When a
kafka section is configured the entry is also published to the topic. With
--metrics-textfile the history counters are written in the Prometheus text
format for a node_exporter textfile collector.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readDocument(patchPath)
			if err != nil {
				return err
			}
			if traceID == "" {
				traceID = uuid.NewString()
			}

			sinks, closeSinks, err := a.sinks()
			if err != nil {
				return err
			}
			defer closeSinks()

			db, err := a.database()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if !cmd.Flags().Changed("metrics-textfile") {
				textfile = a.cfg.MetricsTextfile
			}
			reg := prometheus.NewRegistry()
			metrics, err := changetrail.NewMetrics(reg)
			if err != nil {
				return err
			}

			hc := a.handlerConfig()
			hc.Sinks = sinks
			hc.Metrics = metrics
			wdb := changetrail.New(hc).WrapDB(db)

			ctx := changetrail.WithOperator(cmd.Context(), operator)
			ctx = changetrail.WithTraceID(ctx, traceID)
			ctx = changetrail.WithReason(ctx, reason)

			summary, err := applyPatch(ctx, wdb, table, id, patch)
			if err != nil {
				return err
			}
			a.logger.Debug("patch applied",
				zap.String("table", table),
				zap.String("id", id),
				zap.String("trace_id", traceID),
				zap.Int("changed", len(summary)),
			)
			if textfile != "" {
				if err := prometheus.WriteToTextfile(textfile, reg); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			return writeSummary(cmd.OutOrStdout(), summary, format)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "tracked table, optionally schema-qualified")
	cmd.Flags().StringVar(&id, "id", "", "record id")
	cmd.Flags().StringVar(&patchPath, "patch", "", "file holding the partial update (JSON or YAML)")
	cmd.Flags().StringVar(&operator, "operator", "", "who made the change")
	cmd.Flags().StringVar(&reason, "reason", "", "why the change was made")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "trace id (random when empty)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().StringVar(&textfile, "metrics-textfile", "", "write history counters to this .prom file")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

func applyPatch(ctx context.Context, db *changetrail.DB, table, id string, patch map[string]any) (changetrail.Summary, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	summary, err := tx.Update(ctx, table, id, patch)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return summary, nil
}

// sinks returns the configured event sinks and a func releasing them.
func (a *app) sinks() ([]sink.Sink, func(), error) {
	sinks := []sink.Sink{sink.NewLogSink(a.logger)}
	if a.cfg.Kafka == nil {
		return sinks, func() {}, nil
	}
	ks, err := sink.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	return append(sinks, ks), func() {
		if err := ks.Close(); err != nil {
			a.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}, nil
}
