package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gotasktoday/changetrail"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		table  string
		id     string
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the recorded history of one row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			entries, err := changetrail.New(a.handlerConfig()).WrapDB(db).History(cmd.Context(), table, id)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), entries, format)
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "tracked table, optionally schema-qualified")
	cmd.Flags().StringVar(&id, "id", "", "record id")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func writeHistory(w io.Writer, entries []changetrail.HistoryEntry, format string) error {
	switch format {
	case "json":
		if entries == nil {
			entries = []changetrail.HistoryEntry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(entries)
	case "text", "":
		for _, e := range entries {
			header := fmt.Sprintf("%s %s", e.OperatedAt.UTC().Format(time.RFC3339), e.Operation)
			if e.OperatedBy != "" {
				header += " by " + e.OperatedBy
			}
			if e.Reason != "" {
				header += fmt.Sprintf(" (%s)", e.Reason)
			}
			if _, err := fmt.Fprintln(w, header); err != nil {
				return err
			}
			for _, line := range e.Changes.Lines() {
				if _, err := fmt.Fprintf(w, "  %s\n", line); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}
