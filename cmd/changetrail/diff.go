package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gotasktoday/changetrail"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		oldPath   string
		patchPath string
		strict    bool
		equality  string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Describe how a patch changes a record",
		Long: `Compares a partial update against the stored record and prints one
description per changed field, sorted by field name.

Both files may be JSON or YAML objects.

Example:
  changetrail diff --old employee.json --patch patch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strict") {
				strict = a.cfg.Strict
			}
			if !cmd.Flags().Changed("equality") {
				equality = a.cfg.Equality
			}
			if equality != "deep" && equality != "shallow" {
				return fmt.Errorf("unknown equality %q (want deep or shallow)", equality)
			}

			old, err := readDocument(oldPath)
			if err != nil {
				return err
			}
			patch, err := readDocument(patchPath)
			if err != nil {
				return err
			}

			opts := []changetrail.Option{
				changetrail.WithEqual(equalFunc(equality)),
				changetrail.WithRedact(redactMap(a.cfg.Redact)),
			}
			if strict {
				opts = append(opts, changetrail.Strict())
			}
			summary, err := changetrail.NewBuilder(opts...).Build(old, patch)
			if err != nil {
				return err
			}
			a.logger.Debug("diff computed",
				zap.String("old", oldPath),
				zap.String("patch", patchPath),
				zap.Int("changed", len(summary)),
			)
			return writeSummary(cmd.OutOrStdout(), summary, format)
		},
	}

	cmd.Flags().StringVar(&oldPath, "old", "", "file holding the stored record")
	cmd.Flags().StringVar(&patchPath, "patch", "", "file holding the partial update")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on patch fields missing from the record")
	cmd.Flags().StringVar(&equality, "equality", "deep", "value comparison: deep or shallow")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

// readDocument decodes a JSON or YAML object. An empty file is an empty object.
func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeSummary(w io.Writer, s changetrail.Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(s)
	case "text", "":
		for _, line := range s.Lines() {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}
