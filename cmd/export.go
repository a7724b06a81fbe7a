package main

import (
	"context"
	"fmt"

	"tgstories/internal/database"
	"tgstories/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all recorded stories to a new spreadsheet or CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			path, err := exportStories(cmd.Context(), a, f)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(export.FormatXLSX), "xlsx or csv")
	cmd.Flags().StringVar(&a.cfg.ExportDir, "dir", a.cfg.ExportDir, "output directory")

	return cmd
}

func exportStories(ctx context.Context, a *app, format export.Format) (string, error) {
	db, err := database.New(ctx, a.cfg.DBPath, a.log)
	if err != nil {
		return "", fmt.Errorf("initialize db: %w", err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			a.log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", a.cfg.DBPath)
		}
	}()

	return export.New(db, a.cfg.ExportDir, a.log).Export(ctx, format)
}
