package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trailkit/adapters/sqlite"
	"trailkit/internal/format"
	"trailkit/internal/sink"
)

var layersFlags struct {
	database string
	table    string
}

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List layers uploaded to a SQLite database",
	RunE:  runLayers,
}

func init() {
	f := layersCmd.Flags()
	f.StringVar(&layersFlags.database, "database", "", "SQLite database path (default $TRAILKIT_DATABASE_URL)")
	f.StringVar(&layersFlags.table, "format", "ascii", "Table format (ascii, markdown)")
}

func runLayers(cmd *cobra.Command, _ []string) error {
	dsn := resolveDatabase(layersFlags.database)
	if dsn == "" {
		return errors.New("--database is required")
	}
	if conn := (sink.Connection{DSN: dsn}); conn.Driver() != "sqlite" {
		return fmt.Errorf("layers reads SQLite databases only, got %s", conn.Label())
	}
	mode, err := format.ParseMode(layersFlags.table)
	if err != nil {
		return err
	}

	imp, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer imp.Close()
	layers, err := imp.Layers(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(layers) == 0 {
		fmt.Fprintln(out, "No layers.")
		return nil
	}
	t := format.NewTable(mode)
	t.Header("Table", "Features", "SRID", "Key", "Index", "Imported")
	t.Columns(format.Column{Number: 2, Align: format.AlignRight})
	for _, l := range layers {
		t.Row(l.Table, l.Features, l.SRID, l.KeyColumn, l.SpatialIndex, l.ImportedAt)
	}
	fmt.Fprintln(out, t.String())
	return nil
}
