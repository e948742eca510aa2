package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trailkit/adapters/vector"
	"trailkit/internal/format"
	"trailkit/internal/logging"
	"trailkit/internal/pipeline"
	"trailkit/internal/wiring"
)

var errCancelled = errors.New("run cancelled")

var runFlags struct {
	outDir       string
	profile      string
	vectorFormat string
	skip         []string
	database     string
	schema       string
	parallel     int
	table        string
}

var runCmd = &cobra.Command{
	Use:   "run DEM",
	Short: "Generate trail layers from a DEM",
	Long: `Runs every stage on the DEM: contours at each profile interval, hillshade,
aspect, colour relief, ruggedness, slope and one polygon layer per slope band.

Outputs are written under --out-dir; without it they stay temporary. With
--database (or $TRAILKIT_DATABASE_URL) the contour and slope-band layers are
uploaded: a postgres:// URL targets PostGIS, anything else is a SQLite file.

Ctrl-C stops the run after the stage in progress; completed outputs are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.outDir, "out-dir", "", "Directory for output files (empty keeps outputs temporary)")
	f.StringVar(&runFlags.profile, "profile", "", "Profile YAML overlaid on the built-in defaults")
	f.StringVar(&runFlags.vectorFormat, "vector-format", "geojson", "Vector output format (geojson, shp, gpkg)")
	f.StringSliceVar(&runFlags.skip, "skip", nil, "Output keys to compute but not keep, e.g. SLOPE")
	f.StringVar(&runFlags.database, "database", "", "Upload DSN (default $TRAILKIT_DATABASE_URL)")
	f.StringVar(&runFlags.schema, "schema", "", "Database schema for uploads (default from profile)")
	f.IntVar(&runFlags.parallel, "parallel", 1, "Run up to N independent stages at once")
	f.StringVar(&runFlags.table, "format", "ascii", "Result table format (ascii, markdown)")
}

func runRun(cmd *cobra.Command, args []string) error {
	prof, err := loadProfile(runFlags.profile)
	if err != nil {
		return err
	}
	vf, err := vector.ParseFormat(runFlags.vectorFormat)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(runFlags.table)
	if err != nil {
		return err
	}
	dests, err := wiring.Destinations(prof, runFlags.outDir, vf, parseSkip(runFlags.skip))
	if err != nil {
		return err
	}

	eng := newEngine()
	defer eng.Close()

	ctx := cmd.Context()
	src, err := eng.Open(ctx, args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}

	token := pipeline.NewToken()
	stopSignals := cancelOnSignal(token)
	defer stopSignals()

	d := pipeline.NewDriver(eng, prof, nil)
	d.Parallel = runFlags.parallel
	req := pipeline.Request{
		Source:       src,
		Destinations: dests,
		Sink:         target(resolveDatabase(runFlags.database), runFlags.schema, prof),
		Token:        token,
	}
	res, err := wiring.Run(ctx, d, req, wiring.OpenImporter)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderResult(res, mode))
	if err := res.Imports.Err(); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	if res.Cancelled {
		return errCancelled
	}
	return nil
}

// cancelOnSignal cancels token on the first SIGINT or SIGTERM. The returned
// func stops listening.
func cancelOnSignal(token *pipeline.Token) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			logging.New("cli").Warn("interrupted, stopping after the current stage", "signal", sig.String())
			token.Cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
