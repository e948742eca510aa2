// trailkit derives trail-mapping layers from a DEM: contours, terrain
// attributes and slope-band polygons, optionally uploaded to a spatial
// database.
//
// Usage:
//
//	trailkit run DEM [--out-dir=<dir>] [--database=<dsn>] [--skip=SLOPE]
//	trailkit graph [--database=<dsn>]
//	trailkit profile [--profile=<file>]
//	trailkit layers --database=<sqlite path>
//	trailkit serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trailkit/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "trailkit",
	Short: "Trail-mapping layers from elevation rasters",
	Long: "trailkit turns a digital elevation model into the layers a trail map needs:\n" +
		"10/5/2 m contours, hillshade, aspect, colour relief, ruggedness, slope and\n" +
		"black-diamond slope polygons.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
