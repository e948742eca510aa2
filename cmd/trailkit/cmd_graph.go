package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trailkit/internal/display"
	"trailkit/internal/pipeline"
	"trailkit/internal/sink"
	"trailkit/pkg/stagegraph"
)

var graphFlags struct {
	profile  string
	database string
	mermaid  bool
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the stages a run would execute",
	Long: `Prints the stage order of a run, grouped by dependency layer. Stages in one
layer may run together under --parallel. Upload stages appear only when a
database is configured.`,
	RunE: runGraph,
}

func init() {
	f := graphCmd.Flags()
	f.StringVar(&graphFlags.profile, "profile", "", "Profile YAML overlaid on the built-in defaults")
	f.StringVar(&graphFlags.database, "database", "", "Upload DSN (default $TRAILKIT_DATABASE_URL)")
	f.BoolVar(&graphFlags.mermaid, "mermaid", false, "Print a Mermaid flowchart instead")
}

func runGraph(cmd *cobra.Command, _ []string) error {
	prof, err := loadProfile(graphFlags.profile)
	if err != nil {
		return err
	}
	req := pipeline.Request{Sink: target(resolveDatabase(graphFlags.database), "", prof)}
	// planning never calls the engine or the importer
	d := pipeline.NewDriver(nil, prof, sink.NewWriter(nil, nil))
	g, err := d.Graph(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if graphFlags.mermaid {
		fmt.Fprint(out, stagegraph.Render(g))
		return nil
	}
	for i, layer := range g.Layers() {
		names := make([]string, len(layer))
		for j, n := range layer {
			names[j] = display.Stage(n)
		}
		fmt.Fprintf(out, "%d: %s\n", i, strings.Join(names, ", "))
	}
	return nil
}
