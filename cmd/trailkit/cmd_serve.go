package main

import (
	"context"

	"github.com/spf13/cobra"

	"trailkit/internal/logging"
	mcpserver "trailkit/internal/mcp"
	"trailkit/internal/pipeline"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveFlags struct {
	profile  string
	parallel int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing generate_trail_layers,
get_run, cancel_run and list_runs. Runs execute in the background; clients
poll get_run for results.

The server exits when its parent process goes away.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.profile, "profile", "", "Profile YAML overlaid on the built-in defaults")
	f.IntVar(&serveFlags.parallel, "parallel", 1, "Run up to N independent stages at once")
}

func runServe(cmd *cobra.Command, _ []string) error {
	prof, err := loadProfile(serveFlags.profile)
	if err != nil {
		return err
	}
	eng := newEngine()
	defer eng.Close()

	d := pipeline.NewDriver(eng, prof, nil)
	d.Parallel = serveFlags.parallel
	srv := mcpserver.NewServer(d, eng.Open)
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting trailkit MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
