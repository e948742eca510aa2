// Package mcp exposes the trail-layer pipeline as MCP tools. Runs are
// asynchronous: generate_trail_layers returns a run ID at once, get_run
// reports progress and results, cancel_run stops a run at its next stage
// boundary.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"trailkit/adapters/vector"
	"trailkit/internal/logging"
	"trailkit/internal/pipeline"
	"trailkit/internal/profile"
	"trailkit/internal/sink"
	"trailkit/internal/terrain"
	"trailkit/internal/wiring"
)

// MaxGetRunWait caps how long get_run blocks.
var MaxGetRunWait = 60 * time.Second

// SourceFunc opens a DEM by path.
type SourceFunc func(ctx context.Context, path string) (*terrain.Source, error)

// Server wraps the MCP SDK server and tracks pipeline runs.
type Server struct {
	MCPServer *sdkmcp.Server
	// Driver is copied for every run.
	Driver       *pipeline.Driver
	OpenSource   SourceFunc
	OpenImporter wiring.Opener

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs map[string]*Run
	seq  int
}

// NewServer creates an MCP server whose runs use d and open DEMs with open.
func NewServer(d *pipeline.Driver, open SourceFunc) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Driver:     d,
		OpenSource: open,
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*Run),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "trailkit", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "generate_trail_layers",
		Description: "Start a trail-layer run on a DEM: contours, hillshade, aspect, colour relief, ruggedness, slope and slope-band polygons, optionally uploaded to a spatial database. Returns a run ID.",
	}, s.handleGenerate)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Get the status of a run. With wait_ms, blocks until the run ends or the wait elapses. Finished runs report outputs and upload results.",
	}, s.handleGetRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "cancel_run",
		Description: "Cancel a run. The stage in progress runs to completion and its output is kept, along with every earlier result. No later stage starts.",
	}, s.handleCancelRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List every run started on this server, oldest first.",
	}, s.handleListRuns)
}

// --- Tool input/output types ---

type generateInput struct {
	DEM          string   `json:"dem" jsonschema:"path of the input DEM raster"`
	OutDir       string   `json:"out_dir,omitempty" jsonschema:"directory for output files; empty keeps outputs temporary"`
	VectorFormat string   `json:"vector_format,omitempty" jsonschema:"vector output format (geojson, shp, gpkg)"`
	Skip         []string `json:"skip,omitempty" jsonschema:"output keys to compute but not keep, e.g. SLOPE"`
	Database     string   `json:"database,omitempty" jsonschema:"database DSN for uploads (postgres URL or SQLite path); empty disables uploads"`
	Schema       string   `json:"schema,omitempty" jsonschema:"database schema for uploaded tables"`
}

type generateOutput struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Stages int    `json:"stages"`
}

type runInput struct {
	RunID  string `json:"run_id" jsonschema:"run ID from generate_trail_layers"`
	WaitMS int    `json:"wait_ms,omitempty" jsonschema:"max wait in milliseconds for the run to end (0 = return immediately)"`
	Since  int    `json:"since,omitempty" jsonschema:"first stage event to return; pass next_event from the previous call"`
}

type importOutput struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

type runOutput struct {
	RunID     string            `json:"run_id"`
	DEM       string            `json:"dem"`
	Status    string            `json:"status"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	Completed []string          `json:"completed,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
	Imports   []importOutput    `json:"imports,omitempty"`
	Coverage  []string          `json:"coverage,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	Events    []Signal          `json:"events,omitempty"`
	NextEvent int               `json:"next_event"`
}

type cancelInput struct {
	RunID string `json:"run_id" jsonschema:"run ID from generate_trail_layers"`
}

type cancelOutput struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type listRunsInput struct{}

type listRunsOutput struct {
	Runs []runOutput `json:"runs"`
}

// --- Tool handlers ---

func (s *Server) handleGenerate(ctx context.Context, _ *sdkmcp.CallToolRequest, input generateInput) (*sdkmcp.CallToolResult, generateOutput, error) {
	if input.DEM == "" {
		return nil, generateOutput{}, fmt.Errorf("dem is required")
	}
	if s.OpenSource == nil {
		return nil, generateOutput{}, fmt.Errorf("server has no raster reader")
	}
	src, err := s.OpenSource(ctx, input.DEM)
	if err != nil {
		return nil, generateOutput{}, fmt.Errorf("open %s: %w", input.DEM, err)
	}
	format, err := vector.ParseFormat(input.VectorFormat)
	if err != nil {
		return nil, generateOutput{}, err
	}
	skip := make([]terrain.Key, 0, len(input.Skip))
	for _, k := range input.Skip {
		skip = append(skip, terrain.Key(strings.ToUpper(strings.TrimSpace(k))))
	}
	dests, err := wiring.Destinations(s.profile(), input.OutDir, format, skip)
	if err != nil {
		return nil, generateOutput{}, err
	}

	schema := input.Schema
	if schema == "" {
		schema = s.profile().Sink.Schema
	}
	var conn *sink.Connection
	if input.Database != "" {
		conn = &sink.Connection{DSN: input.Database}
	}
	req := pipeline.Request{Source: src, Destinations: dests, Sink: sink.NewTarget(conn, schema)}

	g, err := s.Driver.Graph(req)
	if err != nil {
		return nil, generateOutput{}, err
	}

	s.mu.Lock()
	s.seq++
	run := newRun(s.seq, input.DEM)
	s.runs[run.ID] = run
	s.mu.Unlock()

	logging.New("mcp").Info("run started", "run_id", run.ID, "dem", input.DEM, "stages", g.Len())
	go run.exec(s.ctx, s.Driver, req, s.OpenImporter)

	return nil, generateOutput{RunID: run.ID, Status: string(StateRunning), Stages: g.Len()}, nil
}

func (s *Server) handleGetRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input runInput) (*sdkmcp.CallToolResult, runOutput, error) {
	run, err := s.getRun(input.RunID)
	if err != nil {
		return nil, runOutput{}, err
	}
	wait := time.Duration(input.WaitMS) * time.Millisecond
	if wait > MaxGetRunWait {
		wait = MaxGetRunWait
	}
	run.Wait(ctx, wait)
	out := describe(run)
	out.Events = run.Events(input.Since)
	out.NextEvent = max(input.Since, 0) + len(out.Events)
	return nil, out, nil
}

func (s *Server) handleCancelRun(_ context.Context, _ *sdkmcp.CallToolRequest, input cancelInput) (*sdkmcp.CallToolResult, cancelOutput, error) {
	run, err := s.getRun(input.RunID)
	if err != nil {
		return nil, cancelOutput{}, err
	}
	run.Cancel()
	logging.New("mcp").Info("run cancel requested", "run_id", run.ID)
	return nil, cancelOutput{RunID: run.ID, Status: string(run.State())}, nil
}

func (s *Server) handleListRuns(_ context.Context, _ *sdkmcp.CallToolRequest, _ listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].seq < runs[j].seq })

	out := listRunsOutput{Runs: []runOutput{}}
	for _, r := range runs {
		out.Runs = append(out.Runs, describe(r))
	}
	return nil, out, nil
}

func describe(r *Run) runOutput {
	out := runOutput{
		RunID:     r.ID,
		DEM:       r.DEM,
		Status:    string(r.State()),
		ElapsedMS: r.Elapsed().Milliseconds(),
		NextEvent: r.events.Len(),
	}
	if err := r.Err(); err != nil {
		out.Error = err.Error()
		return out
	}
	res := r.Result()
	if res == nil {
		return out
	}
	out.Outputs = make(map[string]string, len(res.Outputs))
	for k, p := range res.Outputs {
		out.Outputs[string(k)] = p.Destination.String()
	}
	for _, k := range res.Completed {
		out.Completed = append(out.Completed, string(k))
	}
	out.Skipped = res.Skipped
	for _, o := range res.Imports {
		imp := importOutput{Table: o.Table, Rows: o.Confirmation.Rows}
		if o.Err != nil {
			imp.Error = o.Err.Error()
		}
		out.Imports = append(out.Imports, imp)
	}
	out.Coverage = res.Coverage
	out.Summary = res.Describe()
	return out
}

// Run returns the run with id, if any.
func (s *Server) Run(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

// Shutdown cancels every run still in progress and waits for them to stop.
func (s *Server) Shutdown() {
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	s.cancel()
	for _, r := range runs {
		r.Cancel()
		<-r.Done()
	}
}

func (s *Server) getRun(id string) (*Run, error) {
	if r, ok := s.Run(id); ok {
		return r, nil
	}
	return nil, fmt.Errorf("unknown run_id %q (call generate_trail_layers first)", id)
}

func (s *Server) profile() *profile.Profile {
	if s.Driver.Profile != nil {
		return s.Driver.Profile
	}
	return profile.Default()
}
