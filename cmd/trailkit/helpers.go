package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"trailkit/adapters/gdal"
	"trailkit/internal/display"
	"trailkit/internal/format"
	"trailkit/internal/pipeline"
	"trailkit/internal/profile"
	"trailkit/internal/sink"
	"trailkit/internal/terrain"
)

// rasterEngine is a pipeline engine that can also open DEMs for itself.
type rasterEngine interface {
	pipeline.Engine
	Open(ctx context.Context, path string) (*terrain.Source, error)
	io.Closer
}

// newEngine is replaced in tests.
var newEngine = func() rasterEngine { return gdal.New() }

// resolveDatabase returns the DSN from the given flag value, falling back to
// $TRAILKIT_DATABASE_URL. Returns "" if neither is set.
func resolveDatabase(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("TRAILKIT_DATABASE_URL")
}

func loadProfile(path string) (*profile.Profile, error) {
	p, err := profile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func target(dsn, schema string, p *profile.Profile) sink.Target {
	if schema == "" {
		schema = p.Sink.Schema
	}
	if dsn == "" {
		return sink.None{}
	}
	return sink.NewTarget(&sink.Connection{DSN: dsn}, schema)
}

func parseSkip(values []string) []terrain.Key {
	var keys []terrain.Key
	for _, v := range values {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, terrain.Key(strings.ToUpper(k)))
			}
		}
	}
	return keys
}

// renderResult tabulates the outputs, then any uploads, of a run.
func renderResult(res *pipeline.Result, mode format.Mode) string {
	var b strings.Builder

	keys := make([]string, 0, len(res.Outputs))
	for k := range res.Outputs {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := format.NewTable(mode)
	out.Header("Output", "Kind", "Destination", "Features")
	out.Columns(format.Column{Number: 3, MaxWidth: 60}, format.Column{Number: 4, Align: format.AlignRight})
	for _, k := range keys {
		p := res.Outputs[terrain.Key(k)]
		features := "-"
		if p.Kind.Geometry() == terrain.Vector && p.Vector != nil {
			features = fmt.Sprint(p.FeatureCount())
		}
		out.Row(display.OutputWithKey(terrain.Key(k)), string(p.Kind), display.Destination(p.Destination), features)
	}
	b.WriteString(out.String())
	b.WriteString("\n")

	if len(res.Imports) > 0 {
		imp := format.NewTable(mode)
		imp.Header("Table", "Rows", "Indexed", "Error")
		imp.Columns(format.Column{Number: 2, Align: format.AlignRight}, format.Column{Number: 4, MaxWidth: 60})
		for _, o := range res.Imports {
			if o.Err != nil {
				imp.Row(o.Table, "-", format.Mark(false), format.Truncate(o.Err.Error(), 60))
				continue
			}
			imp.Row(o.Table, o.Confirmation.Rows, format.Mark(o.Confirmation.Indexed), "")
		}
		b.WriteString(imp.String())
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n", res.Describe())
	return b.String()
}
