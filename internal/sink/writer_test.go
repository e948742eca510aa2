package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trailkit/internal/terrain"
)

type recordingImporter struct {
	mu   sync.Mutex
	reqs []ImportRequest
	fail map[string]error
}

func (r *recordingImporter) Import(_ context.Context, req ImportRequest) (Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if err := r.fail[req.Table]; err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		Table:       req.Table,
		Schema:      req.Schema,
		Rows:        len(req.Layer.Features),
		Overwritten: req.Policy.Overwrite,
		Indexed:     req.Policy.CreateIndex,
	}, nil
}

func contourArtifacts() []Artifact {
	var out []Artifact
	for _, tc := range []struct {
		table string
		kind  terrain.Kind
	}{
		{"10m_contours", terrain.KindContour10m},
		{"5m_contours", terrain.KindContour5m},
		{"2m_contours", terrain.KindContour2m},
	} {
		p := terrain.NewProduct(tc.kind, terrain.TemporaryDestination(), nil)
		p.Vector = geojson.NewFeatureCollection()
		p.Vector.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
		out = append(out, Artifact{Table: tc.table, Product: p, SRID: 26910})
	}
	return out
}

func TestWrite_NoConnectionImportsNothing(t *testing.T) {
	imp := &recordingImporter{}
	w := NewWriter(imp, nil)

	got := w.Write(context.Background(), NewTarget(nil, "public"), contourArtifacts())
	if got != nil {
		t.Errorf("outcomes = %+v, want nil", got)
	}
	if len(imp.reqs) != 0 {
		t.Errorf("imports = %d, want 0", len(imp.reqs))
	}

	got = w.Write(context.Background(), NewTarget(&Connection{Name: "blank"}, "public"), contourArtifacts())
	if got != nil || len(imp.reqs) != 0 {
		t.Errorf("empty DSN should behave as no connection, got %d imports", len(imp.reqs))
	}
}

func TestWrite_ThreeContourTablesWithOverwriteAndIndex(t *testing.T) {
	imp := &recordingImporter{}
	w := NewWriter(imp, nil)
	target := NewTarget(&Connection{Name: "gis", DSN: "postgres://gis@localhost/trails"}, "public")

	outcomes := w.Write(context.Background(), target, contourArtifacts())
	if err := outcomes.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(imp.reqs) != 3 {
		t.Fatalf("imports = %d, want 3", len(imp.reqs))
	}
	var tables []string
	for _, req := range imp.reqs {
		tables = append(tables, req.Table)
		if !req.Policy.Overwrite || !req.Policy.CreateIndex {
			t.Errorf("%s: policy = %+v, want overwrite and index", req.Table, req.Policy)
		}
		if req.Schema != "public" || req.SRID != 26910 {
			t.Errorf("%s: schema=%q srid=%d", req.Table, req.Schema, req.SRID)
		}
	}
	if diff := cmp.Diff([]string{"10m_contours", "5m_contours", "2m_contours"}, tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if len(outcomes.Confirmations()) != 3 {
		t.Errorf("confirmations = %d, want 3", len(outcomes.Confirmations()))
	}
}

func TestWrite_FailureIsIsolatedPerTable(t *testing.T) {
	boom := errors.New("relation locked")
	imp := &recordingImporter{fail: map[string]error{"5m_contours": boom}}
	w := NewWriter(imp, nil)
	target := Configured{Connection: Connection{DSN: "postgres://localhost/trails"}, Schema: "public"}

	outcomes := w.Write(context.Background(), target, contourArtifacts())
	if len(imp.reqs) != 3 {
		t.Fatalf("imports attempted = %d, want 3", len(imp.reqs))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("siblings should succeed: %+v", outcomes)
	}
	var swe *terrain.SinkWriteError
	if !errors.As(outcomes[1].Err, &swe) || swe.Table != "5m_contours" {
		t.Fatalf("outcome[1].Err = %v, want SinkWriteError for 5m_contours", outcomes[1].Err)
	}
	if !errors.Is(outcomes.Err(), boom) {
		t.Errorf("joined error = %v, want to wrap %v", outcomes.Err(), boom)
	}
}

func TestWrite_UsesLayerReader(t *testing.T) {
	imp := &recordingImporter{}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	fc.Append(geojson.NewFeature(orb.Point{3, 4}))
	read := func(p *terrain.Product) (*geojson.FeatureCollection, error) { return fc, nil }
	w := NewWriter(imp, read)

	onDisk := terrain.NewProduct(terrain.KindClassPolygons, terrain.FileDestination("bd.shp"), nil)
	outcomes := w.Write(context.Background(), Configured{Connection: Connection{DSN: "trails.db"}},
		[]Artifact{{Table: "Black Diamond Polygons", Product: onDisk}})
	if err := outcomes.Err(); err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Confirmation.Rows != 2 {
		t.Errorf("rows = %d, want 2", outcomes[0].Confirmation.Rows)
	}
}

func TestWrite_MissingFeaturesFailsThatTable(t *testing.T) {
	imp := &recordingImporter{}
	w := NewWriter(imp, nil)
	bare := terrain.NewProduct(terrain.KindContour10m, terrain.TemporaryDestination(), nil)

	outcomes := w.Write(context.Background(), Configured{Connection: Connection{DSN: "x.db"}},
		[]Artifact{{Table: "10m_contours", Product: bare}})
	if outcomes.Err() == nil {
		t.Error("expected error for product without features")
	}
	if len(imp.reqs) != 0 {
		t.Errorf("importer should not be called, got %d", len(imp.reqs))
	}
}

func TestConnection_Driver(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://gis:pw@db:5432/trails?sslmode=disable", "postgres"},
		{"postgresql://db/trails", "postgres"},
		{"host=db dbname=trails sslmode=disable", "postgres"},
		{"sqlite:///tmp/trails.db", "sqlite"},
		{"/var/lib/trails.db", "sqlite"},
		{"trails.db", "sqlite"},
	}
	for _, tt := range tests {
		if got := (Connection{DSN: tt.dsn}).Driver(); got != tt.want {
			t.Errorf("Driver(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestConnection_LabelRedactsPassword(t *testing.T) {
	c := Connection{DSN: "postgres://gis:secret@db/trails"}
	if got := c.Label(); got != "postgres://gis:xxxxx@db/trails" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Connection{Name: "prod", DSN: c.DSN}).Label(); got != "prod" {
		t.Errorf("Label() = %q", got)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := DefaultPolicy()
	want := Policy{Overwrite: true, CreateIndex: true, LowercaseNames: true, Encoding: "UTF-8", GeometryColumn: "geom"}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}
	if p.Column("ELEV") != "elev" {
		t.Errorf("Column(ELEV) = %q", p.Column("ELEV"))
	}
}
