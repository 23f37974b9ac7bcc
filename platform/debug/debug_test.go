package debug

import (
	"context"
	"testing"

	"slrz.net/drivetopo/manager"
	"slrz.net/drivetopo/platform"
	"slrz.net/drivetopo/topology"
)

func testGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g := topology.NewGraph()
	if _, err := g.AddNode("hs1", topology.Attributes{"function": "host"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddNode("sw1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPort("hs1", "1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddPort("sw1", "3", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddLink("mid", "hs1", "1", "sw1", "3", nil); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRegistered(t *testing.T) {
	p, err := platform.New("debug")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*Platform); !ok {
		t.Fatalf("got %T from registry, want *debug.Platform", p)
	}
}

func TestBuildAndTeardown(t *testing.T) {
	ctx := context.Background()
	p := New()
	m := manager.New(p)

	if err := m.Load(testGraph(t)); err != nil {
		t.Fatal(err)
	}
	if err := m.Build(ctx); err != nil {
		t.Fatal(err)
	}

	hs1, err := m.Get("hs1")
	if err != nil {
		t.Fatal(err)
	}
	if got := hs1.Identifier(); got != "hs1" {
		t.Errorf("got identifier %q, want hs1", got)
	}
	// the debug platform keeps declared labels as real port names
	if got := hs1.Ports()["1"]; got != "1" {
		t.Errorf(`got Ports()["1"] = %q, want "1"`, got)
	}
	if got := hs1.DefaultShell(); got != "sh" {
		t.Errorf("got default shell %q, want sh", got)
	}
	if got := hs1.AvailableShells(); len(got) != 1 || got[0] != "sh" {
		t.Errorf("got shells %v, want [sh]", got)
	}

	// node metadata survives into the engine node
	dn, ok := hs1.(*Node)
	if !ok {
		t.Fatalf("got %T, want *debug.Node", hs1)
	}
	if got := dn.Metadata().Attr("function"); got != "host" {
		t.Errorf("got function %q, want host", got)
	}

	if err := m.Unbuild(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestUnlinkRecorded(t *testing.T) {
	ctx := context.Background()
	p := New()
	m := manager.New(p)
	if err := m.Load(testGraph(t)); err != nil {
		t.Fatal(err)
	}
	if err := m.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Unlink(ctx, "mid"); err != nil {
		t.Fatal(err)
	}
	if !p.Unlinked("mid") {
		t.Error("mid not recorded as down")
	}
	if err := m.Relink(ctx, "mid"); err != nil {
		t.Fatal(err)
	}
	if p.Unlinked("mid") {
		t.Error("mid still recorded as down")
	}
}

// TestNodeShell spawns a real bash through the engine node.
func TestNodeShell(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}
	ctx := context.Background()
	m := manager.New(New())
	if err := m.Load(testGraph(t)); err != nil {
		t.Fatal(err)
	}
	if err := m.Build(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Unbuild(ctx)

	hs1, err := m.Get("hs1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := hs1.Execute(ctx, "echo from-hs1")
	if err != nil {
		t.Fatal(err)
	}
	if want := "from-hs1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
