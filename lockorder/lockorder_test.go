package lockorder

import "bytes"
import "strings"
import "testing"

func TestNoCycle(t *testing.T) {
	g := Mkgraph()
	g.Edge("kcall", "ptable")
	g.Edge("ptable", "ttable")
	g.Edge("ttable", "cond")
	g.Edge("kcall", "ttable")
	if c := g.Cycles(); len(c) != 0 {
		t.Fatalf("unexpected cycles %v", c)
	}
	if g.Nclasses() != 4 {
		t.Fatalf("classes %v", g.Nclasses())
	}
}

func TestCycle(t *testing.T) {
	g := Mkgraph()
	g.Edge("ptable", "ttable")
	g.Edge("ttable", "cond")
	g.Edge("cond", "ptable")
	g.Edge("kcall", "ptable")
	c := g.Cycles()
	if len(c) != 1 {
		t.Fatalf("cycles %v", c)
	}
	want := []string{"cond", "ptable", "ttable"}
	for i := range want {
		if c[0][i] != want[i] {
			t.Fatalf("cycle %v want %v", c[0], want)
		}
	}
}

func TestSelfloop(t *testing.T) {
	g := Mkgraph()
	g.Edge("ttable", "ttable")
	if c := g.Cycles(); len(c) != 1 || c[0][0] != "ttable" {
		t.Fatalf("cycles %v", c)
	}
}

func TestHeld(t *testing.T) {
	Enable(true)
	defer Enable(false)
	old := Kgraph
	Kgraph = Mkgraph()
	defer func() { Kgraph = old }()

	var h Held_t
	h.Acquire("a")
	h.Acquire("b")
	h.Release("b")
	h.Release("a")
	h.Acquire("b")
	h.Acquire("a")
	if h.Len() != 2 {
		t.Fatalf("held %v", h.Len())
	}
	if c := Kgraph.Cycles(); len(c) != 1 {
		t.Fatalf("a/b inversion not found: %v", c)
	}
	var buf bytes.Buffer
	Kgraph.Dot(&buf)
	if !strings.Contains(buf.String(), "digraph") {
		t.Fatalf("bad dot output %q", buf.String())
	}
}

func TestDisabled(t *testing.T) {
	old := Kgraph
	Kgraph = Mkgraph()
	defer func() { Kgraph = old }()
	var h Held_t
	h.Acquire("a")
	h.Acquire("b")
	if Kgraph.Nclasses() != 0 {
		t.Fatalf("recorded while disabled")
	}
}
