package lockorder

import "io"
import "sort"
import "sync"
import "sync/atomic"

import "github.com/aclements/go-moremath/graph"
import "github.com/aclements/go-moremath/graph/graphalg"
import "github.com/aclements/go-moremath/graph/graphout"

type Graph_t struct {
	sync.Mutex
	ids    map[string]int
	labels []string
	to     [][]int
}

// Kgraph is the kernel-wide graph; it only records while enabled.
var Kgraph = Mkgraph()

var enabled int32

func Enable(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	atomic.StoreInt32(&enabled, v)
}

func Enabled() bool {
	return atomic.LoadInt32(&enabled) != 0
}

func Mkgraph() *Graph_t {
	return &Graph_t{ids: make(map[string]int)}
}

func (g *Graph_t) _node(class string) int {
	id, ok := g.ids[class]
	if !ok {
		id = len(g.labels)
		g.ids[class] = id
		g.labels = append(g.labels, class)
		g.to = append(g.to, nil)
	}
	return id
}

// Edge notes that inner was acquired while outer was held.
func (g *Graph_t) Edge(outer, inner string) {
	g.Lock()
	defer g.Unlock()
	a := g._node(outer)
	b := g._node(inner)
	for _, t := range g.to[a] {
		if t == b {
			return
		}
	}
	g.to[a] = append(g.to[a], b)
}

// snap_t is an immutable copy of the graph that satisfies graph.Graph.
type snap_t struct {
	labels []string
	to     [][]int
}

func (s *snap_t) NumNodes() int {
	return len(s.labels)
}

func (s *snap_t) Out(i int) []int {
	return s.to[i]
}

func (s *snap_t) Label(i int) string {
	return s.labels[i]
}

func (g *Graph_t) snapshot() *snap_t {
	g.Lock()
	defer g.Unlock()
	s := &snap_t{
		labels: append([]string(nil), g.labels...),
		to:     make([][]int, len(g.to)),
	}
	for i := range g.to {
		s.to[i] = append([]int(nil), g.to[i]...)
	}
	return s
}

var _ graph.Graph = (*snap_t)(nil)

// Cycles returns the lock classes of every strongly connected component that
// contains a cycle, each sorted by name.
func (g *Graph_t) Cycles() [][]string {
	s := g.snapshot()
	scc := graphalg.SCC(s, graphalg.SCCSubnodeComponent)
	var ret [][]string
	for cid := 0; cid < scc.NumNodes(); cid++ {
		nids := scc.Subnodes(cid)
		if len(nids) == 1 && !selfloop(s, nids[0]) {
			continue
		}
		var names []string
		for _, nid := range nids {
			names = append(names, s.labels[nid])
		}
		sort.Strings(names)
		ret = append(ret, names)
	}
	return ret
}

func selfloop(s *snap_t, n int) bool {
	for _, t := range s.to[n] {
		if t == n {
			return true
		}
	}
	return false
}

func (g *Graph_t) Nclasses() int {
	g.Lock()
	defer g.Unlock()
	return len(g.labels)
}

// Dot writes the graph in graphviz format.
func (g *Graph_t) Dot(w io.Writer) {
	s := g.snapshot()
	graphout.Dot{Label: s.Label}.Fprint(w, s)
}

// Held_t is the stack of lock classes one thread currently holds. only the
// owning thread touches it.
type Held_t struct {
	classes []string
}

// Acquire records class against every class already held and pushes it.
func (h *Held_t) Acquire(class string) {
	if class == "" || !Enabled() {
		return
	}
	for _, c := range h.classes {
		Kgraph.Edge(c, class)
	}
	h.classes = append(h.classes, class)
}

func (h *Held_t) Release(class string) {
	if class == "" {
		return
	}
	for i := len(h.classes) - 1; i >= 0; i-- {
		if h.classes[i] == class {
			h.classes = append(h.classes[:i], h.classes[i+1:]...)
			return
		}
	}
}

func (h *Held_t) Len() int {
	return len(h.classes)
}
