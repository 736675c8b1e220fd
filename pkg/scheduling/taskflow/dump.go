package taskflow

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/topo"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

// Dump writes g in DOT format. Composed graphs and the subgraphs of
// subflow tasks that already ran are emitted as clusters.
func (g *Graph) Dump(w io.Writer) error {
	dg := newDotGraph(g, false, map[*Graph]bool{g: true}, false)
	b, err := dot.Marshal(dg, "", "", "  ")
	if err != nil {
		return gferrors.NewOperationError("taskflow", "Dump", err).WithContext(g.name)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return gferrors.NewOperationError("taskflow", "Dump", err).WithContext(g.name)
	}
	return nil
}

// DumpString returns the DOT text of g.
func (g *Graph) DumpString() string {
	var sb strings.Builder
	if err := g.Dump(&sb); err != nil {
		return ""
	}
	return sb.String()
}

// Validate reports problems that would make a run hang or do nothing:
// cycles made only of strong edges, and graphs without a source task.
// Composed graphs are validated too.
func (g *Graph) Validate() error {
	return g.validate(map[*Graph]bool{})
}

func (g *Graph) validate(seen map[*Graph]bool) error {
	if seen[g] {
		return gferrors.NewValidationError("taskflow", "graph", g.name, "composes itself").
			WithHint("module tasks must not form a cycle of graphs")
	}
	seen[g] = true
	defer delete(seen, g)

	if g.Empty() {
		return nil
	}
	if len(g.sources()) == 0 {
		return gferrors.NewValidationError("taskflow", "graph", g.name, "has no source task").
			WithHint("every task has a dependent, so nothing can start")
	}

	strong := newDotGraph(g, true, nil, false)
	for _, scc := range topo.TarjanSCC(strong) {
		if len(scc) == 1 && !strong.HasEdgeFromTo(scc[0].ID(), scc[0].ID()) {
			continue
		}
		names := lo.Map(scc, func(n gonum.Node, _ int) string {
			return n.(dotNode).label()
		})
		sort.Strings(names)
		return gferrors.NewValidationError("taskflow", "graph", g.name,
			"strong dependency cycle through "+strings.Join(names, ", ")).
			WithHint("break the cycle or route it through a condition task")
	}

	for _, n := range g.nodes {
		if n.kind != KindModule {
			continue
		}
		if err := n.work.(Composable).FlowGraph().validate(seen); err != nil {
			return err
		}
	}
	return nil
}

// dotGraph adapts a Graph to gonum's graph interfaces. With strongOnly set,
// edges leaving condition tasks are hidden.
type dotGraph struct {
	g          *Graph
	strongOnly bool
	cluster    bool
	byID       map[int64]*node
	subs       []dot.Graph
}

func newDotGraph(g *Graph, strongOnly bool, seen map[*Graph]bool, cluster bool) *dotGraph {
	dg := &dotGraph{
		g:          g,
		strongOnly: strongOnly,
		cluster:    cluster,
		byID:       make(map[int64]*node, len(g.nodes)),
	}
	for _, n := range g.nodes {
		dg.byID[int64(n.id)] = n
	}
	if seen == nil {
		return dg
	}
	for _, n := range g.nodes {
		var sub *Graph
		switch {
		case n.kind == KindModule:
			sub = n.work.(Composable).FlowGraph()
		case n.kind == KindSubflow && n.subgraph != nil && !n.subgraph.Empty():
			sub = n.subgraph
		}
		if sub == nil || seen[sub] {
			continue
		}
		seen[sub] = true
		dg.subs = append(dg.subs, newDotGraph(sub, strongOnly, seen, true))
	}
	return dg
}

func (dg *dotGraph) DOTID() string {
	name := dg.g.name
	if name == "" {
		name = fmt.Sprintf("g%p", dg.g)
	}
	if dg.cluster {
		return "cluster_" + name
	}
	return name
}

func (dg *dotGraph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	graph = attrs{}
	if dg.cluster {
		graph = attrs{{Key: "label", Value: "Graph: " + dg.g.name}}
	}
	return graph, attrs{}, attrs{}
}

func (dg *dotGraph) Structure() []dot.Graph {
	return dg.subs
}

func (dg *dotGraph) Node(id int64) gonum.Node {
	if n, ok := dg.byID[id]; ok {
		return dotNode{n}
	}
	return nil
}

func (dg *dotGraph) Nodes() gonum.Nodes {
	return dg.wrap(dg.g.nodes)
}

func (dg *dotGraph) From(id int64) gonum.Nodes {
	n, ok := dg.byID[id]
	if !ok || (dg.strongOnly && n.isConditionTask()) {
		return gonum.Empty
	}
	return dg.wrap(lo.Uniq(n.successors))
}

func (dg *dotGraph) To(id int64) gonum.Nodes {
	n, ok := dg.byID[id]
	if !ok {
		return gonum.Empty
	}
	deps := lo.Uniq(n.dependents)
	if dg.strongOnly {
		deps = lo.Reject(deps, func(d *node, _ int) bool { return d.isConditionTask() })
	}
	return dg.wrap(deps)
}

func (dg *dotGraph) HasEdgeBetween(xid, yid int64) bool {
	return dg.HasEdgeFromTo(xid, yid) || dg.HasEdgeFromTo(yid, xid)
}

func (dg *dotGraph) HasEdgeFromTo(uid, vid int64) bool {
	return dg.Edge(uid, vid) != nil
}

func (dg *dotGraph) Edge(uid, vid int64) gonum.Edge {
	u, ok := dg.byID[uid]
	if !ok || (dg.strongOnly && u.isConditionTask()) {
		return nil
	}
	for i, s := range u.successors {
		if int64(s.id) == vid {
			return dotEdge{from: u, to: s, index: i}
		}
	}
	return nil
}

func (dg *dotGraph) wrap(nodes []*node) gonum.Nodes {
	if len(nodes) == 0 {
		return gonum.Empty
	}
	out := make([]gonum.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := dg.byID[int64(n.id)]; ok {
			out = append(out, dotNode{n})
		}
	}
	return iterator.NewOrderedNodes(out)
}

type dotNode struct {
	n *node
}

func (d dotNode) ID() int64 {
	return int64(d.n.id)
}

func (d dotNode) DOTID() string {
	return fmt.Sprintf("p%d", d.n.id)
}

func (d dotNode) label() string {
	if d.n.name != "" {
		return d.n.name
	}
	return d.DOTID()
}

func (d dotNode) Attributes() []encoding.Attribute {
	label := d.label()
	if d.n.kind == KindModule {
		label += " [m: " + d.n.work.(Composable).FlowGraph().name + "]"
	}
	a := attrs{{Key: "label", Value: label}}
	switch d.n.kind {
	case KindCondition, KindMultiCondition:
		a = append(a, encoding.Attribute{Key: "shape", Value: "diamond"})
	case KindModule:
		a = append(a, encoding.Attribute{Key: "shape", Value: "box3d"})
	case KindSubflow:
		a = append(a, encoding.Attribute{Key: "shape", Value: "folder"})
	case KindRuntime:
		a = append(a, encoding.Attribute{Key: "shape", Value: "component"})
	case KindPlaceholder:
		a = append(a, encoding.Attribute{Key: "style", Value: "dashed"})
	}
	return a
}

type dotEdge struct {
	from, to *node
	index    int
}

func (e dotEdge) From() gonum.Node { return dotNode{e.from} }
func (e dotEdge) To() gonum.Node   { return dotNode{e.to} }

func (e dotEdge) ReversedEdge() gonum.Edge {
	return dotEdge{from: e.to, to: e.from, index: e.index}
}

func (e dotEdge) Attributes() []encoding.Attribute {
	if e.from.isConditionTask() {
		return attrs{
			{Key: "style", Value: "dashed"},
			{Key: "label", Value: fmt.Sprint(e.index)},
		}
	}
	return nil
}

type attrs []encoding.Attribute

func (a attrs) Attributes() []encoding.Attribute {
	return a
}
