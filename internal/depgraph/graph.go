package depgraph

import (
	"container/heap"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated dependency DAG. Safe for concurrent
// read access once constructed.
type Graph struct {
	nodesByID map[string]*Node
	nodes     []*Node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)

	hash GraphHash
}

// New builds and validates a Graph from resolved packages and the
// dependency edges among them.
//
// Validation rejects: empty or duplicate package IDs, edges referencing
// unknown packages, duplicate edges, self-loops, and any cycle.
func New(packages []Package, edges []Edge) (*Graph, error) {
	if len(packages) == 0 {
		return nil, invalidf("no packages")
	}

	nodesByID := make(map[string]*Node, len(packages))
	nodes := make([]*Node, 0, len(packages))

	for _, p := range packages {
		if p.ID == "" {
			return nil, invalidf("package ID is required")
		}
		if _, exists := nodesByID[p.ID]; exists {
			return nil, invalidf("duplicate package ID: %q", p.ID)
		}

		defHash := computePackageDefHash(p)
		node := &Node{ID: p.ID, Package: p, DefinitionHash: defHash}
		nodesByID[p.ID] = node
		nodes = append(nodes, node)
	}

	// Canonicalize nodes: sort by definition hash primarily, then by ID
	// as a stable tie-breaker.
	sort.Slice(nodes, func(i, j int) bool {
		ai, aj := nodes[i], nodes[j]
		if ai.DefinitionHash != aj.DefinitionHash {
			return ai.DefinitionHash < aj.DefinitionHash
		}
		return ai.ID < aj.ID
	})
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	idToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		idToIndex[n.ID] = n.canonicalIndex
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		fromIdx, okFrom := idToIndex[e.From]
		toIdx, okTo := idToIndex[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown package (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown package (to): %q", e.To)
		}
		if e.From == e.To {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}

		pair := edgeIndex{from: fromIdx, to: toIdx}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &Graph{
		nodesByID: nodesByID,
		nodes:     nodes,
		edges:     mapped,
		outgoing:  outgoing,
		incoming:  incoming,
		indeg:     indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *Graph) Hash() GraphHash { return g.hash }

// Node returns a node by package ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodesByID[id]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the dependency edges as (From, To) ID pairs, in
// canonical order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].ID, To: g.nodes[e.to].ID})
	}
	return out
}

// Dependencies returns the direct dependency IDs of id, sorted.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodesByID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, idx := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[idx].ID)
	}
	return out
}

// Depth returns the deterministic topological depth of id: the length
// of the longest dependency chain beneath it.
func (g *Graph) Depth(id string) (int, bool) {
	n, ok := g.nodesByID[id]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	order := g.topoOrderIndices()
	for _, u := range order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic build order: dependencies
// before dependents.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	ids := make([]string, 0, len(order))
	for _, idx := range order {
		ids = append(ids, g.nodes[idx].ID)
	}
	return ids
}

// ReadyAtDepth groups the topological order by depth, so an executor can
// dispatch every ready package at one depth before advancing.
func (g *Graph) ReadyAtDepth() [][]string {
	if len(g.nodes) == 0 {
		return nil
	}
	maxDepth := 0
	for _, d := range g.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	stages := make([][]string, maxDepth+1)
	for _, idx := range g.topoOrderIndices() {
		d := g.depth[idx]
		stages[d] = append(stages[d], g.nodes[idx].ID)
	}
	return stages
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices returns a deterministic topological ordering of node
// indices; the ready queue is a min-heap by canonical index.
func (g *Graph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (g *Graph) validateAcyclic() error {
	order := g.topoOrderIndices()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.findCycleDeterministic())
}

func (g *Graph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := 0; i < len(g.nodes); i++ {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return nil
	}

	rev := make([]int, len(cycle))
	for i := range cycle {
		rev[i] = cycle[len(cycle)-1-i]
	}

	out := make([]string, 0, len(rev))
	for _, idx := range rev {
		out = append(out, g.nodes[idx].ID)
	}
	return out
}

func (g *Graph) computeGraphHash() GraphHash {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte{byte(len(g.nodes))})
	for _, n := range g.nodes {
		writeField([]byte(n.DefinitionHash))
	}

	writeField([]byte{byte(len(g.edges))})
	for _, e := range g.edges {
		writeField([]byte{byte(e.from >> 24), byte(e.from >> 16), byte(e.from >> 8), byte(e.from)})
		writeField([]byte{byte(e.to >> 24), byte(e.to >> 16), byte(e.to >> 8), byte(e.to)})
	}

	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}

// computePackageDefHash hashes a package's declarative identity: name,
// version and, when present, its manifest's requirement set (so two
// resolutions that pick the same name@version but different manifests,
// e.g. a local:path override, never collide).
func computePackageDefHash(p Package) PackageDefHash {
	h := sha256.New()
	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte(p.Name))
	writeField([]byte(p.Version.String()))

	if p.Manifest != nil {
		reqNames := make([]string, 0, len(p.Manifest.Requires))
		for name := range p.Manifest.Requires {
			reqNames = append(reqNames, name)
		}
		sort.Strings(reqNames)
		writeField([]byte{byte(len(reqNames))})
		for _, name := range reqNames {
			writeField([]byte(name))
			writeField([]byte(p.Manifest.Requires[name]))
		}
	}

	return PackageDefHash(hex.EncodeToString(h.Sum(nil)))
}
