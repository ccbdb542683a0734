package provenance

import (
	"sort"
	"sync"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// Dag is the derived causal graph: nodes keyed by id, a forward-edge
// index from parent to children, and an explicit root set (§4.6).
type Dag struct {
	mu       sync.RWMutex
	nodes    map[wcrypto.Digest]DagNode
	children map[wcrypto.Digest][]wcrypto.Digest
	roots    map[wcrypto.Digest]bool
}

// New returns an empty Dag.
func New() *Dag {
	return &Dag{
		nodes:    make(map[wcrypto.Digest]DagNode),
		children: make(map[wcrypto.Digest][]wcrypto.Digest),
		roots:    make(map[wcrypto.Digest]bool),
	}
}

// AddNode rejects duplicate ids and dangling parents, then updates the
// forward index and root set.
func (d *Dag) AddNode(node DagNode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.nodes[node.Id]; exists {
		return wllerr.Wrap(wllerr.ErrDuplicateNode, nil)
	}
	for _, parent := range node.Parents {
		if _, ok := d.nodes[parent.Target]; !ok {
			return wllerr.Wrap(wllerr.ErrDanglingParent, nil)
		}
	}

	d.nodes[node.Id] = node
	for _, parent := range node.Parents {
		d.children[parent.Target] = append(d.children[parent.Target], node.Id)
	}
	if len(node.Parents) == 0 {
		d.roots[node.Id] = true
	}
	return nil
}

// Get returns the node for id, if present.
func (d *Dag) Get(id wcrypto.Digest) (DagNode, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	return n, ok
}

// Ancestors walks parent edges breadth-first, excluding id itself,
// seeded at depth 1, bounded by maxDepth (0 means unbounded).
func (d *Dag) Ancestors(id wcrypto.Digest, maxDepth int) ([]wcrypto.Digest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[id]; !ok {
		return nil, wllerr.Wrap(wllerr.ErrNodeNotFound, nil)
	}
	return d.bfsParents(id, maxDepth), nil
}

func (d *Dag) bfsParents(id wcrypto.Digest, maxDepth int) []wcrypto.Digest {
	visited := map[wcrypto.Digest]bool{id: true}
	var out []wcrypto.Digest
	frontier := []wcrypto.Digest{id}
	depth := 0
	for len(frontier) > 0 && (maxDepth == 0 || depth < maxDepth) {
		var next []wcrypto.Digest
		for _, cur := range frontier {
			for _, parent := range d.nodes[cur].Parents {
				if visited[parent.Target] {
					continue
				}
				visited[parent.Target] = true
				out = append(out, parent.Target)
				next = append(next, parent.Target)
			}
		}
		frontier = next
		depth++
	}
	return out
}

// Descendants walks the forward (children) index breadth-first,
// excluding id itself, seeded at depth 1.
func (d *Dag) Descendants(id wcrypto.Digest, maxDepth int) ([]wcrypto.Digest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[id]; !ok {
		return nil, wllerr.Wrap(wllerr.ErrNodeNotFound, nil)
	}
	return d.bfsChildren(id, maxDepth), nil
}

func (d *Dag) bfsChildren(id wcrypto.Digest, maxDepth int) []wcrypto.Digest {
	visited := map[wcrypto.Digest]bool{id: true}
	var out []wcrypto.Digest
	frontier := []wcrypto.Digest{id}
	depth := 0
	for len(frontier) > 0 && (maxDepth == 0 || depth < maxDepth) {
		var next []wcrypto.Digest
		for _, cur := range frontier {
			for _, child := range d.children[cur] {
				if visited[child] {
					continue
				}
				visited[child] = true
				out = append(out, child)
				next = append(next, child)
			}
		}
		frontier = next
		depth++
	}
	return out
}

// CausalPath finds the shortest path between from and to over the
// combined parent+child edge set, inclusive of both endpoints. Returns
// (nil, false) if either endpoint is missing or no path exists.
func (d *Dag) CausalPath(from, to wcrypto.Digest) ([]wcrypto.Digest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[from]; !ok {
		return nil, false
	}
	if _, ok := d.nodes[to]; !ok {
		return nil, false
	}
	if from == to {
		return []wcrypto.Digest{from}, true
	}

	prev := map[wcrypto.Digest]wcrypto.Digest{}
	visited := map[wcrypto.Digest]bool{from: true}
	queue := []wcrypto.Digest{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, neighbor := range d.neighbors(cur) {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			prev[neighbor] = cur
			if neighbor == to {
				return d.reconstructPath(prev, from, to), true
			}
			queue = append(queue, neighbor)
		}
	}
	return nil, false
}

func (d *Dag) neighbors(id wcrypto.Digest) []wcrypto.Digest {
	var out []wcrypto.Digest
	for _, p := range d.nodes[id].Parents {
		out = append(out, p.Target)
	}
	out = append(out, d.children[id]...)
	return out
}

func (d *Dag) reconstructPath(prev map[wcrypto.Digest]wcrypto.Digest, from, to wcrypto.Digest) []wcrypto.Digest {
	path := []wcrypto.Digest{to}
	cur := to
	for cur != from {
		cur = prev[cur]
		path = append([]wcrypto.Digest{cur}, path...)
	}
	return path
}

// WorldlineHistory returns every node belonging to worldline w, sorted
// by seq.
func (d *Dag) WorldlineHistory(w wcrypto.Digest) []DagNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []DagNode
	for _, n := range d.nodes {
		if n.Worldline == w {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// CommonAncestor intersects the ancestor closures of a and b (each
// including the node itself) and returns the element with the latest
// timestamp — the lowest common ancestor.
func (d *Dag) CommonAncestor(a, b wcrypto.Digest) (wcrypto.Digest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.nodes[a]; !ok {
		return wcrypto.Digest{}, false
	}
	if _, ok := d.nodes[b]; !ok {
		return wcrypto.Digest{}, false
	}

	closureA := d.closureIncludingSelf(a)
	closureB := d.closureIncludingSelf(b)

	var best wcrypto.Digest
	var bestTs fabric.TemporalAnchor
	found := false
	for id := range closureA {
		if !closureB[id] {
			continue
		}
		ts := d.nodes[id].Timestamp
		if !found || bestTs.Less(ts) {
			best, bestTs, found = id, ts, true
		}
	}
	return best, found
}

func (d *Dag) closureIncludingSelf(id wcrypto.Digest) map[wcrypto.Digest]bool {
	closure := map[wcrypto.Digest]bool{id: true}
	for _, a := range d.bfsParents(id, 0) {
		closure[a] = true
	}
	return closure
}

// TopologicalOrder runs Kahn's algorithm: in-degree is the number of
// parents; nodes that become ready (in-degree 0) are processed in
// timestamp order, breaking ties deterministically by node id (§4.6).
func (d *Dag) TopologicalOrder() ([]wcrypto.Digest, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inDegree := make(map[wcrypto.Digest]int, len(d.nodes))
	for id, n := range d.nodes {
		inDegree[id] = len(n.Parents)
	}

	var ready []wcrypto.Digest
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByTimestamp(ready, d.nodes)

	var order []wcrypto.Digest
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		var newlyReady []wcrypto.Digest
		for _, child := range d.children[cur] {
			inDegree[child]--
			if inDegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sortByTimestamp(newlyReady, d.nodes)
		ready = append(ready, newlyReady...)
		sortByTimestamp(ready, d.nodes)
	}

	if len(order) != len(d.nodes) {
		return nil, wllerr.Wrap(wllerr.ErrCycleDetected, nil)
	}
	return order, nil
}

func sortByTimestamp(ids []wcrypto.Digest, nodes map[wcrypto.Digest]DagNode) {
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := nodes[ids[i]].Timestamp, nodes[ids[j]].Timestamp
		if ti.Less(tj) {
			return true
		}
		if tj.Less(ti) {
			return false
		}
		return lessDigest(ids[i], ids[j])
	})
}

// AuditEntry is one hop of an AuditTrail.
type AuditEntry struct {
	Node      wcrypto.Digest
	Relation  Relation
	Worldline wcrypto.Digest
	Timestamp fabric.TemporalAnchor
	Summary   string
}

// AuditTrail walks backward from commitId through parent edges,
// emitting one entry per hop, sorted most-recent-first.
func (d *Dag) AuditTrail(commitId wcrypto.Digest) ([]AuditEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[commitId]; !ok {
		return nil, wllerr.Wrap(wllerr.ErrNodeNotFound, nil)
	}

	var entries []AuditEntry
	visited := map[wcrypto.Digest]bool{commitId: true}
	queue := []wcrypto.Digest{commitId}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, parent := range d.nodes[cur].Parents {
			if visited[parent.Target] {
				continue
			}
			visited[parent.Target] = true
			node := d.nodes[parent.Target]
			entries = append(entries, AuditEntry{
				Node:      parent.Target,
				Relation:  parent.Relation,
				Worldline: node.Worldline,
				Timestamp: node.Timestamp,
				Summary:   summarize(node),
			})
			queue = append(queue, parent.Target)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Timestamp.Less(entries[i].Timestamp)
	})
	return entries, nil
}

func summarize(n DagNode) string {
	return string(n.Kind) + " seq=" + itoa(n.Seq)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// ImpactReport summarizes everything downstream of origin.
type ImpactReport struct {
	DownstreamReceipts int
	CascadeDepth       int
	AffectedWorldlines []wcrypto.Digest
	CriticalPaths      [][]wcrypto.Digest
}

// ImpactReport runs a forward BFS from origin and reports downstream
// receipt count, cascade depth, affected worldlines (sorted, deduped),
// and the shortest critical path from origin to each leaf descendant.
func (d *Dag) ImpactReport(origin wcrypto.Digest) (ImpactReport, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.nodes[origin]; !ok {
		return ImpactReport{}, wllerr.Wrap(wllerr.ErrNodeNotFound, nil)
	}

	visited := map[wcrypto.Digest]bool{origin: true}
	prev := map[wcrypto.Digest]wcrypto.Digest{}
	depthOf := map[wcrypto.Digest]int{origin: 0}
	frontier := []wcrypto.Digest{origin}
	maxDepth := 0
	worldlineSet := map[wcrypto.Digest]bool{}
	var leaves []wcrypto.Digest

	for len(frontier) > 0 {
		var next []wcrypto.Digest
		for _, cur := range frontier {
			children := d.children[cur]
			if len(children) == 0 && cur != origin {
				leaves = append(leaves, cur)
			}
			for _, child := range children {
				if visited[child] {
					continue
				}
				visited[child] = true
				prev[child] = cur
				depthOf[child] = depthOf[cur] + 1
				if depthOf[child] > maxDepth {
					maxDepth = depthOf[child]
				}
				worldlineSet[d.nodes[child].Worldline] = true
				next = append(next, child)
			}
		}
		frontier = next
	}

	downstream := len(visited) - 1

	worldlines := make([]wcrypto.Digest, 0, len(worldlineSet))
	for w := range worldlineSet {
		worldlines = append(worldlines, w)
	}
	sort.Slice(worldlines, func(i, j int) bool { return lessDigest(worldlines[i], worldlines[j]) })

	var criticalPaths [][]wcrypto.Digest
	sort.Slice(leaves, func(i, j int) bool { return lessDigest(leaves[i], leaves[j]) })
	for _, leaf := range leaves {
		criticalPaths = append(criticalPaths, d.reconstructPath(prev, origin, leaf))
	}

	return ImpactReport{
		DownstreamReceipts: downstream,
		CascadeDepth:       maxDepth,
		AffectedWorldlines: worldlines,
		CriticalPaths:      criticalPaths,
	}, nil
}

func lessDigest(a, b wcrypto.Digest) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Checkpoint removes every node whose timestamp is strictly before
// horizon. Children that lose all parents become new roots; dangling
// edges are removed. Returns the count of nodes pruned.
func (d *Dag) Checkpoint(horizon fabric.TemporalAnchor) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pruned := 0
	for id, n := range d.nodes {
		if n.Timestamp.Less(horizon) {
			delete(d.nodes, id)
			delete(d.children, id)
			delete(d.roots, id)
			pruned++
		}
	}

	for id, n := range d.nodes {
		var survivors []ParentEdge
		for _, p := range n.Parents {
			if _, ok := d.nodes[p.Target]; ok {
				survivors = append(survivors, p)
			}
		}
		if len(survivors) != len(n.Parents) {
			n.Parents = survivors
			d.nodes[id] = n
		}
		if len(survivors) == 0 {
			d.roots[id] = true
		}
	}

	for parent, kids := range d.children {
		var survivors []wcrypto.Digest
		for _, k := range kids {
			if _, ok := d.nodes[k]; ok {
				survivors = append(survivors, k)
			}
		}
		d.children[parent] = survivors
	}

	return pruned
}

// Validate re-verifies parent resolution and root-set consistency.
func (d *Dag) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id, n := range d.nodes {
		for _, p := range n.Parents {
			if _, ok := d.nodes[p.Target]; !ok {
				return wllerr.Wrap(wllerr.ErrDanglingParent, nil)
			}
		}
		isRoot := d.roots[id]
		hasNoParents := len(n.Parents) == 0
		if isRoot != hasNoParents {
			return wllerr.Wrap(wllerr.ErrSerialization, nil)
		}
	}
	return nil
}
