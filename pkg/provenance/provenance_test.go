package provenance

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

func id(label string) wcrypto.Digest {
	return wcrypto.Hash("test-node", []byte(label))
}

func anchor(physical int64) fabric.TemporalAnchor {
	return fabric.TemporalAnchor{Physical: physical, Logical: 0, NodeId: 1}
}

func node(label string, worldline wcrypto.Digest, seq uint64, ts int64, parents ...ParentEdge) DagNode {
	return DagNode{
		Id:        id(label),
		Worldline: worldline,
		Seq:       seq,
		Kind:      ledger.KindCommitment,
		Timestamp: anchor(ts),
		Parents:   parents,
	}
}

func TestAddNodeRejectsDanglingParent(t *testing.T) {
	d := New()
	w := id("w1")
	err := d.AddNode(node("a", w, 1, 1, ParentEdge{Target: id("missing"), Relation: RelationSequential}))
	require.Error(t, err)
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	d := New()
	w := id("w1")
	require.NoError(t, d.AddNode(node("a", w, 1, 1)))
	err := d.AddNode(node("a", w, 1, 1))
	require.Error(t, err)
}

// TestImpactReportDiamond builds A -> B, A -> C, B -> D, C -> D and
// checks downstream count, cascade depth, and critical paths.
func TestImpactReportDiamond(t *testing.T) {
	d := New()
	w := id("w1")

	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))

	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))

	c := node("c", w, 3, 3, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))

	dd := node("d", w, 4, 4,
		ParentEdge{Target: b.Id, Relation: RelationMerge},
		ParentEdge{Target: c.Id, Relation: RelationMerge},
	)
	require.NoError(t, d.AddNode(dd))

	report, err := d.ImpactReport(a.Id)
	require.NoError(t, err)
	require.Equal(t, 3, report.DownstreamReceipts)
	require.Equal(t, 2, report.CascadeDepth)
	require.Len(t, report.AffectedWorldlines, 1)
	require.Equal(t, w, report.AffectedWorldlines[0])

	// D is the only leaf; exactly one critical path from A to D.
	require.Len(t, report.CriticalPaths, 1)
	path := report.CriticalPaths[0]
	require.Equal(t, a.Id, path[0])
	require.Equal(t, dd.Id, path[len(path)-1])
	require.Len(t, path, 3)
}

func TestAncestorsAndDescendantsDiamond(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))
	c := node("c", w, 3, 3, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))
	dd := node("d", w, 4, 4,
		ParentEdge{Target: b.Id, Relation: RelationMerge},
		ParentEdge{Target: c.Id, Relation: RelationMerge},
	)
	require.NoError(t, d.AddNode(dd))

	ancestors, err := d.Ancestors(dd.Id, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []wcrypto.Digest{a.Id, b.Id, c.Id}, ancestors)

	descendants, err := d.Descendants(a.Id, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []wcrypto.Digest{b.Id, c.Id, dd.Id}, descendants)
}

func TestCommonAncestorDiamond(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))
	c := node("c", w, 3, 3, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))

	anc, ok := d.CommonAncestor(b.Id, c.Id)
	require.True(t, ok)
	require.Equal(t, a.Id, anc)
}

func TestTopologicalOrderRespectsParents(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))
	c := node("c", w, 3, 3, ParentEdge{Target: b.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))

	order, err := d.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []wcrypto.Digest{a.Id, b.Id, c.Id}, order)
}

func TestCausalPathFindsShortestRoute(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))
	c := node("c", w, 3, 3, ParentEdge{Target: b.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))

	path, ok := d.CausalPath(a.Id, c.Id)
	require.True(t, ok)
	require.Equal(t, []wcrypto.Digest{a.Id, b.Id, c.Id}, path)
}

// TestCrossWorldlineProvenance checks that a commitment on worldline B
// can carry an evidence/cross-worldline parent edge to a receipt on
// worldline A, and that the impact report from the origin lists
// worldline B as affected (the origin's own worldline is not counted).
func TestCrossWorldlineProvenance(t *testing.T) {
	d := New()
	wA := id("worldline-a")
	wB := id("worldline-b")

	origin := node("origin", wA, 1, 1)
	require.NoError(t, d.AddNode(origin))

	borrowed := node("borrowed", wB, 1, 2, ParentEdge{Target: origin.Id, Relation: RelationCrossWorldline})
	require.NoError(t, d.AddNode(borrowed))

	descendants, err := d.Descendants(origin.Id, 0)
	require.NoError(t, err)
	require.Equal(t, []wcrypto.Digest{borrowed.Id}, descendants)

	report, err := d.ImpactReport(origin.Id)
	require.NoError(t, err)
	require.ElementsMatch(t, []wcrypto.Digest{wB}, report.AffectedWorldlines)

	history := d.WorldlineHistory(wB)
	require.Len(t, history, 1)
	require.Equal(t, borrowed.Id, history[0].Id)
	require.Equal(t, RelationCrossWorldline, borrowed.Parents[0].Relation)
}

func TestCheckpointPrunesOldNodesAndPromotesRoots(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 10, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))

	pruned := d.Checkpoint(anchor(5))
	require.Equal(t, 1, pruned)

	_, ok := d.Get(a.Id)
	require.False(t, ok)

	remaining, ok := d.Get(b.Id)
	require.True(t, ok)
	require.Empty(t, remaining.Parents)
	require.NoError(t, d.Validate())
}

func TestAuditTrailOrdersMostRecentFirst(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	b := node("b", w, 2, 2, ParentEdge{Target: a.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(b))
	c := node("c", w, 3, 3, ParentEdge{Target: b.Id, Relation: RelationSequential})
	require.NoError(t, d.AddNode(c))

	trail, err := d.AuditTrail(c.Id)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, b.Id, trail[0].Node)
	require.Equal(t, a.Id, trail[1].Node)
}

func TestValidateDetectsDanglingParentAfterManualCorruption(t *testing.T) {
	d := New()
	w := id("w1")
	a := node("a", w, 1, 1)
	require.NoError(t, d.AddNode(a))
	require.NoError(t, d.Validate())

	d.nodes[id("x")] = node("x", w, 2, 2, ParentEdge{Target: id("missing"), Relation: RelationSequential})
	require.ErrorIs(t, d.Validate(), wllerr.ErrDanglingParent)
}
