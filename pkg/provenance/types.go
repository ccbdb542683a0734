// Package provenance derives and queries the causal DAG projected from
// receipt streams: ancestor/descendant/path/audit/impact traversal over
// governance events across worldlines (§4.6).
package provenance

import (
	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// Relation tags the edge between a DagNode and one of its parents.
type Relation string

const (
	RelationSequential         Relation = "sequential"
	RelationCommitmentToOutcome Relation = "commitment_to_outcome"
	RelationEvidenceLink       Relation = "evidence_link"
	RelationCrossWorldline     Relation = "cross_worldline"
	RelationMerge              Relation = "merge"
	RelationSnapshotAnchor     Relation = "snapshot_anchor"
)

// ParentEdge names one parent of a node and the relation to it.
type ParentEdge struct {
	Target   wcrypto.Digest
	Relation Relation
}

// DagNode is a receipt's projection into the causal graph.
type DagNode struct {
	Id        wcrypto.Digest
	Worldline wcrypto.Digest
	Seq       uint64
	Kind      ledger.ReceiptKind
	Timestamp fabric.TemporalAnchor
	Parents   []ParentEdge
	Metadata  map[string]interface{}
}
