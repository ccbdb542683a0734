// Package replay reconstructs worldline state by walking a receipt
// stream and applying accepted outcomes and snapshots in order (§4.7).
// It mirrors the teacher's replay engine's separation between reading
// the evidence trail and folding it into state, but here the fold is a
// pure function over a ledger.Reader rather than a stateful session.
package replay

import (
	"fmt"
	"sort"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// Result is the outcome of a full or partial replay.
type Result struct {
	AppliedOutcomes   int
	EvaluatedReceipts int
	State             map[string]interface{}
}

// apply folds one receipt into state, mutating it in place. Commitments
// never change state. Accepted outcomes insert/overwrite keys from
// StateUpdates. Snapshots replace state wholesale.
func apply(state map[string]interface{}, r ledger.Receipt) (applied bool) {
	switch v := r.(type) {
	case ledger.CommitmentReceipt:
		return false
	case ledger.OutcomeReceipt:
		if !v.Accepted {
			return false
		}
		for k, val := range v.StateUpdates {
			state[k] = val
		}
		return true
	case ledger.SnapshotReceipt:
		for k := range state {
			delete(state, k)
		}
		for k, val := range v.State {
			state[k] = val
		}
		return false
	default:
		return false
	}
}

// ReplayFromGenesis walks worldline's receipts from the beginning and
// folds every accepted outcome's state_updates and every snapshot's
// wholesale state into a fresh map.
func ReplayFromGenesis(r ledger.Reader, worldline wcrypto.Digest) (Result, error) {
	receipts, err := r.ReadAll(worldline)
	if err != nil {
		return Result{}, fmt.Errorf("replay: read worldline: %w", err)
	}
	return foldFrom(receipts, make(map[string]interface{}))
}

// ReplayFromSnapshot starts from snapshotHash's embedded state and
// applies only the receipts strictly after it in the same worldline.
func ReplayFromSnapshot(r ledger.Reader, worldline, snapshotHash wcrypto.Digest) (Result, error) {
	receipt, ok := r.GetByHash(snapshotHash)
	if !ok {
		return Result{}, wllerr.Wrap(wllerr.ErrReceiptNotFound, nil)
	}
	snapshot, ok := receipt.(ledger.SnapshotReceipt)
	if !ok {
		return Result{}, wllerr.Wrap(wllerr.ErrReceiptNotFound, nil)
	}
	if snapshot.Worldline != worldline {
		return Result{}, wllerr.Wrap(wllerr.ErrWorldlineMismatch, nil)
	}

	state := make(map[string]interface{}, len(snapshot.State))
	for k, v := range snapshot.State {
		state[k] = v
	}

	all, err := r.ReadAll(worldline)
	if err != nil {
		return Result{}, fmt.Errorf("replay: read worldline: %w", err)
	}
	var tail []ledger.Receipt
	for _, rec := range all {
		if rec.ReceiptHeader().Seq > snapshot.Seq {
			tail = append(tail, rec)
		}
	}
	return foldFrom(tail, state)
}

func foldFrom(receipts []ledger.Receipt, state map[string]interface{}) (Result, error) {
	applied := 0
	for _, rec := range receipts {
		if apply(state, rec) {
			applied++
		}
	}
	return Result{
		AppliedOutcomes:   applied,
		EvaluatedReceipts: len(receipts),
		State:             state,
	}, nil
}

// VerifySnapshotConvergence replays from genesis and from snapshotHash
// and reports whether both yield identical state.
func VerifySnapshotConvergence(r ledger.Reader, worldline, snapshotHash wcrypto.Digest) (bool, error) {
	full, err := ReplayFromGenesis(r, worldline)
	if err != nil {
		return false, err
	}
	fromSnapshot, err := ReplayFromSnapshot(r, worldline, snapshotHash)
	if err != nil {
		return false, err
	}
	fullHash, err := wcrypto.HashCanonical(wcrypto.DomainSnapshot, full.State)
	if err != nil {
		return false, err
	}
	snapshotHash2, err := wcrypto.HashCanonical(wcrypto.DomainSnapshot, fromSnapshot.State)
	if err != nil {
		return false, err
	}
	return fullHash == snapshotHash2, nil
}

// Projection is the latest-state summary for a worldline (§4.7
// latest_state_projection).
type Projection struct {
	HeadReceiptHash    wcrypto.Digest
	LatestCommitmentId wcrypto.Digest
	HasCommitment      bool
	TrajectoryLength   uint64
	LastUpdate         fabric.TemporalAnchor
	State              map[string]interface{}
}

// LatestStateProjection returns the head receipt ref, latest commitment
// id seen, trajectory length, last update time, and the replayed state.
func LatestStateProjection(r ledger.Reader, worldline wcrypto.Digest) (Projection, error) {
	head, ok := r.Head(worldline)
	if !ok {
		return Projection{}, wllerr.Wrap(wllerr.ErrWorldlineEmpty, nil)
	}
	result, err := ReplayFromGenesis(r, worldline)
	if err != nil {
		return Projection{}, err
	}

	all, err := r.ReadAll(worldline)
	if err != nil {
		return Projection{}, err
	}
	var latestCommitmentId wcrypto.Digest
	hasCommitment := false
	for _, rec := range all {
		if c, ok := rec.(ledger.CommitmentReceipt); ok {
			latestCommitmentId = c.CommitmentId
			hasCommitment = true
		}
	}

	return Projection{
		HeadReceiptHash:    head.ReceiptHeader().ReceiptHash,
		LatestCommitmentId: latestCommitmentId,
		HasCommitment:      hasCommitment,
		TrajectoryLength:   head.ReceiptHeader().Seq,
		LastUpdate:         head.ReceiptHeader().Timestamp,
		State:              result.State,
	}, nil
}

// AuditRow is one line of an audit index: a receipt summarized for
// human review.
type AuditRow struct {
	Seq          uint64
	Hash         wcrypto.Digest
	Kind         ledger.ReceiptKind
	Timestamp    fabric.TemporalAnchor
	CommitmentId *wcrypto.Digest
	Accepted     *bool
	Summary      string
}

// AuditIndexProjection returns one row per receipt in worldline's
// stream: seq, hash, kind, timestamp, an optional commitment id
// (resolved via the hash index for outcomes), an accepted flag, and a
// human-readable summary.
func AuditIndexProjection(r ledger.Reader, worldline wcrypto.Digest) ([]AuditRow, error) {
	all, err := r.ReadAll(worldline)
	if err != nil {
		return nil, err
	}

	rows := make([]AuditRow, 0, len(all))
	for _, rec := range all {
		header := rec.ReceiptHeader()
		row := AuditRow{
			Seq:       header.Seq,
			Hash:      header.ReceiptHash,
			Kind:      rec.ReceiptKind(),
			Timestamp: header.Timestamp,
		}

		switch v := rec.(type) {
		case ledger.CommitmentReceipt:
			id := v.CommitmentId
			row.CommitmentId = &id
			row.Summary = fmt.Sprintf("commitment %s intent=%q decision=%s", v.Class.Name, v.Intent, v.Decision.Outcome)
		case ledger.OutcomeReceipt:
			accepted := v.Accepted
			row.Accepted = &accepted
			if commit, ok := r.GetByHash(v.CommitmentReceiptHash); ok {
				if c, ok := commit.(ledger.CommitmentReceipt); ok {
					id := c.CommitmentId
					row.CommitmentId = &id
				}
			}
			row.Summary = fmt.Sprintf("outcome accepted=%t effects=%d", v.Accepted, len(v.Effects))
		case ledger.SnapshotReceipt:
			row.Summary = fmt.Sprintf("snapshot anchored_at=%d", v.AnchoredReceiptHash[0])
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows, nil
}
