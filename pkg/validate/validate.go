// Package validate scans a worldline's receipt stream for every
// integrity violation it can find, rather than aborting at the first
// one, and returns them all in a single report (§4.8).
package validate

import (
	"fmt"

	"github.com/worldline-systems/wll/pkg/ledger"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// Violation is one concrete defect found while scanning a stream.
type Violation struct {
	Seq     uint64
	Message string
}

// Report summarizes a scan of one worldline's stream: one boolean per
// dimension, plus the detailed list behind them.
type Report struct {
	Worldline              wcrypto.Digest
	ReceiptsScanned        int
	HasSequenceGap         bool
	HasBrokenChain         bool
	HasHashMismatch        bool
	HasUnattributedOutcome bool
	HasUnanchoredSnapshot  bool
	Violations             []Violation
}

// Clean reports whether no violation of any dimension was found.
func (r Report) Clean() bool {
	return !r.HasSequenceGap && !r.HasBrokenChain && !r.HasHashMismatch &&
		!r.HasUnattributedOutcome && !r.HasUnanchoredSnapshot
}

// Stream scans every receipt in worldline's stream, checking sequence
// contiguity, prev_hash chaining, recomputed receipt hash, outcome
// attribution, and snapshot anchoring. It keeps scanning after the
// first violation in each dimension.
func Stream(r ledger.Reader, worldline wcrypto.Digest) (Report, error) {
	receipts, err := r.ReadAll(worldline)
	if err != nil {
		return Report{}, err
	}

	report := Report{Worldline: worldline, ReceiptsScanned: len(receipts)}
	byHash := make(map[wcrypto.Digest]ledger.Receipt, len(receipts))

	var prevHash *wcrypto.Digest
	for i, rec := range receipts {
		header := rec.ReceiptHeader()
		expectedSeq := uint64(i + 1)

		if header.Seq != expectedSeq {
			report.HasSequenceGap = true
			report.Violations = append(report.Violations, Violation{
				Seq:     header.Seq,
				Message: fmt.Sprintf("sequence gap: expected %d, got %d", expectedSeq, header.Seq),
			})
		}

		if !chainLinksMatch(prevHash, header.PrevHash) {
			report.HasBrokenChain = true
			report.Violations = append(report.Violations, Violation{
				Seq:     header.Seq,
				Message: "prev_hash does not match predecessor's receipt_hash",
			})
		}

		if recomputed, err := recomputeHash(rec); err != nil || recomputed != header.ReceiptHash {
			report.HasHashMismatch = true
			report.Violations = append(report.Violations, Violation{
				Seq:     header.Seq,
				Message: "recomputed receipt hash differs from stored hash",
			})
		}

		switch v := rec.(type) {
		case ledger.OutcomeReceipt:
			if _, ok := byHash[v.CommitmentReceiptHash]; !ok {
				report.HasUnattributedOutcome = true
				report.Violations = append(report.Violations, Violation{
					Seq:     header.Seq,
					Message: "outcome references no earlier commitment in stream",
				})
			}
		case ledger.SnapshotReceipt:
			if _, ok := byHash[v.AnchoredReceiptHash]; !ok {
				report.HasUnanchoredSnapshot = true
				report.Violations = append(report.Violations, Violation{
					Seq:     header.Seq,
					Message: "snapshot anchored_receipt_hash not found in earlier stream",
				})
			}
		}

		byHash[header.ReceiptHash] = rec
		hash := header.ReceiptHash
		prevHash = &hash
	}

	return report, nil
}

func chainLinksMatch(expected *wcrypto.Digest, actual *wcrypto.Digest) bool {
	if expected == nil {
		return actual == nil
	}
	if actual == nil {
		return false
	}
	return *expected == *actual
}

// recomputeHash re-derives a receipt's canonical hash the same way the
// ledger does at insertion time, for independent comparison against the
// stored receipt_hash.
func recomputeHash(rec ledger.Receipt) (wcrypto.Digest, error) {
	return ledger.ComputeReceiptHash(rec)
}
