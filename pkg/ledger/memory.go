package ledger

import (
	"sort"
	"sync"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// stream is one worldline's receipt history plus its local hash index.
type stream struct {
	receipts []Receipt
	byHash   map[wcrypto.Digest]int // receipt hash -> index into receipts
}

// Memory is an in-process Ledger: one stream per worldline, guarded by a
// single writer lock (§4.4 "one writer lock per ledger (or per stream)").
// Reads take only the read side of the lock; receipt contents never
// mutate after insertion.
type Memory struct {
	mu        sync.RWMutex
	streams   map[wcrypto.Digest]*stream
	globalHash map[wcrypto.Digest]wcrypto.Digest // receipt hash -> worldline, for collision + get_by_hash
	clock     *fabric.Clock
}

// NewMemory returns an empty ledger timestamped from clock.
func NewMemory(clock *fabric.Clock) *Memory {
	return &Memory{
		streams:    make(map[wcrypto.Digest]*stream),
		globalHash: make(map[wcrypto.Digest]wcrypto.Digest),
		clock:      clock,
	}
}

func (m *Memory) streamFor(worldline wcrypto.Digest) *stream {
	s, ok := m.streams[worldline]
	if !ok {
		s = &stream{byHash: make(map[wcrypto.Digest]int)}
		m.streams[worldline] = s
	}
	return s
}

func (m *Memory) nextSeqAndPrev(worldline wcrypto.Digest) (uint64, *wcrypto.Digest) {
	s, ok := m.streams[worldline]
	if !ok || len(s.receipts) == 0 {
		return 1, nil
	}
	head := s.receipts[len(s.receipts)-1].ReceiptHeader()
	prev := head.ReceiptHash
	return head.Seq + 1, &prev
}

// insert finalizes a receipt's hash, checks for global collision, and
// appends it to the worldline's stream under the writer lock.
func (m *Memory) insert(worldline wcrypto.Digest, build func(seq uint64, prev *wcrypto.Digest, ts fabric.TemporalAnchor) (Receipt, error)) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, prev := m.nextSeqAndPrev(worldline)

	var ts fabric.TemporalAnchor
	if prev != nil {
		s := m.streams[worldline]
		ts = m.clock.Update(s.receipts[len(s.receipts)-1].ReceiptHeader().Timestamp)
	} else {
		ts = m.clock.Now()
	}

	receipt, err := build(seq, prev, ts)
	if err != nil {
		return nil, err
	}

	hash, err := computeReceiptHash(receipt)
	if err != nil {
		return nil, err
	}
	if _, exists := m.globalHash[hash]; exists {
		return nil, wllerr.Wrap(wllerr.ErrHashCollision, nil)
	}
	receipt = withReceiptHash(receipt, hash)

	s := m.streamFor(worldline)
	s.receipts = append(s.receipts, receipt)
	s.byHash[hash] = len(s.receipts) - 1
	m.globalHash[hash] = worldline

	return receipt, nil
}

func withReceiptHash(r Receipt, hash wcrypto.Digest) Receipt {
	switch v := r.(type) {
	case CommitmentReceipt:
		v.ReceiptHash = hash
		return v
	case OutcomeReceipt:
		v.ReceiptHash = hash
		return v
	case SnapshotReceipt:
		v.ReceiptHash = hash
		return v
	default:
		panic("ledger: unknown receipt kind")
	}
}

// AppendCommitment computes the next seq/prev_hash/timestamp, finalizes
// the receipt hash, and inserts a CommitmentReceipt (§4.4).
func (m *Memory) AppendCommitment(worldline wcrypto.Digest, commitmentId wcrypto.Digest, class CommitmentClass, intent string, requestedCaps []string, evidence EvidenceBundle, decision Decision, policyHash, proposalHash wcrypto.Digest) (CommitmentReceipt, error) {
	r, err := m.insert(worldline, func(seq uint64, prev *wcrypto.Digest, ts fabric.TemporalAnchor) (Receipt, error) {
		return CommitmentReceipt{
			Header:        Header{Worldline: worldline, Seq: seq, PrevHash: prev, Timestamp: ts},
			CommitmentId:  commitmentId,
			Class:         class,
			Intent:        intent,
			RequestedCaps: requestedCaps,
			Evidence:      evidence,
			Decision:      decision,
			PolicyHash:    policyHash,
			ProposalHash:  proposalHash,
		}, nil
	})
	if err != nil {
		return CommitmentReceipt{}, err
	}
	return r.(CommitmentReceipt), nil
}

// AppendOutcome appends an accepted outcome; commitmentReceiptHash must
// reference an existing, accepted commitment in the same worldline.
func (m *Memory) AppendOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, effects, proofs []string, stateUpdates, metadata map[string]interface{}) (OutcomeReceipt, error) {
	return m.appendOutcome(worldline, commitmentReceiptHash, true, effects, proofs, stateUpdates, metadata)
}

// AppendRejectionOutcome appends a rejection outcome (accepted=false);
// commitmentReceiptHash must reference a rejected commitment in the same
// worldline, and reason is recorded in Metadata.
func (m *Memory) AppendRejectionOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, reason string) (OutcomeReceipt, error) {
	return m.appendOutcome(worldline, commitmentReceiptHash, false, nil, nil, nil, map[string]interface{}{"reason": reason})
}

func (m *Memory) appendOutcome(worldline, commitmentReceiptHash wcrypto.Digest, accepted bool, effects, proofs []string, stateUpdates, metadata map[string]interface{}) (OutcomeReceipt, error) {
	r, err := m.insert(worldline, func(seq uint64, prev *wcrypto.Digest, ts fabric.TemporalAnchor) (Receipt, error) {
		s := m.streamFor(worldline)
		idx, ok := s.byHash[commitmentReceiptHash]
		if !ok {
			return nil, wllerr.Wrap(wllerr.ErrOutcomeUnattributed, nil)
		}
		commit, ok := s.receipts[idx].(CommitmentReceipt)
		if !ok {
			return nil, wllerr.Wrap(wllerr.ErrOutcomeUnattributed, nil)
		}
		// A rejection outcome may only follow a commitment the gate actually
		// rejected, not one still Deferred; an accepted outcome may only
		// follow one actually Accepted. Deferred commitments accept neither.
		if accepted {
			if commit.Decision.Outcome != OutcomeAccepted {
				return nil, wllerr.Wrap(wllerr.ErrOutcomeUnattributed, nil)
			}
		} else {
			if commit.Decision.Outcome != OutcomeRejected {
				return nil, wllerr.Wrap(wllerr.ErrOutcomeUnattributed, nil)
			}
		}
		return OutcomeReceipt{
			Header:                Header{Worldline: worldline, Seq: seq, PrevHash: prev, Timestamp: ts},
			CommitmentReceiptHash: commitmentReceiptHash,
			Accepted:              accepted,
			Effects:               effects,
			Proofs:                proofs,
			StateUpdates:          stateUpdates,
			Metadata:              metadata,
		}, nil
	})
	if err != nil {
		return OutcomeReceipt{}, err
	}
	return r.(OutcomeReceipt), nil
}

// AppendSnapshot checkpoints state; anchoredReceiptHash must refer to an
// earlier receipt in the same worldline.
func (m *Memory) AppendSnapshot(worldline wcrypto.Digest, anchoredReceiptHash wcrypto.Digest, state map[string]interface{}) (SnapshotReceipt, error) {
	stateHash, err := wcrypto.HashCanonical(wcrypto.DomainSnapshot, state)
	if err != nil {
		return SnapshotReceipt{}, err
	}

	r, err := m.insert(worldline, func(seq uint64, prev *wcrypto.Digest, ts fabric.TemporalAnchor) (Receipt, error) {
		s := m.streamFor(worldline)
		if _, ok := s.byHash[anchoredReceiptHash]; !ok {
			return nil, wllerr.Wrap(wllerr.ErrSnapshotUnanchored, nil)
		}
		return SnapshotReceipt{
			Header:              Header{Worldline: worldline, Seq: seq, PrevHash: prev, Timestamp: ts},
			AnchoredReceiptHash: anchoredReceiptHash,
			StateHash:           stateHash,
			State:               state,
		}, nil
	})
	if err != nil {
		return SnapshotReceipt{}, err
	}
	return r.(SnapshotReceipt), nil
}

// Head returns the most recent receipt in worldline's stream.
func (m *Memory) Head(worldline wcrypto.Digest) (Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[worldline]
	if !ok || len(s.receipts) == 0 {
		return nil, false
	}
	return s.receipts[len(s.receipts)-1], true
}

// ReadRange returns receipts [from, to], 1-based inclusive.
func (m *Memory) ReadRange(worldline wcrypto.Digest, from, to uint64) ([]Receipt, error) {
	if from == 0 || from > to {
		return nil, wllerr.Wrap(wllerr.ErrInvalidRange, nil)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[worldline]
	if !ok {
		return nil, wllerr.Wrap(wllerr.ErrWorldlineEmpty, nil)
	}
	if to > uint64(len(s.receipts)) {
		to = uint64(len(s.receipts))
	}
	if from > uint64(len(s.receipts)) {
		return nil, nil
	}
	out := make([]Receipt, to-from+1)
	copy(out, s.receipts[from-1:to])
	return out, nil
}

// ReadAll returns every receipt in worldline's stream in order.
func (m *Memory) ReadAll(worldline wcrypto.Digest) ([]Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[worldline]
	if !ok {
		return nil, nil
	}
	out := make([]Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

// GetByHash resolves a receipt hash to its receipt, searching across
// every worldline's stream.
func (m *Memory) GetByHash(hash wcrypto.Digest) (Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	worldline, ok := m.globalHash[hash]
	if !ok {
		return nil, false
	}
	s := m.streams[worldline]
	idx, ok := s.byHash[hash]
	if !ok {
		return nil, false
	}
	return s.receipts[idx], true
}

// Worldlines returns every worldline with at least one receipt, sorted.
func (m *Memory) Worldlines() []wcrypto.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wcrypto.Digest, 0, len(m.streams))
	for w, s := range m.streams {
		if len(s.receipts) > 0 {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// ReceiptCount returns the total number of receipts across every
// worldline.
func (m *Memory) ReceiptCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.streams {
		n += len(s.receipts)
	}
	return n
}
