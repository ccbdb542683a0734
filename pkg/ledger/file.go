package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/worldline-systems/wll/pkg/fabric"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// fileRecord is the on-disk envelope for one receipt: the kind tag plus
// its JSON-marshaled concrete value, so the file can hold a
// heterogeneous stream and still round-trip through UnmarshalJSON.
type fileRecord struct {
	Kind ReceiptKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// File is a durable Memory-backed ledger: after every accepted append the
// whole receipt history is rewritten to a JSON file on disk (one array of
// kind-tagged records), so a process restart can reload
// the full receipt history (§4.4, grounded on the teacher's file-backed
// ledger durability pattern).
type File struct {
	mu   sync.Mutex
	path string
	mem  *Memory
}

// OpenFile loads path (if present) into a fresh Memory ledger and
// returns a File that rewrites it after every subsequent append.
func OpenFile(path string, clock *fabric.Clock) (*File, error) {
	f := &File{path: path, mem: NewMemory(clock)}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ledger: read file ledger: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("ledger: decode file ledger: %w", err)
	}

	for _, rec := range records {
		receipt, err := decodeFileRecord(rec)
		if err != nil {
			return err
		}
		worldline := receipt.ReceiptHeader().Worldline
		s := f.mem.streamFor(worldline)
		hash := receipt.ReceiptHeader().ReceiptHash
		s.receipts = append(s.receipts, receipt)
		s.byHash[hash] = len(s.receipts) - 1
		f.mem.globalHash[hash] = worldline
	}
	return nil
}

func decodeFileRecord(rec fileRecord) (Receipt, error) {
	switch rec.Kind {
	case KindCommitment:
		var r CommitmentReceipt
		if err := json.Unmarshal(rec.Data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case KindOutcome:
		var r OutcomeReceipt
		if err := json.Unmarshal(rec.Data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case KindSnapshot:
		var r SnapshotReceipt
		if err := json.Unmarshal(rec.Data, &r); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("ledger: unknown receipt kind %q in file ledger", rec.Kind)
	}
}

// save rewrites the whole file from the in-memory streams. Simple and
// durable; not optimized for large histories.
func (f *File) save() error {
	var records []fileRecord
	for _, w := range f.mem.Worldlines() {
		all, _ := f.mem.ReadAll(w)
		for _, r := range all {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("ledger: encode receipt: %w", err)
			}
			records = append(records, fileRecord{Kind: r.ReceiptKind(), Data: data})
		}
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode file ledger: %w", err)
	}
	return os.WriteFile(f.path, out, 0o600)
}

func (f *File) AppendCommitment(worldline wcrypto.Digest, commitmentId wcrypto.Digest, class CommitmentClass, intent string, requestedCaps []string, evidence EvidenceBundle, decision Decision, policyHash, proposalHash wcrypto.Digest) (CommitmentReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.mem.AppendCommitment(worldline, commitmentId, class, intent, requestedCaps, evidence, decision, policyHash, proposalHash)
	if err != nil {
		return r, err
	}
	return r, f.save()
}

func (f *File) AppendOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, effects, proofs []string, stateUpdates, metadata map[string]interface{}) (OutcomeReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.mem.AppendOutcome(worldline, commitmentReceiptHash, effects, proofs, stateUpdates, metadata)
	if err != nil {
		return r, err
	}
	return r, f.save()
}

func (f *File) AppendRejectionOutcome(worldline wcrypto.Digest, commitmentReceiptHash wcrypto.Digest, reason string) (OutcomeReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.mem.AppendRejectionOutcome(worldline, commitmentReceiptHash, reason)
	if err != nil {
		return r, err
	}
	return r, f.save()
}

func (f *File) AppendSnapshot(worldline wcrypto.Digest, anchoredReceiptHash wcrypto.Digest, state map[string]interface{}) (SnapshotReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.mem.AppendSnapshot(worldline, anchoredReceiptHash, state)
	if err != nil {
		return r, err
	}
	return r, f.save()
}

func (f *File) Head(worldline wcrypto.Digest) (Receipt, bool) { return f.mem.Head(worldline) }
func (f *File) ReadRange(worldline wcrypto.Digest, from, to uint64) ([]Receipt, error) {
	return f.mem.ReadRange(worldline, from, to)
}
func (f *File) ReadAll(worldline wcrypto.Digest) ([]Receipt, error) { return f.mem.ReadAll(worldline) }
func (f *File) GetByHash(hash wcrypto.Digest) (Receipt, bool)       { return f.mem.GetByHash(hash) }
func (f *File) Worldlines() []wcrypto.Digest                       { return f.mem.Worldlines() }
func (f *File) ReceiptCount() int                                  { return f.mem.ReceiptCount() }
