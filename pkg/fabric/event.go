// Package fabric implements the crash-recoverable event fabric: a write-
// ahead log paired with a hybrid logical clock and an in-process fan-out
// router, so that every governance milestone is durably recorded before
// it is published to subscribers (§4.3).
package fabric

import (
	"encoding/binary"
	"fmt"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// EventKind enumerates the governance milestones the fabric carries.
type EventKind string

const (
	KindCommitmentProposed EventKind = "CommitmentProposed"
	KindCommitmentDecided  EventKind = "CommitmentDecided"
	KindOutcomeRecorded    EventKind = "OutcomeRecorded"
	KindSnapshotCreated    EventKind = "SnapshotCreated"
	KindWorldlineCreated   EventKind = "WorldlineCreated"
	KindRefUpdated         EventKind = "RefUpdated"
	KindSyncStarted        EventKind = "SyncStarted"
	KindSyncCompleted      EventKind = "SyncCompleted"
)

// FabricEvent is the unit of publication on the event bus. Id and
// IntegrityHash are always equal; IntegrityHash is kept as a distinct
// field because it is what gets recomputed and compared on verification.
type FabricEvent struct {
	Id            wcrypto.Digest   `json:"id"`
	Timestamp     TemporalAnchor   `json:"timestamp"`
	Worldline     wcrypto.Digest   `json:"worldline"`
	Kind          EventKind        `json:"kind"`
	Payload       []byte           `json:"payload"`
	IntegrityHash wcrypto.Digest   `json:"integrity_hash"`
}

// NewEvent stamps a FabricEvent with ts and computes its integrity hash.
// The caller supplies worldline/kind/payload; Id and IntegrityHash are
// always derived, never accepted from outside.
func NewEvent(ts TemporalAnchor, worldline wcrypto.Digest, kind EventKind, payload []byte) FabricEvent {
	e := FabricEvent{Timestamp: ts, Worldline: worldline, Kind: kind, Payload: payload}
	e.IntegrityHash = computeIntegrityHash(e)
	e.Id = e.IntegrityHash
	return e
}

// Verify recomputes the integrity hash and reports whether it still
// matches both Id and IntegrityHash.
func (e FabricEvent) Verify() bool {
	want := computeIntegrityHash(e)
	return want == e.IntegrityHash && want == e.Id
}

// computeIntegrityHash is BLAKE3("wll-fabric-event-v1:" ‖ timestamp_bytes
// ‖ worldline_bytes ‖ kind_bytes ‖ payload_bytes), per §4.3.
func computeIntegrityHash(e FabricEvent) wcrypto.Digest {
	data := make([]byte, 0, 24+32+len(e.Kind)+len(e.Payload))
	data = append(data, e.Timestamp.Bytes()...)
	data = append(data, e.Worldline.Bytes()...)
	data = append(data, []byte(e.Kind)...)
	data = append(data, e.Payload...)
	return wcrypto.Hash(wcrypto.DomainFabricEvt, data)
}

// encodeEvent produces the stable binary encoding stored as a WAL frame
// payload: a fixed-width header followed by the variable-length kind and
// payload fields. Deliberately not JSON, so that WAL payload size is
// predictable and independent of canonicalization rules.
func encodeEvent(e FabricEvent) []byte {
	kindBytes := []byte(e.Kind)
	buf := make([]byte, 0, 8+8+4+32+32+4+len(kindBytes)+4+len(e.Payload))

	var physBuf [8]byte
	binary.BigEndian.PutUint64(physBuf[:], uint64(e.Timestamp.Physical))
	buf = append(buf, physBuf[:]...)

	var logBuf [4]byte
	binary.BigEndian.PutUint32(logBuf[:], e.Timestamp.Logical)
	buf = append(buf, logBuf[:]...)

	var nodeBuf [8]byte
	binary.BigEndian.PutUint64(nodeBuf[:], e.Timestamp.NodeId)
	buf = append(buf, nodeBuf[:]...)

	buf = append(buf, e.Worldline.Bytes()...)

	var kindLen [4]byte
	binary.BigEndian.PutUint32(kindLen[:], uint32(len(kindBytes)))
	buf = append(buf, kindLen[:]...)
	buf = append(buf, kindBytes...)

	var payloadLen [4]byte
	binary.BigEndian.PutUint32(payloadLen[:], uint32(len(e.Payload)))
	buf = append(buf, payloadLen[:]...)
	buf = append(buf, e.Payload...)

	return buf
}

// decodeEvent parses encodeEvent's output and recomputes Id/IntegrityHash.
func decodeEvent(data []byte) (FabricEvent, error) {
	if len(data) < 8+4+8+32+4 {
		return FabricEvent{}, fmt.Errorf("fabric: event frame too short")
	}
	off := 0
	physical := int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	logical := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	nodeId := binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	var worldline wcrypto.Digest
	copy(worldline[:], data[off:off+32])
	off += 32

	if len(data[off:]) < 4 {
		return FabricEvent{}, fmt.Errorf("fabric: truncated kind length")
	}
	kindLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	if uint32(len(data[off:])) < kindLen {
		return FabricEvent{}, fmt.Errorf("fabric: truncated kind")
	}
	kind := EventKind(data[off : off+int(kindLen)])
	off += int(kindLen)

	if len(data[off:]) < 4 {
		return FabricEvent{}, fmt.Errorf("fabric: truncated payload length")
	}
	payloadLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	if uint32(len(data[off:])) < payloadLen {
		return FabricEvent{}, fmt.Errorf("fabric: truncated payload")
	}
	payload := make([]byte, payloadLen)
	copy(payload, data[off:off+int(payloadLen)])

	ts := TemporalAnchor{Physical: physical, Logical: logical, NodeId: nodeId}
	e := FabricEvent{Timestamp: ts, Worldline: worldline, Kind: kind, Payload: payload}
	e.IntegrityHash = computeIntegrityHash(e)
	e.Id = e.IntegrityHash
	return e, nil
}
