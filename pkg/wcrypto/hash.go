package wcrypto

import (
	"lukechampine.com/blake3"
)

// Domain tags used throughout the core. Every hash in the system passes
// through Hash or one of its callers, so a change here changes every
// object id, worldline id, and receipt hash at once — which is exactly
// the point of domain separation: identical bytes hashed under two
// different tags must never collide.
const (
	DomainBlob       = "wll-blob-v1"
	DomainTree       = "wll-tree-v1"
	DomainReceipt    = "wll-receipt-v1"
	DomainSnapshot   = "wll-snapshot-v1"
	DomainCommit     = "wll-commit-v1"
	DomainMerkleLeaf = "wll-merkle-v1:leaf"
	DomainMerkleNode = "wll-merkle-v1:node"
	DomainWorldline  = "wll-worldline-v1"
	DomainFabricEvt  = "wll-fabric-event-v1"
	DomainPolicySet  = "wll-policy-set-v1"
)

const DigestSize = 32

// Digest is a 32-byte content hash.
type Digest [DigestSize]byte

// IsZero reports whether d is the all-zero digest, which is never a valid
// ObjectId or receipt hash.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	copy(b, d[:])
	return b
}

// Hash computes BLAKE3(domain ":" data) — the one domain-separation
// routine every object kind, receipt, and fabric event hashes through.
func Hash(domain string, data []byte) Digest {
	h := blake3.New(DigestSize, nil)
	h.Write([]byte(domain))
	h.Write([]byte(":"))
	h.Write(data)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// HashCanonical hashes the JCS-canonical encoding of v under domain.
func HashCanonical(domain string, v interface{}) (Digest, error) {
	b, err := CanonicalBytes(v)
	if err != nil {
		return Digest{}, err
	}
	return Hash(domain, b), nil
}

// DigestFromBytes copies exactly DigestSize bytes into a Digest.
func DigestFromBytes(b []byte) (Digest, bool) {
	if len(b) != DigestSize {
		return Digest{}, false
	}
	var d Digest
	copy(d[:], b)
	return d, true
}
