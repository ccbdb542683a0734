package wcrypto

import (
	"crypto/ed25519"
	"fmt"
)

// WorldlineId is the 32-byte persistent identity of a worldline, derived
// deterministically from identity material so the same material always
// yields the same id (§3 WorldlineId).
type WorldlineId = Digest

// DeriveWorldlineFromGenesis derives a WorldlineId from a raw genesis hash.
func DeriveWorldlineFromGenesis(genesis Digest) WorldlineId {
	return Hash(DomainWorldline, append([]byte("genesis:"), genesis[:]...))
}

// DeriveWorldlineFromKey derives a WorldlineId from an Ed25519 public key.
func DeriveWorldlineFromKey(pub ed25519.PublicKey) WorldlineId {
	return Hash(DomainWorldline, append([]byte("key:"), pub...))
}

// DeriveWorldlineFromParent derives a child WorldlineId from a parent
// signer and a label, e.g. a named branch spun off an existing
// worldline. The child's identity is tied to a signer derived
// deterministically from the parent's seed (DeriveChildSigner) rather
// than a bare label hash, so the branch carries its own verifiable
// Ed25519 identity and re-deriving the same {parent, label} pair always
// yields the same worldline and signer.
func DeriveWorldlineFromParent(parent *MemorySigner, label string) (WorldlineId, *MemorySigner, error) {
	child, err := DeriveChildSigner(parent, label)
	if err != nil {
		return WorldlineId{}, nil, fmt.Errorf("wcrypto: derive worldline from parent: %w", err)
	}
	return DeriveWorldlineFromKey(child.PublicKey()), child, nil
}
