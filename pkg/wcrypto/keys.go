package wcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// Signer is the capability set a worldline identity or proposer needs:
// sign arbitrary bytes and expose the matching public key. Production
// deployments back this with an HSM or KMS; MemorySigner below is the
// in-process implementation used by tests and single-node setups.
type Signer interface {
	Sign(msg []byte) []byte
	PublicKey() ed25519.PublicKey
}

// MemorySigner holds an Ed25519 keypair in process memory.
type MemorySigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemorySigner generates a fresh random Ed25519 keypair.
func NewMemorySigner() (*MemorySigner, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wcrypto: generate key: %w", err)
	}
	return &MemorySigner{pub: pub, priv: priv}, nil
}

// NewMemorySignerFromSeed builds a deterministic signer from a 32-byte
// seed, used by tests that need reproducible worldline identities.
func NewMemorySignerFromSeed(seed []byte) *MemorySigner {
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemorySigner{pub: priv.Public().(ed25519.PublicKey), priv: priv}
}

func (s *MemorySigner) Sign(msg []byte) []byte           { return ed25519.Sign(s.priv, msg) }
func (s *MemorySigner) PublicKey() ed25519.PublicKey      { return s.pub }
func (s *MemorySigner) Seed() []byte                      { return s.priv.Seed() }

// VerifySignature checks an Ed25519 signature over msg.
func VerifySignature(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}

// DeriveChildSigner derives a deterministic child Ed25519 keypair from a
// parent signer's seed and a label, using HKDF-SHA3-256. This backs
// {parent WorldlineId, label} identity derivation (§3 WorldlineId) without
// requiring a fresh random keypair per child worldline.
func DeriveChildSigner(parent *MemorySigner, label string) (*MemorySigner, error) {
	reader := hkdf.New(sha3.New256, parent.Seed(), nil, []byte(label))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("wcrypto: derive child signer: %w", err)
	}
	return NewMemorySignerFromSeed(seed), nil
}
