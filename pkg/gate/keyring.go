package gate

import (
	"crypto/ed25519"
	"sync"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// KeyProvider resolves the public key registered for a proposer
// identity. Production deployments back this with a tenant identity
// provider or KMS; MemoryKeyProvider is the in-process implementation
// used by tests and single-node setups.
type KeyProvider interface {
	PublicKey(proposer string) (ed25519.PublicKey, bool)
}

// MemoryKeyProvider holds a registry of proposer identity to Ed25519
// public key in process memory.
type MemoryKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewMemoryKeyProvider returns an empty provider.
func NewMemoryKeyProvider() *MemoryKeyProvider {
	return &MemoryKeyProvider{keys: make(map[string]ed25519.PublicKey)}
}

// Register binds proposer to pub, overwriting any prior binding.
func (m *MemoryKeyProvider) Register(proposer string, pub ed25519.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[proposer] = pub
}

// RegisterSigner is a convenience wrapper binding a wcrypto.Signer's
// public key.
func (m *MemoryKeyProvider) RegisterSigner(proposer string, signer wcrypto.Signer) {
	m.Register(proposer, signer.PublicKey())
}

// PublicKey implements KeyProvider.
func (m *MemoryKeyProvider) PublicKey(proposer string) (ed25519.PublicKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pub, ok := m.keys[proposer]
	return pub, ok
}
