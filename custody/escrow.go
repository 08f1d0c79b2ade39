package custody

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/x4pay/x402-ble-go"
)

// Escrow keeps decrypted keys for recurring payments under opaque session
// ids. Holding an id is enough to sign further payments without the PIN.
type Escrow struct {
	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey
}

// NewEscrow returns an empty escrow.
func NewEscrow() *Escrow {
	return &Escrow{keys: make(map[string]*ecdsa.PrivateKey)}
}

// Put stores a copy of key and returns a fresh random session id.
func (e *Escrow) Put(key *ecdsa.PrivateKey) (string, error) {
	clone, err := cloneKey(key)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	e.mu.Lock()
	e.keys[id] = clone
	e.mu.Unlock()
	return id, nil
}

// Get returns a copy of the escrowed key. The caller should Wipe it after use.
func (e *Escrow) Get(id string) (*ecdsa.PrivateKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.keys[id]
	if !ok {
		return nil, x402.ErrEscrowNotFound
	}
	return cloneKey(key)
}

// Erase zeroes and forgets the key. Erasing an unknown id is a no-op.
func (e *Escrow) Erase(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if key, ok := e.keys[id]; ok {
		Wipe(key)
		delete(e.keys, id)
	}
}

// Len reports how many keys are held.
func (e *Escrow) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

func cloneKey(key *ecdsa.PrivateKey) (*ecdsa.PrivateKey, error) {
	if key == nil || key.D == nil || key.D.Sign() == 0 {
		return nil, x402.ErrInvalidKey
	}
	clone, err := crypto.ToECDSA(crypto.FromECDSA(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return clone, nil
}
