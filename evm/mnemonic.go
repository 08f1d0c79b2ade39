package evm

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"github.com/x4pay/x402-ble-go"
)

// WithMnemonic derives the signing key from a BIP39 mnemonic phrase.
// Derivation path: m/44'/60'/0'/0/{accountIndex}
func WithMnemonic(mnemonic string, accountIndex uint32) SignerOption {
	return func(s *Signer) error {
		key, err := DeriveKey(mnemonic, accountIndex)
		if err != nil {
			return err
		}
		s.privateKey = key
		return nil
	}
}

// DeriveKey validates a BIP39 mnemonic and derives the Ethereum key at
// m/44'/60'/0'/0/{index}.
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, x402.ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")
	key, err := deriveEthereumKey(seed, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
	}
	return key, nil
}

// bip44Path is m/44'/60'/0'/0 without the address index.
var bip44Path = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 60,
	bip32.FirstHardenedChild + 0,
	0,
}

func deriveEthereumKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	for _, child := range append(bip44Path, index) {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, err
		}
	}

	return crypto.ToECDSA(key.Key)
}
