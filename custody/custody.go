// Package custody hands out decrypted wallet keys behind a PIN and holds
// escrowed keys for unattended recurring payments.
package custody

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/evm"
)

// KeyCustody returns the private key of a wallet given proof of access.
// A wrong PIN or an undecryptable record fails with x402.ErrAuthFailed.
type KeyCustody interface {
	PrivateKey(ctx context.Context, pin, walletID string) (*ecdsa.PrivateKey, error)
}

// CustodyFunc adapts a function to KeyCustody.
type CustodyFunc func(ctx context.Context, pin, walletID string) (*ecdsa.PrivateKey, error)

// PrivateKey implements KeyCustody.
func (f CustodyFunc) PrivateKey(ctx context.Context, pin, walletID string) (*ecdsa.PrivateKey, error) {
	return f(ctx, pin, walletID)
}

// Keystore is KeyCustody over a directory of Web3 Secret Storage (v3) files,
// one per wallet, encrypted with the PIN through scrypt and AES-128-CTR.
// The wallet id is the checksummed address.
type Keystore struct {
	dir     string
	scryptN int
	scryptP int
	logger  zerolog.Logger
}

// KeystoreOption configures a Keystore.
type KeystoreOption func(*Keystore)

// WithScrypt overrides the scrypt cost parameters.
func WithScrypt(n, p int) KeystoreOption {
	return func(k *Keystore) {
		k.scryptN = n
		k.scryptP = p
	}
}

// WithLogger sets the keystore logger.
func WithLogger(logger zerolog.Logger) KeystoreOption {
	return func(k *Keystore) {
		k.logger = logger
	}
}

// NewKeystore opens (creating if needed) a keystore directory.
func NewKeystore(dir string, opts ...KeystoreOption) (*Keystore, error) {
	k := &Keystore{
		dir:     dir,
		scryptN: keystore.StandardScryptN,
		scryptP: keystore.StandardScryptP,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
	}
	return k, nil
}

// ImportKey encrypts key under pin and returns the wallet id.
func (k *Keystore) ImportKey(pin string, key *ecdsa.PrivateKey) (string, error) {
	if pin == "" {
		return "", fmt.Errorf("%w: empty PIN", x402.ErrAuthFailed)
	}
	if key == nil {
		return "", x402.ErrInvalidKey
	}

	record := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}
	keyJSON, err := keystore.EncryptKey(record, pin, k.scryptN, k.scryptP)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
	}

	path := k.path(record.Address)
	if err := os.WriteFile(path, keyJSON, 0o600); err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
	}

	k.logger.Info().Str("wallet_id", record.Address.Hex()).Msg("wallet imported")
	return record.Address.Hex(), nil
}

// ImportHex imports a hex-encoded private key.
func (k *Keystore) ImportHex(pin, hexKey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return "", x402.ErrInvalidKey
	}
	defer Wipe(key)
	return k.ImportKey(pin, key)
}

// ImportMnemonic derives the key at m/44'/60'/0'/0/{index} and imports it.
func (k *Keystore) ImportMnemonic(pin, mnemonic string, index uint32) (string, error) {
	key, err := evm.DeriveKey(mnemonic, index)
	if err != nil {
		return "", err
	}
	defer Wipe(key)
	return k.ImportKey(pin, key)
}

// Wallets lists the wallet ids in the directory, sorted.
func (k *Keystore) Wallets() ([]string, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(k.dir, e.Name()))
		if err != nil {
			continue
		}
		var header struct {
			Address string `json:"address"`
		}
		if json.Unmarshal(data, &header) != nil || !common.IsHexAddress(header.Address) {
			continue
		}
		ids = append(ids, common.HexToAddress(header.Address).Hex())
	}
	sort.Strings(ids)
	return ids, nil
}

// PrivateKey implements KeyCustody.
func (k *Keystore) PrivateKey(ctx context.Context, pin, walletID string) (*ecdsa.PrivateKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !common.IsHexAddress(walletID) {
		return nil, fmt.Errorf("%w: unknown wallet %q", x402.ErrAuthFailed, walletID)
	}

	address := common.HexToAddress(walletID)
	keyJSON, err := os.ReadFile(k.path(address))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: unknown wallet %s", x402.ErrAuthFailed, address.Hex())
		}
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKeystore, err)
	}

	record, err := keystore.DecryptKey(keyJSON, pin)
	if err != nil {
		k.logger.Warn().Str("wallet_id", address.Hex()).Msg("wallet decryption failed")
		return nil, fmt.Errorf("%w: %v", x402.ErrAuthFailed, err)
	}
	if record.Address != address {
		Wipe(record.PrivateKey)
		return nil, fmt.Errorf("%w: keystore address mismatch", x402.ErrInvalidKeystore)
	}
	return record.PrivateKey, nil
}

func (k *Keystore) path(address common.Address) string {
	return filepath.Join(k.dir, strings.ToLower(strings.TrimPrefix(address.Hex(), "0x"))+".json")
}

// Wipe zeroes the scalar of a private key in place.
func Wipe(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}
